package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON to a Kafka topic, keyed by run id so a
// run's events stay ordered within one partition. Events are buffered and
// written by a background goroutine; a full buffer drops events.
type KafkaSink struct {
	writer  MessageWriter
	eventCh chan Event
	done    chan struct{}
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewKafkaWriter creates a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink starts a sink writing through w.
func NewKafkaSink(w MessageWriter, bufferSize int) *KafkaSink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	s := &KafkaSink{
		writer:  w,
		eventCh: make(chan Event, bufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "events-kafka"),
	}
	go s.run()
	return s
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for e := range s.eventCh {
		if err := s.write(e); err != nil {
			s.logger.Error("failed to publish event", "to", e.To, "run_id", e.RunID, "error", err)
		}
	}
}

func (s *KafkaSink) write(e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.RunID), Value: value}); err != nil {
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	return nil
}

// Publish enqueues e without blocking the pipeline. Events published after
// Close are dropped.
func (s *KafkaSink) Publish(_ context.Context, e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("event dropped (sink closed)", "to", e.To, "run_id", e.RunID)
		return
	}
	select {
	case s.eventCh <- e:
	default:
		s.logger.Warn("event dropped (buffer full)", "to", e.To, "run_id", e.RunID)
	}
}

// Close flushes buffered events and closes the writer. It is safe to call
// more than once.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.eventCh)
	s.mu.Unlock()
	<-s.done
	return s.writer.Close()
}
