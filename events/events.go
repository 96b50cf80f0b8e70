// Package events publishes pipeline state transitions. Publishing never
// fails a run.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Event is one state transition of a run. DurationMS is the time spent in
// From; Status is set on the final transition of a successful run.
type Event struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Status     string    `json:"status,omitempty"`
	Err        string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.Default().With("component", "events")}
}

func (s *LogSink) Publish(ctx context.Context, e Event) {
	attrs := []any{"run_id", e.RunID, "from", e.From, "to", e.To}
	if e.Status != "" {
		attrs = append(attrs, "status", e.Status)
	}
	if e.DurationMS > 0 {
		attrs = append(attrs, "duration_ms", e.DurationMS)
	}
	if e.Err != "" {
		attrs = append(attrs, "error", e.Err)
		s.logger.WarnContext(ctx, "state transition", attrs...)
		return
	}
	s.logger.DebugContext(ctx, "state transition", attrs...)
}

func (s *LogSink) Close() error { return nil }

// Recorder keeps events in memory. It is used by tests and by callers that
// want a run's timeline.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, s := range m {
		s.Publish(ctx, e)
	}
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
func (Discard) Close() error                   { return nil }
