package llm

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds model traffic for a whole process: a token bucket caps
// calls per second and a counting semaphore caps calls in flight.
type Limiter struct {
	sem      *semaphore.Weighted
	rl       *rate.Limiter
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter creates a Limiter. qps <= 0 disables the token bucket.
func NewLimiter(maxConcurrency int, qps float64) *Limiter {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	l := &Limiter{
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		capacity: maxConcurrency,
	}
	if qps > 0 {
		l.rl = rate.NewLimiter(rate.Limit(qps), int(math.Ceil(qps)))
	}
	return l
}

// Acquire blocks until a call may start. The returned release func must be
// called exactly once when the call finishes.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.rl != nil {
		if err := l.rl.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	n := l.inFlight.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// Capacity returns the concurrency ceiling.
func (l *Limiter) Capacity() int { return l.capacity }

// InFlight returns the number of calls currently holding a slot.
func (l *Limiter) InFlight() int64 { return l.inFlight.Load() }

// Peak returns the highest InFlight value observed.
func (l *Limiter) Peak() int64 { return l.peak.Load() }
