package llm

import (
	"context"
	"time"

	"github.com/gaurav-prasanna/tutorialpipe/logger"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
	"github.com/gaurav-prasanna/tutorialpipe/resilience"
)

// Middleware decorates a Client with a cross-cutting policy.
type Middleware func(Client) Client

// Chain applies mws to c in order; the last one ends up outermost.
func Chain(c Client, mws ...Middleware) Client {
	for _, mw := range mws {
		c = mw(c)
	}
	return c
}

type interceptor func(ctx context.Context, task Task, call func(context.Context) error) error

type intercepted struct {
	next Client
	run  interceptor
}

func (c *intercepted) Name() string  { return c.next.Name() }
func (c *intercepted) Unwrap() Client { return c.next }

func (c *intercepted) Chat(ctx context.Context, p Prompt) (string, error) {
	var out string
	err := c.run(ctx, p.Task, func(ctx context.Context) error {
		var err error
		out, err = c.next.Chat(ctx, p)
		return err
	})
	return out, err
}

func (c *intercepted) Caption(ctx context.Context, img Image, instruction string) (string, error) {
	var out string
	err := c.run(ctx, TaskCaption, func(ctx context.Context) error {
		var err error
		out, err = c.next.Caption(ctx, img, instruction)
		return err
	})
	return out, err
}

// WithLimiter routes every call through the shared limiter.
func WithLimiter(l *Limiter) Middleware {
	return func(next Client) Client {
		return &intercepted{next: next, run: func(ctx context.Context, _ Task, call func(context.Context) error) error {
			release, err := l.Acquire(ctx)
			if err != nil {
				return err
			}
			defer release()
			return call(ctx)
		}}
	}
}

// Limited wraps c so that every call, text or vision, passes through l.
func Limited(c Client, l *Limiter) Client {
	return Chain(c, WithLimiter(l))
}

// WithTimeout bounds each call. d <= 0 leaves calls unbounded.
func WithTimeout(d time.Duration) Middleware {
	return func(next Client) Client {
		if d <= 0 {
			return next
		}
		return &intercepted{next: next, run: func(ctx context.Context, _ Task, call func(context.Context) error) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return call(ctx)
		}}
	}
}

// WithBreaker fails fast while the backend keeps erroring.
func WithBreaker(cb *resilience.CircuitBreaker) Middleware {
	return func(next Client) Client {
		return &intercepted{next: next, run: func(ctx context.Context, _ Task, call func(context.Context) error) error {
			return cb.Execute(func() error { return call(ctx) })
		}}
	}
}

// WithMetrics records call counts, latency and in-flight calls.
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next Client) Client {
		return &intercepted{next: next, run: func(ctx context.Context, task Task, call func(context.Context) error) error {
			m.LLMCallStarted()
			defer m.LLMCallFinished()
			start := time.Now()
			err := call(ctx)
			elapsed := time.Since(start)
			m.ObserveLLMCall(next.Name(), string(task), elapsed, err)
			log := logger.FromContext(ctx).With("component", "llm", "backend", next.Name(), "task", task)
			if err != nil {
				log.Warn("model call failed", "duration", elapsed, "error", err)
			} else {
				log.Debug("model call finished", "duration", elapsed)
			}
			return err
		}}
	}
}
