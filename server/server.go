// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/core/workflow"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
)

const shutdownTimeout = 30 * time.Second

// Runner executes pipeline runs. *workflow.Workflow implements it.
type Runner interface {
	Run(ctx context.Context, source string, target workflow.Target) (*core.Result, error)
	RunUpload(ctx context.Context, path, name string, target workflow.Target) (*core.Result, error)
}

// Options configures a Server.
type Options struct {
	Addr   string
	Runner Runner
	// Client is checked by /health/ready. Optional.
	Client         llm.Client
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// AllowLocalSources accepts filesystem paths in JSON requests. When
	// false only http(s) URLs and uploads are processed.
	AllowLocalSources bool
}

// Server serves the pipeline API.
type Server struct {
	opts    Options
	health  *Checker
	handler http.Handler
	logger  *slog.Logger
}

// New creates a Server and builds its routes.
func New(opts Options) *Server {
	s := &Server{
		opts:   opts,
		health: NewChecker(5 * time.Second),
		logger: slog.Default().With("component", "server"),
	}
	if opts.Client != nil {
		s.health.Register("llm", ErrorCheck(func(ctx context.Context) error {
			return llm.CheckReady(ctx, opts.Client)
		}))
	}
	s.handler = s.routes()
	return s
}

// Health returns the readiness checker so callers can register more checks.
func (s *Server) Health() *Checker { return s.health }

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	pipeline := func(target workflow.Target) http.Handler {
		return chain(s.handleRun(target), Timeout(s.opts.RequestTimeout), MaxBody(s.opts.MaxBodyBytes))
	}
	mux.Handle("POST /generate", pipeline(workflow.TargetTutorial))
	mux.Handle("POST /generateOutline", pipeline(workflow.TargetOutline))
	mux.Handle("POST /generateDraft", pipeline(workflow.TargetDraft))

	mux.HandleFunc("GET /health/live", s.health.LiveHandler())
	mux.HandleFunc("GET /health/ready", s.health.ReadyHandler())
	mux.Handle("GET /metrics", s.opts.Metrics.Handler())

	return chain(mux, RequestID(), AccessLog(), Metrics(s.opts.Metrics))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
