package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gaurav-prasanna/tutorialpipe/config"
	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
	"github.com/gaurav-prasanna/tutorialpipe/resilience"
)

// New builds the backend selected by cfg and wraps it with the per-call
// timeout, a circuit breaker, metrics and the shared limiter.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, limiter *Limiter) (Client, error) {
	base, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}
	cb := resilience.NewCircuitBreaker("llm-"+base.Name(), resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		OnStateChange: func(name string, to resilience.State) {
			m.SetBreakerState(name, int(to))
		},
	})
	return Chain(base,
		WithTimeout(cfg.LLM.Timeout),
		WithBreaker(cb),
		WithMetrics(m),
		WithLimiter(limiter),
	), nil
}

func newBackend(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.Backend() {
	case config.BackendMock:
		return NewMock(), nil
	case config.BackendOllama:
		return NewOllama(OllamaOptions{
			BaseURL:     cfg.Ollama.BaseURL,
			Model:       cfg.ModelID(),
			VisionModel: cfg.Vision.Model,
			AutoPull:    cfg.Ollama.AutoPull,
			HTTPClient:  &http.Client{},
		}), nil
	case config.BackendWatsonx:
		return NewWatsonx(WatsonxOptions{
			APIKey:      cfg.Watsonx.APIKey,
			ProjectID:   cfg.Watsonx.ProjectID,
			BaseURL:     cfg.Watsonx.APIURL,
			IAMURL:      cfg.Watsonx.IAMURL,
			Model:       cfg.ModelID(),
			VisionModel: cfg.Vision.Model,
		})
	case config.BackendOpenAI:
		return NewOpenAI(OpenAIOptions{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.ModelID(),
			VisionModel: cfg.Vision.Model,
		})
	case config.BackendGemini:
		return NewGemini(ctx, cfg.Gemini.APIKey, cfg.ModelID(), cfg.Vision.Model)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend())
	}
}
