package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gaurav-prasanna/tutorialpipe/config"
	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/analyze"
	"github.com/gaurav-prasanna/tutorialpipe/core/chunk"
	"github.com/gaurav-prasanna/tutorialpipe/core/fetch"
	"github.com/gaurav-prasanna/tutorialpipe/core/generate"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/core/output"
	"github.com/gaurav-prasanna/tutorialpipe/core/parse"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
	"github.com/gaurav-prasanna/tutorialpipe/core/review"
	"github.com/gaurav-prasanna/tutorialpipe/core/structure"
	"github.com/gaurav-prasanna/tutorialpipe/core/workflow"
	"github.com/gaurav-prasanna/tutorialpipe/events"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
)

const eventBufferSize = 256

// pipeline holds a configured workflow and the resources it owns.
type pipeline struct {
	workflow  *workflow.Workflow
	client    llm.Client
	retriever *fetch.Retriever
	events    events.Sink
	metrics   *metrics.Metrics
}

// buildPipeline wires every stage from cfg. m may be nil.
func buildPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*pipeline, error) {
	prompts := prompt.Default()
	if cfg.Prompts.File != "" {
		p, err := prompt.Load(cfg.Prompts.File)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
		}
		prompts = p
	}

	limiter := llm.NewLimiter(cfg.LLM.MaxConcurrency, cfg.LLM.MaxQPS)
	client, err := llm.New(ctx, cfg, m, limiter)
	if err != nil {
		return nil, err
	}

	retriever := fetch.New(fetch.Options{
		Timeout:     cfg.Fetch.Timeout,
		MaxAttempts: cfg.Fetch.MaxAttempts,
	})

	parseOpts := parse.Options{Chunker: chunk.New(cfg.Chunk.MaxWords)}
	if cfg.Docling.URL != "" {
		parseOpts.Docling = parse.NewDocling(cfg.Docling.URL, &http.Client{Timeout: cfg.LLM.Timeout})
	}
	if cfg.Docling.OutputDir != "" {
		w, err := output.New(cfg.Docling.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
		}
		parseOpts.Artifacts = w
	}

	sink := events.Sink(events.NewLogSink())
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafka := events.NewKafkaSink(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), eventBufferSize)
		sink = events.Multi{sink, kafka}
	}

	wf := workflow.New(workflow.Options{
		Retriever: retriever,
		Parser:    parse.New(parseOpts),
		Analyzer: analyze.New(analyze.Options{
			Client:         client,
			Prompts:        prompts,
			Images:         retriever,
			MaxConcurrency: cfg.LLM.MaxConcurrency,
			Metrics:        m,
		}),
		Designer:  structure.New(structure.Options{Client: client, Prompts: prompts, Metrics: m}),
		Generator: generate.New(generate.Options{Client: client, Prompts: prompts, Metrics: m}),
		Refiner: review.New(review.Options{
			Client:   client,
			Prompts:  prompts,
			Metrics:  m,
			Disabled: !cfg.Refine.Enabled,
		}),
		Events:  sink,
		Metrics: m,
	})

	return &pipeline{workflow: wf, client: client, retriever: retriever, events: sink, metrics: m}, nil
}

// Close flushes events and releases temporary files and backend clients.
func (p *pipeline) Close() error {
	return errors.Join(p.events.Close(), p.retriever.Close(), closeClient(p.client))
}

// closeClient closes the innermost backend if it holds connections.
func closeClient(c llm.Client) error {
	for c != nil {
		if closer, ok := c.(io.Closer); ok {
			return closer.Close()
		}
		u, ok := c.(interface{ Unwrap() llm.Client })
		if !ok {
			return nil
		}
		c = u.Unwrap()
	}
	return nil
}
