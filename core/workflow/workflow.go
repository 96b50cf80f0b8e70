// Package workflow runs the pipeline stages in order and tracks the run's
// state. Every entry point retrieves, parses and analyzes from scratch.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/events"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
)

// State is a step of a pipeline run.
type State int

const (
	Idle State = iota
	Retrieving
	Parsing
	Analyzing
	Structuring
	Generating
	Refining
	Done
	Failed
)

var stateNames = [...]string{"Idle", "Retrieving", "Parsing", "Analyzing", "Structuring", "Generating", "Refining", "Done", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Target is the last artifact a run produces.
type Target string

const (
	TargetOutline  Target = "outline"
	TargetDraft    Target = "draft"
	TargetTutorial Target = "tutorial"
)

// ParseTarget maps a CLI or API name to a Target.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "outline":
		return TargetOutline, nil
	case "draft":
		return TargetDraft, nil
	case "", "full", "tutorial":
		return TargetTutorial, nil
	}
	return "", fmt.Errorf("%w: unknown stage %q (want outline, draft or full)", core.ErrInvalidInput, s)
}

// Uploader is implemented by retrievers that can take ownership of an
// uploaded file.
type Uploader interface {
	Adopt(ctx context.Context, path, name string) (*core.RawSource, error)
}

// Options wires the stages of a Workflow. Events and Metrics are optional.
type Options struct {
	Retriever core.Retriever
	Parser    core.Parser
	Analyzer  core.Analyzer
	Designer  core.Designer
	Generator core.Generator
	Refiner   core.Refiner
	Events    events.Sink
	Metrics   *metrics.Metrics
}

// Workflow orchestrates a pipeline run.
type Workflow struct {
	opts Options
}

// New creates a Workflow.
func New(opts Options) *Workflow {
	if opts.Events == nil {
		opts.Events = events.Discard{}
	}
	return &Workflow{opts: opts}
}

// Outline retrieves, parses and analyzes source and returns its outline.
func (w *Workflow) Outline(ctx context.Context, source string) (*core.Result, error) {
	return w.Run(ctx, source, TargetOutline)
}

// Draft runs the pipeline through generation.
func (w *Workflow) Draft(ctx context.Context, source string) (*core.Result, error) {
	return w.Run(ctx, source, TargetDraft)
}

// Tutorial runs every stage.
func (w *Workflow) Tutorial(ctx context.Context, source string) (*core.Result, error) {
	return w.Run(ctx, source, TargetTutorial)
}

// Run processes source up to target.
func (w *Workflow) Run(ctx context.Context, source string, target Target) (*core.Result, error) {
	return w.run(ctx, source, target, func(ctx context.Context) (*core.RawSource, error) {
		return w.opts.Retriever.Retrieve(ctx, source)
	})
}

// RunUpload processes an uploaded file stored at path. The file is owned
// by the run and removed when it ends.
func (w *Workflow) RunUpload(ctx context.Context, path, name string, target Target) (*core.Result, error) {
	up, ok := w.opts.Retriever.(Uploader)
	if !ok {
		return nil, fmt.Errorf("%w: uploads are not supported by this retriever", core.ErrInvalidInput)
	}
	return w.run(ctx, name, target, func(ctx context.Context) (*core.RawSource, error) {
		return up.Adopt(ctx, path, name)
	})
}

func (w *Workflow) run(ctx context.Context, source string, target Target, retrieve func(context.Context) (*core.RawSource, error)) (*core.Result, error) {
	r := &run{
		w:      w,
		id:     uuid.NewString(),
		source: source,
		target: target,
		state:  Idle,
		since:  time.Now(),
	}
	ctx = logger.WithRunID(ctx, r.id)
	r.log = logger.FromContext(ctx).With("component", "workflow", "source", source, "target", target)
	r.log.Info("run started")
	res := &core.Result{RunID: r.id, Source: source}

	r.enter(ctx, Retrieving)
	raw, err := retrieve(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	defer w.opts.Retriever.Release(raw)

	r.enter(ctx, Parsing)
	parsed, err := w.opts.Parser.Parse(ctx, raw)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	res.Blocks = parsed.Blocks

	r.enter(ctx, Analyzing)
	insights, err := w.opts.Analyzer.Analyze(ctx, parsed)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	res.Insights = insights.Insights

	r.enter(ctx, Structuring)
	outline, err := w.opts.Designer.Design(ctx, insights)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	res.Outline = outline
	if target == TargetOutline {
		return r.finish(ctx, res), nil
	}

	r.enter(ctx, Generating)
	draft, err := w.opts.Generator.Generate(ctx, outline, insights)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	res.Draft = draft
	if target == TargetDraft {
		return r.finish(ctx, res), nil
	}

	r.enter(ctx, Refining)
	refined, err := w.opts.Refiner.Refine(ctx, draft)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	res.Tutorial = refined
	return r.finish(ctx, res), nil
}

// run tracks the state of one pipeline execution.
type run struct {
	w       *Workflow
	id      string
	source  string
	target  Target
	state   State
	since   time.Time
	timings []core.StageTiming
	log     *slog.Logger
}

// transition moves to next and publishes the change.
func (r *run) transition(ctx context.Context, next State, status core.Status, cause error) {
	now := time.Now()
	spent := now.Sub(r.since)
	if r.state != Idle {
		r.timings = append(r.timings, core.StageTiming{Stage: r.state.String(), Duration: spent})
		r.w.opts.Metrics.ObserveStage(r.state.String(), spent)
	}
	e := events.Event{
		RunID:      r.id,
		Source:     r.source,
		From:       r.state.String(),
		To:         next.String(),
		Status:     string(status),
		DurationMS: spent.Milliseconds(),
		At:         now.UTC(),
	}
	if cause != nil {
		e.Err = cause.Error()
	}
	r.w.opts.Events.Publish(ctx, e)
	r.state, r.since = next, now
}

func (r *run) enter(ctx context.Context, next State) {
	r.transition(ctx, next, "", nil)
	r.log.Debug("stage started", "stage", next)
}

func (r *run) fail(ctx context.Context, err error) error {
	stage := r.state
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%s interrupted: %w", stage, err)
	}
	r.transition(ctx, Failed, "", err)
	r.w.opts.Metrics.ObserveRun(string(r.target), "failed")
	r.log.Error("run failed", "stage", stage, "error", err)
	return &core.StageError{Stage: stage.String(), Err: err}
}

func (r *run) finish(ctx context.Context, res *core.Result) *core.Result {
	status := res.Status()
	r.transition(ctx, Done, status, nil)
	res.Timings = r.timings

	outcome := "ok"
	if status.Degraded() {
		outcome = "degraded"
	}
	r.w.opts.Metrics.ObserveRun(string(r.target), outcome)
	r.log.Info("run completed", "status", status, "blocks", len(res.Blocks), "insights", len(res.Insights))
	return res
}
