// Package review implements the Refiner interface. The refiner may polish
// wording but must keep the draft's sections in order; otherwise the draft
// passes through unchanged.
package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/core/mdcheck"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
)

// Options configures a Reviewer.
type Options struct {
	Client   llm.Client
	Prompts  *prompt.Catalog
	Metrics  *metrics.Metrics
	Disabled bool
}

// Reviewer refines tutorial drafts.
type Reviewer struct {
	client   llm.Client
	prompts  *prompt.Catalog
	metrics  *metrics.Metrics
	disabled bool
}

// New creates a Reviewer.
func New(opts Options) *Reviewer {
	r := &Reviewer{client: opts.Client, prompts: opts.Prompts, metrics: opts.Metrics, disabled: opts.Disabled}
	if r.prompts == nil {
		r.prompts = prompt.Default()
	}
	return r
}

// Refine returns the polished tutorial, or the draft itself with status
// unrefined when refinement is disabled, fails or is rejected. Placeholder
// drafts are never sent to the model.
func (r *Reviewer) Refine(ctx context.Context, draft *core.Draft) (*core.Refined, error) {
	log := logger.FromContext(ctx).With("component", "reviewer")
	passThrough := &core.Refined{
		Envelope: draft.Next(core.RoleRefined),
		Markdown: draft.Markdown,
		Status:   core.StatusUnrefined,
	}
	switch {
	case r.disabled:
		log.Info("refinement disabled, passing draft through")
		return passThrough, nil
	case draft.Status == core.StatusPlaceholder:
		passThrough.Status = core.StatusPlaceholder
		return passThrough, nil
	}

	md, err := r.refine(ctx, draft.Markdown)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		log.Warn("keeping unrefined draft", "error", fmt.Errorf("%w: refine: %w", core.ErrGeneration, err))
		r.metrics.ObserveFallback("refine")
		return passThrough, nil
	}

	status := core.StatusRefined
	if llm.IsMock(r.client) {
		status = core.StatusRefinedMock
	}
	log.Info("draft refined", "status", status)
	return &core.Refined{Envelope: draft.Next(core.RoleRefined), Markdown: md, Status: status}, nil
}

func (r *Reviewer) refine(ctx context.Context, draft string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("no model client configured")
	}
	resp, err := r.client.Chat(ctx, llm.Prompt{
		Task:   llm.TaskRefine,
		System: r.prompts.Refiner.System,
		User:   prompt.RefineInput(draft),
	})
	if err != nil {
		return "", err
	}
	// Models sometimes echo the markers back.
	if inner, ok := prompt.ExtractDraft(resp); ok {
		resp = inner
	}
	md := mdcheck.StripFence(strings.TrimSpace(resp))
	if err := Accept(draft, md); err != nil {
		return "", err
	}
	return md + "\n", nil
}

// Accept reports why refined cannot replace draft, or nil if it can.
func Accept(draft, refined string) error {
	got := mdcheck.Inspect(refined)
	if !got.Usable() {
		return fmt.Errorf("refined output is empty or has no headings")
	}
	want := mdcheck.Inspect(draft).Sections
	if !mdcheck.PreservesOrder(want, got.Sections) {
		return fmt.Errorf("refined output changed the section order: want %v, got %v", want, got.Sections)
	}
	return nil
}
