// Package generate implements the Generator interface: one model call that
// expands the outline into a Markdown tutorial draft.
package generate

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

// PlaceholderNotice marks drafts produced without usable model output.
const PlaceholderNotice = "> **Draft unavailable.** The model returned no usable content for this tutorial. The outline is shown instead."

// Options configures a MarkdownGenerator.
type Options struct {
	Client  llm.Client
	Prompts *prompt.Catalog
	Metrics *metrics.Metrics
}

// MarkdownGenerator writes tutorial drafts.
type MarkdownGenerator struct {
	client  llm.Client
	prompts *prompt.Catalog
	metrics *metrics.Metrics
}

// New creates a MarkdownGenerator.
func New(opts Options) *MarkdownGenerator {
	g := &MarkdownGenerator{client: opts.Client, prompts: opts.Prompts, metrics: opts.Metrics}
	if g.prompts == nil {
		g.prompts = prompt.Default()
	}
	return g
}

// Generate returns a draft covering the outline. Unusable model output is
// replaced by a placeholder draft; only cancellation of ctx fails the stage.
func (g *MarkdownGenerator) Generate(ctx context.Context, outline *core.Outline, insights *core.AnalyzedInsights) (*core.Draft, error) {
	log := logger.FromContext(ctx).With("component", "generator")
	draft := &core.Draft{Envelope: outline.Next(core.RoleDraft)}

	var blocks []core.Block
	var ins []core.Insight
	if insights != nil {
		blocks, ins = insights.Blocks, insights.Insights
	}

	md, err := g.draft(ctx, outline, ins, blocks)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		log.Warn("emitting placeholder draft", "error", fmt.Errorf("%w: %w", core.ErrGeneration, err))
		g.metrics.ObserveFallback("generate")
		draft.Markdown = Placeholder(outline)
		draft.Status = core.StatusPlaceholder
		return draft, nil
	}

	draft.Markdown = md
	draft.Status = core.StatusGenerated
	log.Info("draft generated", "bytes", len(md))
	return draft, nil
}

func (g *MarkdownGenerator) draft(ctx context.Context, outline *core.Outline, insights []core.Insight, blocks []core.Block) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("no model client configured")
	}
	resp, err := g.client.Chat(ctx, llm.Prompt{
		Task:   llm.TaskGenerate,
		System: g.prompts.Generator.System,
		User:   prompt.GenerateInput(outline, insights, blocks),
	})
	if err != nil {
		return "", err
	}
	md := mdcheck.StripFence(llm.CleanResponse(resp))
	report := mdcheck.Inspect(md)
	if !report.Usable() {
		return "", fmt.Errorf("model output has no Markdown headings")
	}
	if !report.Fenced {
		md = appendCodeListings(md, blocks)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// appendCodeListings adds the source's code blocks verbatim when the model
// dropped them.
func appendCodeListings(md string, blocks []core.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Kind != core.KindCode {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("\n\n## Code Listings\n")
		}
		b.WriteString("\n")
		b.WriteString(prompt.Fence(blk.Text, blk.Language))
		b.WriteString("\n")
	}
	return strings.TrimRight(md, "\n") + b.String()
}

// Placeholder renders a clearly marked draft from the outline alone.
func Placeholder(outline *core.Outline) string {
	body := outline.Markdown()
	body = strings.TrimPrefix(body, "# Tutorial Outline\n")
	return "# Tutorial (placeholder)\n\n" + PlaceholderNotice + "\n" + body
}
