// Package analyze implements the Analyzer interface: one classify call per
// block, fanned out under a concurrency ceiling.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
)

const (
	fallbackSummaryLen = 100
	defaultConcurrency = 4
)

// ImageLoader loads the bytes of an image block for captioning.
type ImageLoader interface {
	FetchImage(ctx context.Context, ref string) (llm.Image, error)
}

// Options configures a ContentAnalyzer.
type Options struct {
	Client  llm.Client
	Prompts *prompt.Catalog
	// Images is optional. Without it image blocks are classified from
	// their alt text alone.
	Images         ImageLoader
	MaxConcurrency int
	Metrics        *metrics.Metrics
}

// ContentAnalyzer classifies blocks into insights.
type ContentAnalyzer struct {
	client      llm.Client
	prompts     *prompt.Catalog
	images      ImageLoader
	concurrency int
	metrics     *metrics.Metrics
}

// New creates a ContentAnalyzer.
func New(opts Options) *ContentAnalyzer {
	a := &ContentAnalyzer{
		client:      opts.Client,
		prompts:     opts.Prompts,
		images:      opts.Images,
		concurrency: opts.MaxConcurrency,
		metrics:     opts.Metrics,
	}
	if a.prompts == nil {
		a.prompts = prompt.Default()
	}
	if a.concurrency <= 0 {
		a.concurrency = defaultConcurrency
	}
	return a
}

// Analyze returns exactly one insight per block, in block order. Failed or
// malformed classifications are replaced by fallback insights; only
// cancellation of ctx fails the stage.
func (a *ContentAnalyzer) Analyze(ctx context.Context, parsed *core.ParsedBlocks) (*core.AnalyzedInsights, error) {
	log := logger.FromContext(ctx).With("component", "analyzer")
	insights := make([]core.Insight, len(parsed.Blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, block := range parsed.Blocks {
		g.Go(func() error {
			insights[i] = a.analyzeBlock(gctx, i, block, log)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fallbacks := 0
	for _, in := range insights {
		if in.Fallback {
			fallbacks++
		}
	}
	log.Info("blocks analyzed", "blocks", len(insights), "fallbacks", fallbacks)

	out := &core.AnalyzedInsights{
		Envelope: parsed.Next(core.RoleInsights),
		Insights: insights,
		Blocks:   parsed.Blocks,
	}
	out.Attrs["fallbacks"] = fmt.Sprint(fallbacks)
	return out, nil
}

func (a *ContentAnalyzer) analyzeBlock(ctx context.Context, idx int, b core.Block, log *slog.Logger) core.Insight {
	var caption string
	if b.Kind == core.KindImage {
		caption = a.caption(ctx, b, log)
	}

	in := core.Insight{BlockRef: idx, Kind: b.Kind, Caption: caption}
	resp, err := a.client.Chat(ctx, llm.Prompt{
		Task:   llm.TaskClassify,
		System: a.prompts.Analyzer.System,
		User:   prompt.ClassifyInput(b, caption),
	})
	if err == nil {
		in.Role, in.Summary, err = ParseResponse(resp)
	}
	if err != nil {
		itemErr := fmt.Errorf("%w: block %d: %w", core.ErrAnalysisItem, idx, err)
		log.Warn("using fallback insight", "block", idx, "error", itemErr)
		a.metrics.ObserveFallback("analyze")
		in.Role = core.RoleOther
		in.Summary = fallbackSummary(b, caption)
		in.Fallback = true
		return in
	}
	if in.Summary == "" {
		in.Summary = fallbackSummary(b, caption)
	}
	return in
}

// caption describes an image block through the vision capability. A failed
// caption is logged and classification proceeds on the alt text.
func (a *ContentAnalyzer) caption(ctx context.Context, b core.Block, log *slog.Logger) string {
	if a.images == nil || b.Source == "" {
		return ""
	}
	img, err := a.images.FetchImage(ctx, b.Source)
	if err != nil {
		log.Warn("loading image", "source", b.Source, "error", err)
		return ""
	}
	caption, err := a.client.Caption(ctx, img, a.prompts.Analyzer.Caption)
	if err != nil {
		log.Warn("captioning image", "source", b.Source, "error", err)
		return ""
	}
	return strings.TrimSpace(caption)
}

func fallbackSummary(b core.Block, caption string) string {
	text := strings.Join(strings.Fields(b.Text), " ")
	switch {
	case text != "":
		return prompt.Truncate(text, fallbackSummaryLen)
	case caption != "":
		return prompt.Truncate(caption, fallbackSummaryLen)
	default:
		return "[" + string(b.Kind) + "]"
	}
}
