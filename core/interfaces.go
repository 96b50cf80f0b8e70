package core

import "context"

// Retriever fetches a source and owns any temporary files backing it.
type Retriever interface {
	Retrieve(ctx context.Context, source string) (*RawSource, error)
	// Release deletes temporary resources registered for raw. It is safe to
	// call more than once.
	Release(raw *RawSource)
}

// Extractor pulls the main content from raw HTML, stripping noise.
type Extractor interface {
	Extract(html string) (string, error)
}

// Normalizer converts cleaned HTML into Markdown (the canonical format).
// Relative references are resolved against baseURL when it is set.
type Normalizer interface {
	Normalize(html string, baseURL string) (string, error)
}

// Parser converts a retrieved source into ordered content blocks.
type Parser interface {
	Parse(ctx context.Context, raw *RawSource) (*ParsedBlocks, error)
}

// Analyzer produces one insight per block, in block order.
type Analyzer interface {
	Analyze(ctx context.Context, parsed *ParsedBlocks) (*AnalyzedInsights, error)
}

// Designer buckets insights into the fixed outline slots.
type Designer interface {
	Design(ctx context.Context, insights *AnalyzedInsights) (*Outline, error)
}

// Generator expands an outline into a Markdown draft.
type Generator interface {
	Generate(ctx context.Context, outline *Outline, insights *AnalyzedInsights) (*Draft, error)
}

// Refiner polishes a draft without reordering its sections.
type Refiner interface {
	Refine(ctx context.Context, draft *Draft) (*Refined, error)
}

// Renderer converts a run result into a final output format.
type Renderer interface {
	Render(res *Result) ([]byte, error)
	// Extension returns the file extension for this renderer (e.g. ".md", ".pdf").
	Extension() string
}
