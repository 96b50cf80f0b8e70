// Package parse implements the Parser interface. Every source format is
// converted to Markdown (or, for local PDF extraction, plain paragraphs)
// and split into ordered content blocks.
package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/chunk"
	"github.com/gaurav-prasanna/tutorialpipe/core/extract"
	"github.com/gaurav-prasanna/tutorialpipe/core/fetch"
	"github.com/gaurav-prasanna/tutorialpipe/core/normalize"
	"github.com/gaurav-prasanna/tutorialpipe/core/output"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
)

// Options configures a DocumentParser. Zero values select the local
// converters.
type Options struct {
	Extractor  core.Extractor
	Normalizer core.Normalizer
	Chunker    *chunk.Chunker
	// Docling, when set, converts PDFs and HTML remotely. Local converters
	// are used if it fails.
	Docling *Docling
	// Artifacts, when set, receives the intermediate Markdown and blocks.
	Artifacts *output.Writer
}

// DocumentParser converts retrieved sources into ordered blocks.
type DocumentParser struct {
	extractor  core.Extractor
	normalizer core.Normalizer
	chunker    *chunk.Chunker
	docling    *Docling
	artifacts  *output.Writer
}

// New creates a DocumentParser.
func New(opts Options) *DocumentParser {
	p := &DocumentParser{
		extractor:  opts.Extractor,
		normalizer: opts.Normalizer,
		chunker:    opts.Chunker,
		docling:    opts.Docling,
		artifacts:  opts.Artifacts,
	}
	if p.extractor == nil {
		p.extractor = extract.New()
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New()
	}
	if p.chunker == nil {
		p.chunker = chunk.New(0)
	}
	return p
}

// conversion is the intermediate result of one converter.
type conversion struct {
	converter string
	content   string
	blocks    []core.Block
}

// Parse converts raw into ordered blocks. It fails with core.ErrParse when
// a converter rejects the input or non-empty content yields no blocks.
func (p *DocumentParser) Parse(ctx context.Context, raw *core.RawSource) (*core.ParsedBlocks, error) {
	log := logger.FromContext(ctx).With("component", "parser", "format", raw.Format)

	var (
		conv     *conversion
		nonEmpty bool
		err      error
	)
	switch raw.Format {
	case core.FormatPDF:
		info, statErr := os.Stat(raw.Path)
		if statErr != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrParse, statErr)
		}
		nonEmpty = info.Size() > 0
		conv, err = p.parsePDF(ctx, raw, log)
	case core.FormatHTML:
		nonEmpty = strings.TrimSpace(raw.Text) != ""
		conv, err = p.parseHTML(ctx, raw, log)
	case core.FormatMarkdown:
		nonEmpty = strings.TrimSpace(raw.Text) != ""
		conv = &conversion{converter: "markdown", content: raw.Text, blocks: SplitMarkdown(raw.Text)}
	default:
		return nil, fmt.Errorf("%w: unsupported source format %q", core.ErrParse, raw.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrParse, err)
	}

	blocks := p.chunker.Split(conv.blocks)
	resolveImageSources(blocks, raw)
	if len(blocks) == 0 && nonEmpty {
		return nil, fmt.Errorf("%w: %s converter produced no blocks from non-empty content", core.ErrParse, conv.converter)
	}

	parsed := &core.ParsedBlocks{Envelope: raw.Next(core.RoleParsed), Blocks: blocks}
	parsed.Attrs["converter"] = conv.converter
	p.writeArtifacts(parsed, conv.content, log)
	log.Info("document parsed", "converter", conv.converter, "blocks", len(blocks))
	return parsed, nil
}

func (p *DocumentParser) parsePDF(ctx context.Context, raw *core.RawSource, log *slog.Logger) (*conversion, error) {
	if p.docling != nil {
		md, err := p.docling.ConvertFile(ctx, raw.Path)
		if err == nil {
			return &conversion{converter: "docling", content: md, blocks: SplitMarkdown(md)}, nil
		}
		log.Warn("docling conversion failed, using local PDF extraction", "error", err)
	}
	text, err := pdfText(raw.Path)
	if err != nil {
		return nil, err
	}
	return &conversion{converter: "pdf", content: text, blocks: pdfBlocks(text)}, nil
}

func (p *DocumentParser) parseHTML(ctx context.Context, raw *core.RawSource, log *slog.Logger) (*conversion, error) {
	if p.docling != nil {
		md, err := p.docling.Convert(ctx, "source.html", []byte(raw.Text))
		if err == nil {
			return &conversion{converter: "docling", content: md, blocks: SplitMarkdown(md)}, nil
		}
		log.Warn("docling conversion failed, using local HTML conversion", "error", err)
	}
	cleaned, err := p.extractor.Extract(raw.Text)
	if err != nil {
		return nil, fmt.Errorf("extracting content: %w", err)
	}
	md, err := p.normalizer.Normalize(cleaned, raw.URL)
	if err != nil {
		return nil, fmt.Errorf("normalizing content: %w", err)
	}
	return &conversion{converter: "html", content: md, blocks: SplitMarkdown(md)}, nil
}

// resolveImageSources makes image references loadable: relative to the
// page URL for remote sources, or to the file's directory for local ones.
func resolveImageSources(blocks []core.Block, raw *core.RawSource) {
	for i := range blocks {
		src := blocks[i].Source
		if blocks[i].Kind != core.KindImage || src == "" || fetch.IsURL(src) || strings.HasPrefix(src, "data:") {
			continue
		}
		switch {
		case raw.URL != "":
			blocks[i].Source = fetch.ResolveReference(raw.URL, src)
		case raw.Path == "" && !filepath.IsAbs(src) && !fetch.IsURL(raw.Source):
			blocks[i].Source = filepath.Join(filepath.Dir(raw.Source), src)
		}
	}
}

func (p *DocumentParser) writeArtifacts(parsed *core.ParsedBlocks, content string, log *slog.Logger) {
	if p.artifacts == nil {
		return
	}
	if _, err := p.artifacts.WriteArtifact(parsed.RunID, "content.md", []byte(content)); err != nil {
		log.Warn("writing parser artifact", "error", err)
	}
	data, err := json.MarshalIndent(parsed.Blocks, "", "  ")
	if err != nil {
		log.Warn("encoding blocks artifact", "error", err)
		return
	}
	if _, err := p.artifacts.WriteArtifact(parsed.RunID, "blocks.json", data); err != nil {
		log.Warn("writing parser artifact", "error", err)
	}
}
