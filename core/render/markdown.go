// Package render provides output renderers for pipeline results.
// This file implements the Markdown renderer, which is a passthrough of the
// most complete artifact of the run.
package render

import (
	"github.com/gaurav-prasanna/tutorialpipe/core"
)

// MarkdownRenderer writes the run's Markdown as-is.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render returns the tutorial, draft or outline Markdown, whichever is the
// furthest stage the run reached.
func (r *MarkdownRenderer) Render(res *core.Result) ([]byte, error) {
	md := res.Markdown()
	if md != "" && md[len(md)-1] != '\n' {
		md += "\n"
	}
	return []byte(md), nil
}

// Extension returns the file extension for Markdown output.
func (r *MarkdownRenderer) Extension() string {
	return ".md"
}
