// Package chunk splits oversized content blocks so each block fits
// comfortably in a single analysis prompt. Words approximate tokens.
package chunk

import (
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

// Chunker splits text into bounded word chunks.
type Chunker struct {
	MaxWords int
}

// New creates a Chunker with the given limit.
// Defaults to 400 if maxWords <= 0.
func New(maxWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = 400
	}
	return &Chunker{MaxWords: maxWords}
}

// Chunk splits text into pieces of at most MaxWords words. Paragraph breaks
// are preferred as split points; a single oversized paragraph is cut on
// word boundaries.
func (c *Chunker) Chunk(text string) []string {
	var chunks []string
	var cur []string
	curWords := 0
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n\n"))
			cur, curWords = nil, 0
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(words) > c.MaxWords {
			flush()
			for i := 0; i < len(words); i += c.MaxWords {
				end := min(i+c.MaxWords, len(words))
				chunks = append(chunks, strings.Join(words[i:end], " "))
			}
			continue
		}
		if curWords+len(words) > c.MaxWords {
			flush()
		}
		cur = append(cur, strings.TrimSpace(para))
		curWords += len(words)
	}
	flush()
	return chunks
}

// Split applies Chunk to every text block over the limit and renumbers
// Order densely. Code, table and image blocks are never split.
func (c *Chunker) Split(blocks []core.Block) []core.Block {
	out := make([]core.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind != core.KindText || len(strings.Fields(b.Text)) <= c.MaxWords {
			out = append(out, b)
			continue
		}
		for i, piece := range c.Chunk(b.Text) {
			nb := b
			nb.Text = piece
			if i > 0 {
				// Continuations are body text, not repeated headings.
				nb.Level = 0
			}
			out = append(out, nb)
		}
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}
