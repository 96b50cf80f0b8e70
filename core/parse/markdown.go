package parse

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

// imagePlaceholder is emitted by docling for pictures it did not export.
const imagePlaceholder = "<!-- image -->"

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// SplitMarkdown splits a Markdown document into ordered content blocks, one
// per top-level construct.
func SplitMarkdown(src string) []core.Block {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var blocks []core.Block
	add := func(b core.Block) {
		if strings.TrimSpace(b.Text) == "" && b.Kind != core.KindImage {
			return
		}
		b.Order = len(blocks)
		blocks = append(blocks, b)
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			add(core.Block{Text: inlineText(node, source), Kind: core.KindText, Level: node.Level})
		case *ast.FencedCodeBlock:
			add(core.Block{
				Text:     strings.TrimRight(linesText(node, source), "\n"),
				Kind:     core.KindCode,
				Language: string(node.Language(source)),
			})
		case *ast.CodeBlock:
			add(core.Block{Text: strings.TrimRight(linesText(node, source), "\n"), Kind: core.KindCode})
		case *east.Table:
			add(core.Block{Text: span(node, source), Kind: core.KindTable})
		case *ast.Paragraph:
			if img := soleImage(node, source); img != nil {
				add(core.Block{
					Text:   inlineText(img, source),
					Kind:   core.KindImage,
					Source: string(img.Destination),
				})
				continue
			}
			add(core.Block{Text: strings.TrimSpace(linesText(node, source)), Kind: core.KindText})
		case *ast.HTMLBlock:
			raw := linesText(node, source)
			if strings.Contains(raw, imagePlaceholder) {
				add(core.Block{Kind: core.KindImage})
			}
		case *ast.List, *ast.Blockquote:
			add(core.Block{Text: span(node, source), Kind: core.KindText})
		case *ast.ThematicBreak:
		default:
			add(core.Block{Text: span(node, source), Kind: core.KindText})
		}
	}
	return blocks
}

// linesText concatenates the raw source lines of a block node.
func linesText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

// inlineText renders the plain text of n's inline children.
func inlineText(n ast.Node, source []byte) string {
	var b bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.CodeSpan:
			for cc := t.FirstChild(); cc != nil; cc = cc.NextSibling() {
				if txt, ok := cc.(*ast.Text); ok {
					b.Write(txt.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// span returns the full source lines covered by n, markers included. It is
// used for containers (lists, quotes, tables) whose raw Markdown is the
// most faithful text for the model.
func span(n ast.Node, source []byte) string {
	start, stop := -1, -1
	grow := func(s, e int) {
		if start < 0 || s < start {
			start = s
		}
		if e > stop {
			stop = e
		}
	}
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if c.Type() == ast.TypeBlock {
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				grow(seg.Start, seg.Stop)
			}
		}
		if t, ok := c.(*ast.Text); ok {
			grow(t.Segment.Start, t.Segment.Stop)
		}
		return ast.WalkContinue, nil
	})
	if start < 0 {
		return ""
	}
	if stop > start && source[stop-1] == '\n' {
		stop--
	}
	for start > 0 && source[start-1] != '\n' {
		start--
	}
	for stop < len(source) && source[stop] != '\n' {
		stop++
	}
	return strings.TrimSpace(string(source[start:stop]))
}

// soleImage returns the image when a paragraph holds nothing else, possibly
// wrapped in a link.
func soleImage(p *ast.Paragraph, source []byte) *ast.Image {
	var img *ast.Image
	for c := p.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Image:
			if img != nil {
				return nil
			}
			img = node
		case *ast.Link:
			inner, ok := node.FirstChild().(*ast.Image)
			if !ok || node.ChildCount() != 1 || img != nil {
				return nil
			}
			img = inner
		case *ast.Text:
			if len(bytes.TrimSpace(node.Segment.Value(source))) > 0 {
				return nil
			}
		default:
			return nil
		}
	}
	return img
}
