// Package mdcheck inspects model-written Markdown with goldmark so stages
// can decide whether output is usable.
package mdcheck

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Report summarizes the structure of a Markdown document.
type Report struct {
	Headings int
	// Sections lists the text of level-2 headings in document order.
	Sections []string
	// Fenced reports whether the document has any fenced code block.
	Fenced bool
	Empty  bool
}

// Inspect parses s and reports its structure.
func Inspect(s string) Report {
	r := Report{Empty: strings.TrimSpace(s) == ""}
	if r.Empty {
		return r
	}
	source := []byte(s)
	doc := md.Parser().Parse(text.NewReader(source))
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			r.Headings++
			if node.Level == 2 {
				r.Sections = append(r.Sections, headingText(node, source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			r.Fenced = true
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return r
}

// Usable reports whether the document is non-empty and has a heading.
func (r Report) Usable() bool {
	return !r.Empty && r.Headings > 0
}

func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return strings.TrimSpace(b.String())
}

// StripFence removes a fence wrapping the whole document, as models often
// return ```markdown ... ```. Inner fences are left alone.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") {
		return s
	}
	first, rest, ok := strings.Cut(t, "\n")
	if !ok {
		return s
	}
	info := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(first, "```")))
	if info != "" && info != "markdown" && info != "md" {
		return s
	}
	body := strings.TrimSuffix(strings.TrimRight(rest, " \t\n"), "```")
	return strings.TrimSpace(body)
}

// PreservesOrder reports whether got contains every section of want in the
// same relative order. Extra sections in got are allowed. Comparison is
// case-insensitive.
func PreservesOrder(want, got []string) bool {
	j := 0
	for _, w := range want {
		found := false
		for j < len(got) {
			match := strings.EqualFold(strings.TrimSpace(got[j]), strings.TrimSpace(w))
			j++
			if match {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
