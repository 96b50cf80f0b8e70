// Package normalize implements the Normalizer interface.
// It converts cleaned HTML into Markdown, which serves as the
// canonical intermediate format for block splitting.
package normalize

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/dom"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/tutorialpipe/core/fetch"
)

// lazySrcAttrs are attributes lazy-loading scripts use in place of src.
var lazySrcAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// MarkdownNormalizer converts HTML to Markdown using html-to-markdown.
type MarkdownNormalizer struct{}

// New creates a MarkdownNormalizer.
func New() *MarkdownNormalizer {
	return &MarkdownNormalizer{}
}

// Normalize converts a cleaned HTML fragment into Markdown. Image sources
// are made absolute against baseURL so image blocks can be fetched later.
func (n *MarkdownNormalizer) Normalize(input string, baseURL string) (string, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	resolveImages(doc, baseURL)

	var opts []converter.ConvertOptionFunc
	if baseURL != "" {
		opts = append(opts, converter.WithDomain(baseURL))
	}
	markdown, err := htmltomarkdown.ConvertNode(doc, opts...)
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return string(markdown), nil
}

// resolveImages rewrites every <img> to carry an absolute src. Images with
// no usable source are dropped.
func resolveImages(doc *html.Node, baseURL string) {
	imgs := dom.FindAllNodes(doc, func(node *html.Node) bool {
		return dom.NodeName(node) == "img"
	})
	for _, img := range imgs {
		src := dom.GetAttributeOr(img, "src", "")
		for _, attr := range lazySrcAttrs {
			if src != "" && !strings.HasPrefix(src, "data:image/gif") {
				break
			}
			src = dom.GetAttributeOr(img, attr, src)
		}
		if strings.TrimSpace(src) == "" {
			if img.Parent != nil {
				img.Parent.RemoveChild(img)
			}
			continue
		}
		setAttr(img, "src", fetch.ResolveReference(baseURL, src))
	}
}

func setAttr(node *html.Node, key, val string) {
	for i := range node.Attr {
		if node.Attr[i].Key == key {
			node.Attr[i].Val = val
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: val})
}
