// Package extract implements the Extractor interface.
// It isolates the main content from a full HTML page by:
//  1. Removing noise elements (nav, footer, scripts, forms, etc.)
//  2. Finding the best content container (<main>, <article>, [role=main] or <body>)
//
// Images are kept so the parser can emit image blocks for them.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// noise matches elements that contribute no meaningful tutorial content.
var noise = cascadia.MustCompile(strings.Join([]string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header", "aside",
	"iframe", "video", "audio", "canvas",
	"form", "button", "input", "select", "textarea",
	".sidebar", ".menu", ".navigation", ".ads", ".advertisement", ".cookie-banner",
	"[aria-hidden=true]",
}, ", "))

// containers are tried in priority order.
var containers = []cascadia.Selector{
	cascadia.MustCompile("main"),
	cascadia.MustCompile("article"),
	cascadia.MustCompile("[role=main]"),
	cascadia.MustCompile("body"),
}

// HTMLExtractor strips noise from HTML and returns the main content fragment.
type HTMLExtractor struct{}

// New creates an HTMLExtractor.
func New() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract takes raw HTML and returns a cleaned HTML fragment containing
// only the main content.
func (e *HTMLExtractor) Extract(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	doc.FindMatcher(noise).Remove()

	// Decorative images carry nothing worth captioning.
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if role, _ := img.Attr("role"); role == "presentation" {
			img.Remove()
		}
	})

	var content *goquery.Selection
	for _, m := range containers {
		sel := doc.FindMatcher(m)
		if sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		return "", fmt.Errorf("no content container found in HTML")
	}

	result, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("serializing content: %w", err)
	}
	return result, nil
}
