// Package render: JSON renderer.
// Emits the run's outline, Markdown and insights together with a structural
// summary of the Markdown (headings, code blocks, tables).
package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

// Document is the JSON shape of a run.
type Document struct {
	RunID     string             `json:"run_id"`
	Source    string             `json:"source"`
	Status    core.Status        `json:"status,omitempty"`
	Outline   *core.Outline      `json:"outline"`
	Markdown  string             `json:"markdown"`
	Insights  []core.Insight     `json:"insights"`
	Structure Structure          `json:"structure"`
	Timings   []core.StageTiming `json:"timings,omitempty"`
}

// Structure summarizes the Markdown.
type Structure struct {
	Headings   []Heading `json:"headings"`
	CodeBlocks int       `json:"code_blocks"`
	Tables     int       `json:"tables"`
}

// Heading is one Markdown heading.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// JSONRenderer produces structured JSON output.
type JSONRenderer struct{}

// NewJSONRenderer creates a JSONRenderer.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

// NewDocument builds the JSON document for res.
func NewDocument(res *core.Result) Document {
	md := res.Markdown()
	insights := res.Insights
	if insights == nil {
		insights = []core.Insight{}
	}
	return Document{
		RunID:    res.RunID,
		Source:   res.Source,
		Status:   res.Status(),
		Outline:  res.Outline,
		Markdown: md,
		Insights: insights,
		Structure: Structure{
			Headings:   extractHeadings(md),
			CodeBlocks: countCodeBlocks(md),
			Tables:     countTables(md),
		},
		Timings: res.Timings,
	}
}

// Render converts a run result into indented JSON.
func (r *JSONRenderer) Render(res *core.Result) ([]byte, error) {
	data, err := json.MarshalIndent(NewDocument(res), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Extension returns the file extension for JSON output.
func (r *JSONRenderer) Extension() string {
	return ".json"
}

// --- Markdown parsing helpers ---

var headingRegex = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

func extractHeadings(md string) []Heading {
	md = stripFencedCode(md)
	matches := headingRegex.FindAllStringSubmatch(md, -1)
	headings := make([]Heading, 0, len(matches))
	for _, m := range matches {
		headings = append(headings, Heading{
			Level: len(m[1]),
			Text:  strings.TrimSpace(m[2]),
		})
	}
	return headings
}

// stripFencedCode blanks fenced code so comment lines such as "# install"
// are not counted as headings.
func stripFencedCode(md string) string {
	var b strings.Builder
	inCode := false
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			b.WriteString("\n")
			continue
		}
		if !inCode {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// countCodeBlocks counts fenced code blocks (``` delimited).
func countCodeBlocks(md string) int {
	n := 0
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			n++
		}
	}
	return n / 2
}

// countTables counts Markdown tables by looking for separator rows (|---|).
var tableRowRegex = regexp.MustCompile(`(?m)^\|[-:| ]+\|$`)

func countTables(md string) int {
	return len(tableRowRegex.FindAllString(md, -1))
}
