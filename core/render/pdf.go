// Package render: PDF renderer.
// Converts the run's Markdown into a styled PDF using gofpdf.
// Handles headings (variable font sizes), paragraphs, code blocks, and lists.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

var (
	numberedItem = regexp.MustCompile(`^\d+\.\s`)
	imageLine    = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)\s]+)[^)]*\)$`)
	tableDivider = regexp.MustCompile(`^\|[-:| ]+\|$`)
	italicRegex  = regexp.MustCompile(`(?:^|\s)\*([^*]+)\*(?:\s|$)`)
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	linkSyntax   = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]+\)`)
)

// PDFRenderer renders Markdown content as a PDF document.
type PDFRenderer struct{}

// NewPDFRenderer creates a PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render converts the run's Markdown into PDF bytes.
func (r *PDFRenderer) Render(res *core.Result) ([]byte, error) {
	md := res.Markdown()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	// Core fonts are cp1252; translate UTF-8 input.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(documentTitle(md, res.Source)), false)
	pdf.SetCreator("TutorialPipe", false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 5, tr("Source: "+res.Source), "", "L", false)
	if status := res.Status(); status != "" {
		pdf.MultiCell(0, 5, tr("Status: "+string(status)), "", "L", false)
	}
	if res.RunID != "" {
		pdf.MultiCell(0, 5, "Run: "+res.RunID, "", "L", false)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	lines := strings.Split(md, "\n")
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
			pdf.Ln(2)
			continue
		}

		if inCodeBlock {
			pdf.SetFont("Courier", "", 9)
			pdf.SetFillColor(245, 245, 245)
			pdf.MultiCell(0, 4.5, tr(line), "", "L", true)
			continue
		}

		if strings.TrimSpace(line) == "" {
			pdf.Ln(3)
			continue
		}

		if strings.HasPrefix(line, "#") {
			level := len(line) - len(strings.TrimLeft(line, "#"))
			text := strings.TrimSpace(strings.TrimLeft(line, "# "))
			renderHeading(pdf, tr(cleanInlineMarkdown(text)), level)
			continue
		}

		trimmed := strings.TrimSpace(line)
		pdf.SetFont("Helvetica", "", 10)
		switch {
		case trimmed == "---" || trimmed == "***":
			y := pdf.GetY()
			w, _ := pdf.GetPageSize()
			left, _, right, _ := pdf.GetMargins()
			pdf.SetDrawColor(200, 200, 200)
			pdf.Line(left, y+2, w-right, y+2)
			pdf.Ln(4)
		case tableDivider.MatchString(trimmed):
			// Header separator rows carry no text.
		case strings.HasPrefix(trimmed, "|"):
			renderTableRow(pdf, tr, trimmed)
		case imageLine.MatchString(trimmed):
			m := imageLine.FindStringSubmatch(trimmed)
			label := m[1]
			if label == "" {
				label = m[2]
			}
			pdf.SetFont("Helvetica", "I", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 5, tr("[Image: "+label+"]"), "", "L", false)
			pdf.SetTextColor(0, 0, 0)
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			pdf.MultiCell(0, 5, tr("• "+cleanInlineMarkdown(trimmed[2:])), "", "L", false)
		case numberedItem.MatchString(trimmed):
			pdf.MultiCell(0, 5, tr(cleanInlineMarkdown(trimmed)), "", "L", false)
		case strings.HasPrefix(trimmed, ">"):
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 5, tr(cleanInlineMarkdown(strings.TrimLeft(trimmed, "> "))), "", "L", false)
		default:
			pdf.MultiCell(0, 5, tr(cleanInlineMarkdown(line)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension for PDF output.
func (r *PDFRenderer) Extension() string {
	return ".pdf"
}

// renderHeading sets the font size based on heading level and writes text.
func renderHeading(pdf *gofpdf.Fpdf, text string, level int) {
	sizes := map[int]float64{1: 18, 2: 15, 3: 13, 4: 12, 5: 11, 6: 10}
	size, ok := sizes[level]
	if !ok {
		size = 10
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", size)
	pdf.MultiCell(0, size*0.6, text, "", "L", false)
	pdf.Ln(2)
}

// renderTableRow writes one Markdown table row as evenly sized cells.
func renderTableRow(pdf *gofpdf.Fpdf, tr func(string) string, row string) {
	cells := strings.Split(strings.Trim(row, "|"), "|")
	w, _ := pdf.GetPageSize()
	l, _, r, _ := pdf.GetMargins()
	width := (w - l - r) / float64(len(cells))
	pdf.SetFont("Helvetica", "", 9)
	for _, c := range cells {
		pdf.CellFormat(width, 6, tr(cleanInlineMarkdown(c)), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

// documentTitle is the first level-1 heading, or the source.
func documentTitle(md, source string) string {
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "# ") {
			return cleanInlineMarkdown(line[2:])
		}
	}
	return source
}

// cleanInlineMarkdown strips inline Markdown formatting for PDF rendering.
func cleanInlineMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = italicRegex.ReplaceAllString(text, " $1 ")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = linkSyntax.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
