package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// pdfText extracts the plain text of every page, pages separated by a
// blank line. The pdf reader panics on some malformed files, so panics are
// converted into errors.
func pdfText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// pdfBlocks splits extracted PDF text into text blocks on blank lines.
func pdfBlocks(text string) []core.Block {
	var blocks []core.Block
	for _, para := range blankLines.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		blocks = append(blocks, core.Block{Text: para, Kind: core.KindText, Order: len(blocks)})
	}
	return blocks
}
