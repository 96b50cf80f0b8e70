package prompt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

// Field labels used in flattened prompts.
const (
	LabelKind     = "Block kind: "
	LabelLevel    = "Heading level: "
	LabelLanguage = "Language: "
	LabelCaption  = "Image caption: "
	LabelContent  = "Content:"

	DraftStart = "--- Draft Tutorial Start ---"
	DraftEnd   = "--- Draft Tutorial End ---"

	outlineHeader  = "Outline:"
	insightsHeader = "Insights:"
	codeHeader     = "Code blocks:"
)

// ClassifyInput flattens a block for role classification.
func ClassifyInput(b core.Block, caption string) string {
	var sb strings.Builder
	sb.WriteString(LabelKind + string(b.Kind) + "\n")
	if b.Level > 0 {
		sb.WriteString(LabelLevel + strconv.Itoa(b.Level) + "\n")
	}
	if b.Language != "" {
		sb.WriteString(LabelLanguage + b.Language + "\n")
	}
	if caption != "" {
		sb.WriteString(LabelCaption + caption + "\n")
	}
	sb.WriteString(LabelContent + "\n")
	sb.WriteString(b.Text)
	return sb.String()
}

// ClassifyFields is the parsed form of ClassifyInput.
type ClassifyFields struct {
	Kind    core.BlockKind
	Level   int
	Caption string
	Content string
}

// ParseClassifyInput reverses ClassifyInput.
func ParseClassifyInput(s string) ClassifyFields {
	var f ClassifyFields
	head, content, _ := strings.Cut(s, LabelContent+"\n")
	f.Content = content
	for _, line := range strings.Split(head, "\n") {
		switch {
		case strings.HasPrefix(line, LabelKind):
			f.Kind = core.BlockKind(strings.TrimPrefix(line, LabelKind))
		case strings.HasPrefix(line, LabelLevel):
			f.Level, _ = strconv.Atoi(strings.TrimPrefix(line, LabelLevel))
		case strings.HasPrefix(line, LabelCaption):
			f.Caption = strings.TrimPrefix(line, LabelCaption)
		}
	}
	return f
}

// AssignItem is an insight awaiting slot assignment.
type AssignItem struct {
	Index   int
	Role    core.InsightRole
	Summary string
}

// AssignInput lists ambiguous insights, one per line.
func AssignInput(items []AssignItem) string {
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", it.Index, it.Role, oneLine(it.Summary))
	}
	return sb.String()
}

var assignLine = regexp.MustCompile(`^\[(\d+)\] \((\w+)\) (.*)$`)

// ParseAssignInput reverses AssignInput, skipping malformed lines.
func ParseAssignInput(s string) []AssignItem {
	var items []AssignItem
	for _, line := range strings.Split(s, "\n") {
		m := assignLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		items = append(items, AssignItem{Index: idx, Role: core.InsightRole(m[2]), Summary: m[3]})
	}
	return items
}

// GenerateInput flattens the outline, the insight summaries and any code
// blocks into the generator's user prompt.
func GenerateInput(outline *core.Outline, insights []core.Insight, blocks []core.Block) string {
	var sb strings.Builder
	sb.WriteString(outlineHeader + "\n")
	sb.WriteString(outline.Markdown())
	sb.WriteString("\n" + insightsHeader + "\n")
	for _, in := range insights {
		fmt.Fprintf(&sb, "- (%s) %s\n", in.Role, oneLine(in.Summary))
	}
	var code []core.Block
	for _, b := range blocks {
		if b.Kind == core.KindCode {
			code = append(code, b)
		}
	}
	if len(code) > 0 {
		sb.WriteString("\n" + codeHeader + "\n")
		for _, b := range code {
			sb.WriteString(Fence(b.Text, b.Language))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// OutlineSection returns the outline part of a GenerateInput prompt.
func OutlineSection(s string) string {
	_, rest, ok := strings.Cut(s, outlineHeader+"\n")
	if !ok {
		return ""
	}
	outline, _, _ := strings.Cut(rest, "\n"+insightsHeader+"\n")
	return outline
}

// RefineInput wraps a draft in the markers the refiner expects.
func RefineInput(markdown string) string {
	return DraftStart + "\n" + markdown + "\n" + DraftEnd
}

// ExtractDraft returns the text between the draft markers.
func ExtractDraft(s string) (string, bool) {
	_, rest, ok := strings.Cut(s, DraftStart)
	if !ok {
		return "", false
	}
	body, _, ok := strings.Cut(rest, DraftEnd)
	if !ok {
		return "", false
	}
	return strings.Trim(body, "\n"), true
}

// Fence wraps code in a fenced block long enough not to collide with any
// backtick run inside it.
func Fence(code, language string) string {
	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	return fence + language + "\n" + strings.TrimRight(code, "\n") + "\n" + fence
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
