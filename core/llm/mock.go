package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
)

// Mock is a deterministic backend for offline runs and tests. It answers
// each task with a well-formed response derived only from the prompt text.
type Mock struct{}

// NewMock creates a Mock client.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Chat(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch p.Task {
	case TaskClassify:
		return mockClassify(p.User)
	case TaskAssign:
		return mockAssign(p.User)
	case TaskGenerate:
		return mockGenerate(p.User), nil
	case TaskRefine:
		if draft, ok := prompt.ExtractDraft(p.User); ok {
			return draft, nil
		}
		return p.User, nil
	default:
		return "Mock response.", nil
	}
}

func (m *Mock) Caption(ctx context.Context, img Image, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := img.Name
	if name == "" {
		name = "image"
	}
	return "Mock caption for " + name, nil
}

var numberedStep = regexp.MustCompile(`^\s*(\d+[.)]|step\s+\d+)`)

func mockClassify(user string) (string, error) {
	f := prompt.ParseClassifyInput(user)
	text := strings.TrimSpace(f.Content)
	lower := strings.ToLower(text)

	role := core.RoleConcept
	switch {
	case f.Level > 0:
		role = core.RoleTitle
	case f.Kind == core.KindCode:
		role = core.RoleCode
	case strings.Contains(lower, "step"), strings.Contains(lower, "install"),
		strings.HasPrefix(lower, "run "), numberedStep.MatchString(lower):
		role = core.RoleStep
	}

	summary := "Mock summary: " + prompt.Truncate(strings.Join(strings.Fields(text), " "), 50)
	if f.Caption != "" {
		summary += " (" + f.Caption + ")"
	}
	out, err := json.Marshal(map[string]string{"role": string(role), "summary": summary})
	return string(out), err
}

func mockAssign(user string) (string, error) {
	slots := make(map[string]string)
	for _, it := range prompt.ParseAssignInput(user) {
		lower := strings.ToLower(it.Summary)
		var slot core.Slot
		switch {
		case containsAny(lower, "prerequisite", "require", "before you", "you will need"):
			slot = core.SlotPrerequisites
		case containsAny(lower, "conclusion", "in summary", "next steps", "wrap up", "recap"):
			slot = core.SlotConclusion
		case it.Role == core.RoleConcept:
			slot = core.SlotIntroduction
		default:
			slot = core.SlotExamples
		}
		slots[strconv.Itoa(it.Index)] = string(slot)
	}
	out, err := json.Marshal(slots)
	return string(out), err
}

func mockGenerate(user string) string {
	outline := strings.TrimSpace(prompt.OutlineSection(user))
	var sb strings.Builder
	sb.WriteString("# Mock Tutorial\n\n")
	sb.WriteString("_This tutorial was generated in mock mode without a live model._\n")
	for _, line := range strings.Split(outline, "\n") {
		if strings.HasPrefix(line, "# ") {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			sb.WriteString("\n")
			sb.WriteString(line)
			sb.WriteString("\n\n")
			continue
		}
		if strings.TrimSpace(line) != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	if outline == "" {
		for _, slot := range core.Slots {
			fmt.Fprintf(&sb, "\n## %s\n\nMock content.\n", slot)
		}
	}
	return sb.String()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
