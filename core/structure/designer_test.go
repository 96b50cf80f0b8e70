package structure

import (
	"context"
	"errors"
	"testing"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
)

func insights(roles ...core.InsightRole) *core.AnalyzedInsights {
	in := &core.AnalyzedInsights{Envelope: core.NewEnvelope(core.RoleInsights, "test", "run-1")}
	for i, r := range roles {
		in.Insights = append(in.Insights, core.Insight{BlockRef: i, Role: r, Summary: string(r) + " summary"})
	}
	return in
}

func counts(o *core.Outline) map[core.Slot]int {
	m := map[core.Slot]int{}
	for _, sec := range o.Sections {
		m[sec.Slot] = len(sec.Entries)
	}
	return m
}

func TestDesignFixedRoles(t *testing.T) {
	failing := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
		t.Error("model called for unambiguous roles")
		return "", nil
	}}
	o, err := New(Options{Client: failing}).Design(context.Background(), insights(core.RoleTitle, core.RoleStep, core.RoleStep))
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	got := counts(o)
	if got[core.SlotIntroduction] != 1 || got[core.SlotSteps] != 2 {
		t.Errorf("counts = %v", got)
	}
	for i, sec := range o.Sections {
		if sec.Slot != core.Slots[i] {
			t.Errorf("section %d = %s, want %s", i, sec.Slot, core.Slots[i])
		}
		if sec.Entries == nil {
			t.Errorf("section %s has nil entries", sec.Slot)
		}
	}
	steps := o.Section(core.SlotSteps).Entries
	if steps[0].BlockRef != 1 || steps[1].BlockRef != 2 {
		t.Errorf("steps out of order: %+v", steps)
	}
	if o.Role != core.RoleOutline || o.Attrs["assignment"] != "rules" {
		t.Errorf("envelope = %+v", o.Envelope)
	}
}

func TestDesignEmptyInsights(t *testing.T) {
	o, err := New(Options{}).Design(context.Background(), insights())
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	for _, sec := range o.Sections {
		if len(sec.Entries) != 0 {
			t.Errorf("slot %s not empty", sec.Slot)
		}
	}
}

func TestDesignModelAssignment(t *testing.T) {
	client := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
		if p.Task != llm.TaskAssign {
			t.Errorf("task = %s", p.Task)
		}
		return "```json\n{\"1\": \"Prerequisites\", \"2\": \"conclusion\", \"0\": \"Steps\"}\n```", nil
	}}
	o, err := New(Options{Client: client}).Design(context.Background(),
		insights(core.RoleTitle, core.RoleConcept, core.RoleOther))
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	got := counts(o)
	// Index 0 is a title and is not overridden by the model.
	want := map[core.Slot]int{core.SlotIntroduction: 1, core.SlotPrerequisites: 1, core.SlotConclusion: 1}
	for slot, n := range want {
		if got[slot] != n {
			t.Errorf("%s has %d entries, want %d", slot, got[slot], n)
		}
	}
	if o.Attrs["assignment"] != "model" {
		t.Errorf("assignment = %q", o.Attrs["assignment"])
	}
}

func TestDesignFallbacks(t *testing.T) {
	tests := []struct {
		name string
		resp string
		err  error
		mode string
	}{
		{"call fails", "", errors.New("timeout"), "fallback"},
		{"garbage", "no idea", nil, "fallback"},
		{"invalid slot", `{"0": "Appendix", "1": "Elsewhere"}`, nil, "partial"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
				return tt.resp, tt.err
			}}
			o, err := New(Options{Client: client}).Design(context.Background(), insights(core.RoleConcept, core.RoleOther))
			if err != nil {
				t.Fatalf("Design: %v", err)
			}
			got := counts(o)
			if got[core.SlotIntroduction] != 1 || got[core.SlotExamples] != 1 {
				t.Errorf("counts = %v", got)
			}
			if o.Attrs["assignment"] != tt.mode {
				t.Errorf("assignment = %q, want %q", o.Attrs["assignment"], tt.mode)
			}
		})
	}
}

func TestDesignWithMock(t *testing.T) {
	in := insights(core.RoleTitle, core.RoleConcept, core.RoleOther)
	in.Insights[2].Summary = "You will need Go 1.22 installed"
	o, err := New(Options{Client: llm.NewMock()}).Design(context.Background(), in)
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if n := len(o.Section(core.SlotPrerequisites).Entries); n != 1 {
		t.Errorf("prerequisites = %d entries, want 1", n)
	}
}
