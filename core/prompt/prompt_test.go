package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if !strings.Contains(c.Analyzer.System, "'role' and 'summary'") {
		t.Errorf("analyzer prompt = %q", c.Analyzer.System)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("refiner:\n  system: Be terse.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Refiner.System != "Be terse." {
		t.Errorf("refiner = %q", c.Refiner.System)
	}
	if c.Generator.System == "" {
		t.Error("overlay dropped the default generator prompt")
	}
}

func TestLoadRejectsEmptyPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("analyzer:\n  system: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestClassifyRoundTrip(t *testing.T) {
	b := core.Block{Text: "Install Go\nthen run it", Kind: core.KindText, Level: 2}
	f := ParseClassifyInput(ClassifyInput(b, "a diagram"))
	if f.Kind != core.KindText || f.Level != 2 || f.Caption != "a diagram" || f.Content != b.Text {
		t.Errorf("parsed = %+v", f)
	}
}

func TestAssignRoundTrip(t *testing.T) {
	in := []AssignItem{{Index: 3, Role: core.RoleConcept, Summary: "Needs Go\n1.22"}, {Index: 7, Role: core.RoleOther, Summary: "Wrap up"}}
	out := ParseAssignInput(AssignInput(in) + "garbage line\n")
	if len(out) != 2 || out[0].Index != 3 || out[0].Summary != "Needs Go 1.22" || out[1].Role != core.RoleOther {
		t.Errorf("parsed = %+v", out)
	}
}

func TestGenerateInputIsFlatText(t *testing.T) {
	o := core.NewOutline(core.NewEnvelope(core.RoleOutline, "src", "run"))
	o.Section(core.SlotSteps).Entries = append(o.Section(core.SlotSteps).Entries, core.Entry{Text: "Install"})
	insights := []core.Insight{{Role: core.RoleStep, Summary: "Install the tool"}}
	blocks := []core.Block{{Text: "go install ./...", Kind: core.KindCode, Language: "sh"}}

	s := GenerateInput(o, insights, blocks)
	for _, want := range []string{"Outline:\n# Tutorial Outline", "Insights:\n- (step) Install the tool", "```sh\ngo install ./...\n```"} {
		if !strings.Contains(s, want) {
			t.Errorf("prompt missing %q:\n%s", want, s)
		}
	}
	if got := OutlineSection(s); !strings.HasPrefix(got, "# Tutorial Outline") || strings.Contains(got, "Insights:") {
		t.Errorf("OutlineSection = %q", got)
	}
}

func TestExtractDraft(t *testing.T) {
	got, ok := ExtractDraft("Polish this:\n" + RefineInput("# T\n\nbody"))
	if !ok || got != "# T\n\nbody" {
		t.Errorf("ExtractDraft = %q, %v", got, ok)
	}
	if _, ok := ExtractDraft("no markers"); ok {
		t.Error("expected no draft")
	}
}

func TestFenceAvoidsCollision(t *testing.T) {
	got := Fence("x := \"```\"", "go")
	if !strings.HasPrefix(got, "````go\n") || !strings.HasSuffix(got, "\n````") {
		t.Errorf("Fence = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate(strings.Repeat("é", 120), 100); got != strings.Repeat("é", 100)+"..." {
		t.Errorf("got %q", got)
	}
}
