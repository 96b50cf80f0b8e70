package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		role    core.InsightRole
		summary string
		wantErr bool
	}{
		{"plain", `{"role":"step","summary":"Install Go"}`, core.RoleStep, "Install Go", false},
		{"fenced", "```json\n{\"role\": \"code\", \"summary\": \"A loop\"}\n```", core.RoleCode, "A loop", false},
		{"prose around", `Sure! Here you go: {"role":"heading","summary":"Intro"} Hope it helps.`, core.RoleTitle, "Intro", false},
		{"sdk wrapper", `type='text' text='{"role":"concept","summary":"Channels"}'`, core.RoleConcept, "Channels", false},
		{"synonym", `{"role":"Code Example","summary":"x"}`, core.RoleCode, "x", false},
		{"unknown role", `{"role":"table-of-contents","summary":"x"}`, core.RoleOther, "x", false},
		{"braces in string", `{"role":"concept","summary":"use {} for maps"}`, core.RoleConcept, "use {} for maps", false},
		{"no json", "I cannot classify this.", "", "", true},
		{"no role", `{"summary":"x"}`, "", "", true},
		{"broken", `{"role":"step",`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, summary, err := ParseResponse(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if role != tt.role || summary != tt.summary {
				t.Errorf("got (%q, %q), want (%q, %q)", role, summary, tt.role, tt.summary)
			}
		})
	}
}

func blocks(texts ...string) *core.ParsedBlocks {
	p := &core.ParsedBlocks{Envelope: core.NewEnvelope(core.RoleParsed, "test", "run-1")}
	for i, s := range texts {
		p.Blocks = append(p.Blocks, core.Block{Text: s, Kind: core.KindText, Order: i})
	}
	return p
}

func TestAnalyzeMalformedItemFallsBack(t *testing.T) {
	long := strings.Repeat("a", 150)
	client := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
		if strings.Contains(p.User, "BROKEN") {
			return "not json at all", nil
		}
		return `{"role":"step","summary":"ok"}`, nil
	}}
	parsed := blocks("first", "BROKEN "+long, "third")

	got, err := New(Options{Client: client}).Analyze(context.Background(), parsed)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got.Insights) != 3 {
		t.Fatalf("got %d insights, want 3", len(got.Insights))
	}
	if got.Role != core.RoleInsights || got.RunID != "run-1" {
		t.Errorf("envelope = %+v", got.Envelope)
	}
	for i, in := range got.Insights {
		if in.BlockRef != i {
			t.Errorf("insight %d refers to block %d", i, in.BlockRef)
		}
	}
	fb := got.Insights[1]
	if !fb.Fallback || fb.Role != core.RoleOther {
		t.Errorf("fallback insight = %+v", fb)
	}
	if !strings.HasSuffix(fb.Summary, "...") || len([]rune(fb.Summary)) != 103 {
		t.Errorf("fallback summary = %q", fb.Summary)
	}
	if got.Insights[0].Fallback || got.Insights[2].Role != core.RoleStep {
		t.Errorf("healthy insights affected: %+v", got.Insights)
	}
	if got.Attrs["fallbacks"] != "1" {
		t.Errorf("fallbacks attr = %q", got.Attrs["fallbacks"])
	}
}

func TestAnalyzeCallErrorFallsBack(t *testing.T) {
	client := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
		return "", errors.New("backend down")
	}}
	got, err := New(Options{Client: client}).Analyze(context.Background(), blocks("short text"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if in := got.Insights[0]; !in.Fallback || in.Summary != "short text" {
		t.Errorf("insight = %+v", in)
	}
}

func TestAnalyzeBoundsConcurrency(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32
	client := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return `{"role":"concept","summary":"s"}`, nil
	}}
	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("block %d", i)
	}
	got, err := New(Options{Client: client, MaxConcurrency: limit}).Analyze(context.Background(), blocks(texts...))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got.Insights) != len(texts) {
		t.Fatalf("got %d insights", len(got.Insights))
	}
	if p := peak.Load(); p > limit {
		t.Errorf("peak concurrency = %d, want <= %d", p, limit)
	}
}

type fakeImages struct{ refs []string }

func (f *fakeImages) FetchImage(ctx context.Context, ref string) (llm.Image, error) {
	f.refs = append(f.refs, ref)
	return llm.Image{Name: "arch.png", MIME: "image/png", Data: []byte("png")}, nil
}

func TestAnalyzeCaptionsImages(t *testing.T) {
	images := &fakeImages{}
	parsed := &core.ParsedBlocks{
		Envelope: core.NewEnvelope(core.RoleParsed, "test", ""),
		Blocks:   []core.Block{{Kind: core.KindImage, Text: "diagram", Source: "https://example.com/arch.png"}},
	}
	got, err := New(Options{Client: llm.NewMock(), Images: images}).Analyze(context.Background(), parsed)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	in := got.Insights[0]
	if in.Caption != "Mock caption for arch.png" {
		t.Errorf("caption = %q", in.Caption)
	}
	if !strings.Contains(in.Summary, in.Caption) {
		t.Errorf("summary %q does not mention caption", in.Summary)
	}
	if len(images.refs) != 1 || images.refs[0] != "https://example.com/arch.png" {
		t.Errorf("fetched %v", images.refs)
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{Client: llm.NewMock()}).Analyze(ctx, blocks("a", "b"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAnalyzeUsesFlatPrompt(t *testing.T) {
	var seen llm.Prompt
	client := llm.Funcs{ChatFn: func(ctx context.Context, p llm.Prompt) (string, error) {
		seen = p
		return `{"role":"title","summary":"s"}`, nil
	}}
	parsed := &core.ParsedBlocks{
		Envelope: core.NewEnvelope(core.RoleParsed, "test", ""),
		Blocks:   []core.Block{{Kind: core.KindText, Text: "Overview", Level: 2}},
	}
	if _, err := New(Options{Client: client}).Analyze(context.Background(), parsed); err != nil {
		t.Fatal(err)
	}
	if seen.Task != llm.TaskClassify || seen.System != prompt.Default().Analyzer.System {
		t.Errorf("prompt = %+v", seen)
	}
	if !strings.Contains(seen.User, prompt.LabelLevel+"2") {
		t.Errorf("user prompt lacks heading level: %q", seen.User)
	}
}
