package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
	"github.com/gaurav-prasanna/tutorialpipe/resilience"
)

func TestMockClassify(t *testing.T) {
	tests := []struct {
		name  string
		block core.Block
		want  core.InsightRole
	}{
		{"heading", core.Block{Text: "Getting started", Kind: core.KindText, Level: 1}, core.RoleTitle},
		{"code", core.Block{Text: "go run .", Kind: core.KindCode}, core.RoleCode},
		{"step keyword", core.Block{Text: "Step 2: configure the server", Kind: core.KindText}, core.RoleStep},
		{"numbered", core.Block{Text: "1. Clone the repository", Kind: core.KindText}, core.RoleStep},
		{"concept", core.Block{Text: "Goroutines are lightweight threads.", Kind: core.KindText}, core.RoleConcept},
	}
	m := NewMock()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.Chat(context.Background(), Prompt{Task: TaskClassify, User: prompt.ClassifyInput(tt.block, "")})
			if err != nil {
				t.Fatalf("Chat: %v", err)
			}
			var got struct{ Role, Summary string }
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("mock returned invalid JSON %q: %v", out, err)
			}
			if core.InsightRole(got.Role) != tt.want {
				t.Errorf("role = %q, want %q", got.Role, tt.want)
			}
			if !strings.HasPrefix(got.Summary, "Mock summary: ") {
				t.Errorf("summary = %q", got.Summary)
			}
		})
	}
}

func TestMockAssign(t *testing.T) {
	user := prompt.AssignInput([]prompt.AssignItem{
		{Index: 0, Role: core.RoleConcept, Summary: "You will need Docker installed"},
		{Index: 1, Role: core.RoleOther, Summary: "In summary, the tool is fast"},
		{Index: 2, Role: core.RoleConcept, Summary: "Channels connect goroutines"},
	})
	out, err := NewMock().Chat(context.Background(), Prompt{Task: TaskAssign, User: user})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"0": "Prerequisites", "1": "Conclusion", "2": "Introduction"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("slot[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestMockGenerateAndRefine(t *testing.T) {
	o := core.NewOutline(core.NewEnvelope(core.RoleOutline, "s", "r"))
	o.Section(core.SlotSteps).Entries = []core.Entry{{Text: "Install it"}}
	m := NewMock()

	draft, err := m.Chat(context.Background(), Prompt{Task: TaskGenerate, User: prompt.GenerateInput(o, nil, nil)})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(draft, "# Mock Tutorial") || !strings.Contains(draft, "## Steps\n\n1. Install it") {
		t.Errorf("draft = %q", draft)
	}
	for _, slot := range core.Slots {
		if !strings.Contains(draft, "## "+string(slot)) {
			t.Errorf("draft missing slot %s", slot)
		}
	}

	refined, err := m.Chat(context.Background(), Prompt{Task: TaskRefine, User: prompt.RefineInput(draft)})
	if err != nil {
		t.Fatal(err)
	}
	if refined != strings.Trim(draft, "\n") {
		t.Errorf("mock refine did not echo the draft")
	}
	if !IsMock(m) {
		t.Error("IsMock(mock) = false")
	}
}

func TestLimiterBoundsInFlight(t *testing.T) {
	const ceiling, calls = 3, 20
	lim := NewLimiter(ceiling, 0)
	var current, maxSeen atomic.Int64
	slow := Funcs{ChatFn: func(ctx context.Context, p Prompt) (string, error) {
		n := current.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return "ok", nil
	}}
	c := Limited(slow, lim)

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Chat(context.Background(), Prompt{}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if maxSeen.Load() > ceiling {
		t.Errorf("observed %d concurrent calls, ceiling %d", maxSeen.Load(), ceiling)
	}
	if lim.Peak() > ceiling || lim.Peak() < 1 {
		t.Errorf("limiter peak = %d", lim.Peak())
	}
	if lim.InFlight() != 0 {
		t.Errorf("in flight after completion = %d", lim.InFlight())
	}
}

func TestLimiterHonoursContext(t *testing.T) {
	lim := NewLimiter(1, 0)
	release, err := lim.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := lim.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestLimiterQPS(t *testing.T) {
	lim := NewLimiter(10, 20)
	start := time.Now()
	for i := 0; i < 25; i++ {
		release, err := lim.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		release()
	}
	// Burst of 20, then 5 more at 20/s needs roughly 250ms.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("25 calls at 20 qps took only %v", elapsed)
	}
}

func TestMiddlewareTimeoutAndMetrics(t *testing.T) {
	m := metrics.New()
	blocking := Funcs{ID: "slow", ChatFn: func(ctx context.Context, p Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := Chain(blocking, WithTimeout(10*time.Millisecond), WithMetrics(m))
	if _, err := c.Chat(context.Background(), Prompt{Task: TaskClassify}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if c.Name() != "slow" {
		t.Errorf("Name = %q", c.Name())
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	failing := Funcs{ChatFn: func(ctx context.Context, p Prompt) (string, error) {
		calls++
		return "", errors.New("down")
	}}
	c := Chain(failing, WithBreaker(resilience.NewCircuitBreaker("t", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})))
	for i := 0; i < 4; i++ {
		_, _ = c.Chat(context.Background(), Prompt{})
	}
	if calls != 2 {
		t.Errorf("backend called %d times, want 2 before the circuit opened", calls)
	}
}

type readyClient struct {
	Funcs
	err error
}

func (p readyClient) Ready(context.Context) error { return p.err }

func TestCheckReadyUnwraps(t *testing.T) {
	inner := readyClient{Funcs: Funcs{ID: "p"}, err: errors.New("offline")}
	c := Chain(inner, WithTimeout(time.Second), WithLimiter(NewLimiter(1, 0)))
	if err := CheckReady(context.Background(), c); err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("CheckReady = %v", err)
	}
	if err := CheckReady(context.Background(), Chain(NewMock(), WithTimeout(time.Second))); err != nil {
		t.Fatalf("CheckReady(mock) = %v", err)
	}
}

func TestOllamaChatAndReady(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello from ollama"},"finish_reason":"stop"}]}`)
		case "/api/tags":
			_, _ = io.WriteString(w, `{"models":[{"name":"granite3.1-dense:8b"},{"name":"llava:latest"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllama(OllamaOptions{BaseURL: srv.URL, Model: "granite3.1-dense:8b"})
	out, err := o.Chat(context.Background(), Prompt{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hello from ollama" || gotModel != "granite3.1-dense:8b" {
		t.Errorf("out=%q model=%q", out, gotModel)
	}
	if err := o.Ready(context.Background()); err != nil {
		t.Errorf("Ready: %v", err)
	}

	missing := NewOllama(OllamaOptions{BaseURL: srv.URL, Model: "mistral"})
	if err := missing.Ready(context.Background()); err == nil {
		t.Error("Ready succeeded for a model that is not installed")
	}
}

func TestHasModel(t *testing.T) {
	installed := []string{"llava:latest", "granite3.1-dense:8b"}
	if !hasModel(installed, "llava") || !hasModel(installed, "granite3.1-dense:8b") || hasModel(installed, "granite3.1-dense") {
		t.Error("hasModel mismatch")
	}
}

func TestWatsonxChat(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/identity/token":
			tokenCalls.Add(1)
			_ = r.ParseForm()
			if r.Form.Get("apikey") != "secret" {
				http.Error(w, "bad key", http.StatusUnauthorized)
				return
			}
			exp := time.Now().Add(time.Hour).Unix()
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expiration": exp})
		case "/ml/v1/text/chat":
			if r.Header.Get("Authorization") != "Bearer tok" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			var req watsonxRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.ProjectID != "proj" || req.ModelID != "ibm/granite-3-8b-instruct" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hi from watsonx"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	wx, err := NewWatsonx(WatsonxOptions{
		APIKey: "secret", ProjectID: "proj", BaseURL: srv.URL,
		IAMURL: srv.URL + "/identity/token", Model: "ibm/granite-3-8b-instruct",
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		out, err := wx.Chat(context.Background(), Prompt{System: "s", User: "u"})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if out != "hi from watsonx" {
			t.Errorf("out = %q", out)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token fetched %d times, want 1 (cached)", tokenCalls.Load())
	}
}

func TestWatsonxBadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()
	wx, _ := NewWatsonx(WatsonxOptions{APIKey: "k", ProjectID: "p", BaseURL: srv.URL, IAMURL: srv.URL, Model: "m"})
	if err := wx.Ready(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Ready = %v, want 401 error", err)
	}
}

func TestImageEncoding(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	img := Image{Name: "diagram.png", Data: png}
	if !strings.HasPrefix(img.DataURI(), "data:image/png;base64,") {
		t.Errorf("DataURI = %q", img.DataURI())
	}
	if img.format() != "png" {
		t.Errorf("format = %q", img.format())
	}
}
