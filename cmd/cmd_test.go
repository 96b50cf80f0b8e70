package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("USE_MOCKS", "true")
	t.Setenv("FETCH_MAX_ATTEMPTS", "1")
	// Flag variables are package globals and survive between executions.
	flagOutput, flagJSON, flagPDF, flagStage = "", false, false, "full"

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func source(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		io.WriteString(w, "# Quickstart\n\nInstall the binary.\n\n```sh\nquickstart init\n```\n")
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestGenerateMarkdownToStdout(t *testing.T) {
	out, err := execute(t, "generate", source(t), "--log-level", "error")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{"## Introduction", "## Steps", "## Conclusion"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateJSONOutline(t *testing.T) {
	out, err := execute(t, "generate", source(t), "--stage", "outline", "--json", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"outline", "markdown", "insights"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing %q", key)
		}
	}
}

func TestGenerateWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tutorial.md")
	if _, err := execute(t, "generate", source(t), "-o", path, "--log-level", "error"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("## Steps")) {
		t.Errorf("file content = %q", data)
	}
}

func TestGenerateFailureNamesStage(t *testing.T) {
	_, err := execute(t, "generate", "http://127.0.0.1:1/unreachable", "--log-level", "error")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "stage Retrieving:") {
		t.Errorf("error = %q", err)
	}
}

func TestGenerateRejectsBadFlags(t *testing.T) {
	if _, err := execute(t, "generate", "x", "--json", "--pdf"); err == nil {
		t.Error("expected error for --json with --pdf")
	}
	if _, err := execute(t, "generate", "x", "--stage", "everything"); err == nil {
		t.Error("expected error for unknown stage")
	}
}
