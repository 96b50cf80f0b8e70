package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	r := New(Options{TempDir: t.TempDir(), MaxAttempts: 3, RetryDelay: time.Millisecond})
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRetrieveHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != defaultUserAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><h1>Hello</h1></body></html>"))
	}))
	defer srv.Close()

	r := newTestRetriever(t)
	raw, err := r.Retrieve(logger.WithRunID(context.Background(), "run-1"), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if raw.Format != core.FormatHTML {
		t.Errorf("Format = %q, want html", raw.Format)
	}
	if raw.Role != core.RoleRaw || raw.RunID != "run-1" {
		t.Errorf("envelope = %+v", raw.Envelope)
	}
	if raw.Path != "" {
		t.Errorf("HTML source should not have a path, got %q", raw.Path)
	}
	if raw.URL != srv.URL+"/page" {
		t.Errorf("URL = %q", raw.URL)
	}
}

func TestRetrievePDFByMagicBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("%PDF-1.4\n%fake"))
	}))
	defer srv.Close()

	r := newTestRetriever(t)
	raw, err := r.Retrieve(context.Background(), srv.URL+"/doc")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if raw.Format != core.FormatPDF {
		t.Fatalf("Format = %q, want pdf", raw.Format)
	}
	if _, err := os.Stat(raw.Path); err != nil {
		t.Fatalf("temp file missing: %v", err)
	}
	if !r.Temps().Owns(raw.Path) {
		t.Error("temp file not registered")
	}

	r.Release(raw)
	if _, err := os.Stat(raw.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file still present after Release: %v", err)
	}
}

func TestRetrievePDFByContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("not really a pdf"))
	}))
	defer srv.Close()

	r := newTestRetriever(t)
	raw, err := r.Retrieve(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if raw.Format != core.FormatPDF {
		t.Errorf("Format = %q, want pdf", raw.Format)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Temps().Len() != 0 {
		t.Errorf("registry not empty after Close")
	}
}

func TestRetrieveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("# Title"))
	}))
	defer srv.Close()

	r := newTestRetriever(t)
	if _, err := r.Retrieve(context.Background(), srv.URL); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetrieveDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := newTestRetriever(t)
	_, err := r.Retrieve(context.Background(), srv.URL)
	if !errors.Is(err, core.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRetrieveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	r := newTestRetriever(t)
	if _, err := r.Retrieve(context.Background(), addr); !errors.Is(err, core.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}

func TestRetrieveLocalFiles(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "guide.pdf")
	htmlPath := filepath.Join(dir, "guide.html")
	mdPath := filepath.Join(dir, "guide.md")
	os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644)
	os.WriteFile(htmlPath, []byte("<p>hi</p>"), 0o644)
	os.WriteFile(mdPath, []byte("# hi"), 0o644)

	r := newTestRetriever(t)
	tests := []struct {
		path string
		want core.SourceFormat
	}{
		{pdfPath, core.FormatPDF},
		{htmlPath, core.FormatHTML},
		{mdPath, core.FormatMarkdown},
	}
	for _, tt := range tests {
		raw, err := r.Retrieve(context.Background(), tt.path)
		if err != nil {
			t.Fatalf("Retrieve(%s): %v", tt.path, err)
		}
		if raw.Format != tt.want {
			t.Errorf("Retrieve(%s).Format = %q, want %q", tt.path, raw.Format, tt.want)
		}
		r.Release(raw)
	}
	if _, err := os.Stat(pdfPath); err != nil {
		t.Errorf("user PDF deleted by Release: %v", err)
	}
}

func TestRetrieveLocalHTMLDecodesCharset(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "page.html")
	page := "<html><head><meta charset=\"iso-8859-1\"></head><body><p>Caf\xe9 setup</p></body></html>"
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	mdPath := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(mdPath, []byte("# Caf\xe9"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestRetriever(t)
	raw, err := r.Retrieve(context.Background(), htmlPath)
	if err != nil {
		t.Fatalf("Retrieve(latin-1 html): %v", err)
	}
	if !strings.Contains(raw.Text, "Café setup") {
		t.Errorf("Text = %q", raw.Text)
	}

	if _, err := r.Retrieve(context.Background(), mdPath); !errors.Is(err, core.ErrRetrieval) {
		t.Errorf("non-UTF-8 markdown: err = %v, want ErrRetrieval", err)
	}
}

func TestRetrieveMissingFile(t *testing.T) {
	r := newTestRetriever(t)
	_, err := r.Retrieve(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, core.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}

func TestAdoptUpload(t *testing.T) {
	dir := t.TempDir()
	upload := filepath.Join(dir, "upload-123")
	os.WriteFile(upload, []byte("%PDF-1.7 body"), 0o600)

	r := newTestRetriever(t)
	raw, err := r.Adopt(context.Background(), upload, "notes.bin")
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if raw.Format != core.FormatPDF || raw.Source != "notes.bin" {
		t.Errorf("raw = %+v", raw)
	}
	r.Release(raw)
	if _, err := os.Stat(upload); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("upload still present after Release")
	}
}

func TestFetchImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(png)
	}))
	defer srv.Close()

	r := newTestRetriever(t)
	img, err := r.FetchImage(context.Background(), srv.URL+"/diagram.png")
	if err != nil {
		t.Fatalf("FetchImage: %v", err)
	}
	if img.MIME != "image/png" || img.Name != "diagram.png" {
		t.Errorf("img = %s %s", img.Name, img.MIME)
	}

	inline, err := r.FetchImage(context.Background(), "data:image/gif;base64,R0lGODlh")
	if err != nil {
		t.Fatalf("FetchImage(data): %v", err)
	}
	if inline.MIME != "image/gif" || string(inline.Data[:3]) != "GIF" {
		t.Errorf("inline = %s %q", inline.MIME, inline.Data)
	}
}

func TestURLHelpers(t *testing.T) {
	if !IsURL("https://example.com/a") || IsURL("/tmp/a.pdf") || IsURL("ftp://x/y") {
		t.Error("IsURL misclassified input")
	}
	if got := ResolveReference("https://example.com/docs/page.html", "img/a.png"); got != "https://example.com/docs/img/a.png" {
		t.Errorf("ResolveReference = %q", got)
	}
	if got := ResolveReference("", "img/a.png"); got != "img/a.png" {
		t.Errorf("ResolveReference without base = %q", got)
	}
	if mt, ok := imageMIME("https://example.com/a.JPG?x=1"); !ok || mt != "image/jpeg" {
		t.Errorf("imageMIME(jpg) = %q, %v", mt, ok)
	}
	if _, ok := imageMIME("page.html"); ok {
		t.Error("imageMIME accepted page.html")
	}
}
