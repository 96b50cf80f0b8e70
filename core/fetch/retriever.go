// Package fetch implements the Retriever interface.
// It loads a source from a URL or a local path, detects whether it is a PDF
// or text, and owns the temporary files that back PDF downloads.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
	"github.com/gaurav-prasanna/tutorialpipe/resilience"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; TutorialPipe/1.0)"
	maxSourceBytes   = 64 << 20
	pdfMagic         = "%PDF-"
)

// Options configures a Retriever.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
	TempDir    string
	HTTPClient *http.Client
}

// Retriever fetches sources over HTTP or from disk.
type Retriever struct {
	client *http.Client
	retry  resilience.RetryConfig
	temps  *TempRegistry
	logger *slog.Logger
}

// New creates a Retriever with sensible defaults for zero options.
func New(opts Options) *Retriever {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Retriever{
		client: client,
		retry: resilience.RetryConfig{
			MaxAttempts:  opts.MaxAttempts,
			InitialDelay: opts.RetryDelay,
		},
		temps:  NewTempRegistry(opts.TempDir),
		logger: slog.Default().With("component", "retriever"),
	}
}

// Temps exposes the registry of files owned by the retriever.
func (r *Retriever) Temps() *TempRegistry { return r.temps }

// Retrieve loads source, which is an absolute URL or a local file path.
func (r *Retriever) Retrieve(ctx context.Context, source string) (*core.RawSource, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", core.ErrRetrieval)
	}
	runID := logger.RunID(ctx)
	if IsURL(source) {
		return r.fetchURL(ctx, source, runID)
	}
	return r.readLocal(source, runID)
}

// httpStatusError is a non-2xx response.
type httpStatusError struct {
	code int
	url  string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.code, e.url)
}

func (r *Retriever) fetchURL(ctx context.Context, rawURL, runID string) (*core.RawSource, error) {
	log := logger.FromContext(ctx).With("component", "retriever", "url", rawURL)

	var (
		body        []byte
		contentType string
		finalURL    string
	)
	err := resilience.Retry(ctx, "fetch "+rawURL, r.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("User-Agent", defaultUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &httpStatusError{code: resp.StatusCode, url: rawURL}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return statusErr
			}
			return resilience.Permanent(statusErr)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		if len(data) > maxSourceBytes {
			return resilience.Permanent(fmt.Errorf("source larger than %d bytes", maxSourceBytes))
		}
		body = data
		contentType = resp.Header.Get("Content-Type")
		finalURL = resp.Request.URL.String()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRetrieval, err)
	}

	raw := &core.RawSource{
		Envelope:    core.NewEnvelope(core.RoleRaw, rawURL, runID),
		URL:         finalURL,
		ContentType: contentType,
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf" || bytes.HasPrefix(body, []byte(pdfMagic)):
		path, err := r.temps.Write(body, ".pdf")
		if err != nil {
			return nil, fmt.Errorf("%w: persisting PDF: %w", core.ErrRetrieval, err)
		}
		raw.Format = core.FormatPDF
		raw.Path = path
	case mediaType == "text/markdown" || mediaType == "text/plain":
		raw.Format = core.FormatMarkdown
		raw.Text, err = decodeText(body, contentType)
	default:
		raw.Format = core.FormatHTML
		raw.Text, err = decodeText(body, contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", core.ErrRetrieval, rawURL, err)
	}
	raw.Attrs["format"] = string(raw.Format)
	log.Info("source retrieved", "format", raw.Format, "bytes", len(body))
	return raw, nil
}

func (r *Retriever) readLocal(path, runID string) (*core.RawSource, error) {
	if strings.HasPrefix(path, "file://") {
		path = strings.TrimPrefix(path, "file://")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRetrieval, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", core.ErrRetrieval, path)
	}

	raw := &core.RawSource{Envelope: core.NewEnvelope(core.RoleRaw, path, runID)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		// Local PDFs are parsed in place and never deleted.
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrRetrieval, err)
		}
		f.Close()
		raw.Format = core.FormatPDF
		raw.Path = path
	case ".md", ".markdown", ".txt":
		raw.Format = core.FormatMarkdown
		raw.Text, err = readUTF8(path)
	default:
		raw.Format = core.FormatHTML
		raw.Text, err = readHTML(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRetrieval, err)
	}
	raw.Attrs["format"] = string(raw.Format)
	r.logger.Info("source read", "path", path, "format", raw.Format, "bytes", info.Size())
	return raw, nil
}

// Adopt takes ownership of an existing file, typically an HTTP upload, and
// returns it as a source. The file is deleted by Release.
func (r *Retriever) Adopt(ctx context.Context, path, name string) (*core.RawSource, error) {
	r.temps.Adopt(path)
	runID := logger.RunID(ctx)
	raw := &core.RawSource{Envelope: core.NewEnvelope(core.RoleRaw, name, runID)}

	head := make([]byte, len(pdfMagic))
	f, err := os.Open(path)
	if err != nil {
		r.temps.Remove(path)
		return nil, fmt.Errorf("%w: %w", core.ErrRetrieval, err)
	}
	n, _ := io.ReadFull(f, head)
	f.Close()

	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".pdf" || string(head[:n]) == pdfMagic:
		raw.Format = core.FormatPDF
		raw.Path = path
	case ext == ".md" || ext == ".markdown" || ext == ".txt":
		raw.Format = core.FormatMarkdown
		raw.Text, err = readUTF8(path)
	default:
		raw.Format = core.FormatHTML
		raw.Text, err = readHTML(path)
	}
	if err != nil {
		r.temps.Remove(path)
		return nil, fmt.Errorf("%w: %w", core.ErrRetrieval, err)
	}
	if raw.Path == "" {
		// Text was read into memory; the upload is no longer needed.
		r.temps.Remove(path)
	}
	raw.Attrs["format"] = string(raw.Format)
	return raw, nil
}

// Release deletes the temporary file backing raw, if the retriever owns it.
func (r *Retriever) Release(raw *core.RawSource) {
	if raw == nil || raw.Path == "" {
		return
	}
	if err := r.temps.Remove(raw.Path); err != nil {
		r.logger.Warn("removing temp file", "path", raw.Path, "error", err)
	}
}

// Close deletes every file still owned by the retriever.
func (r *Retriever) Close() error {
	return r.temps.RemoveAll()
}

func readUTF8(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return string(data), nil
}

// readHTML reads a local HTML file, decoding it from the charset declared
// in its <meta> tag when it is not UTF-8.
func readHTML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := decodeText(data, "")
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return text, nil
}

// decodeText converts body to UTF-8 using the declared or sniffed charset.
func decodeText(body []byte, contentType string) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}
	rd, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	if len(decoded) == 0 && len(body) > 0 {
		return "", errors.New("charset decoding produced no text")
	}
	return string(decoded), nil
}
