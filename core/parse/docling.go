package parse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Docling converts documents to Markdown through a docling-serve instance.
type Docling struct {
	baseURL string
	http    *http.Client
}

// NewDocling creates a client for the docling-serve API at baseURL.
func NewDocling(baseURL string, client *http.Client) *Docling {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Docling{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// ConvertFile uploads the file at path and returns its Markdown rendering.
func (d *Docling) ConvertFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return d.Convert(ctx, filepath.Base(path), data)
}

// Convert uploads data under filename and returns its Markdown rendering.
func (d *Docling) Convert(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	for k, v := range map[string]string{"to_formats": "md", "image_export_mode": "placeholder"} {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("writing form field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/convert/file", &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling docling: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading docling response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("docling returned status %d", resp.StatusCode)
	}

	if status := gjson.GetBytes(raw, "status").String(); status != "" && status != "success" && status != "partial_success" {
		return "", fmt.Errorf("docling conversion %s: %s", status, gjson.GetBytes(raw, "errors").Raw)
	}
	md := gjson.GetBytes(raw, "document.md_content")
	if !md.Exists() {
		return "", fmt.Errorf("docling response has no document.md_content")
	}
	return md.String(), nil
}
