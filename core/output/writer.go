// Package output handles file naming and writing for TutorialPipe outputs.
// Tutorials are named after their source (e.g., example_com_docs_intro.md);
// per-run artifacts are grouped under a directory named for the run id.
package output

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Writer writes rendered output to disk.
type Writer struct {
	OutputDir string
}

// New creates a Writer targeting the given output directory.
// If outputDir is empty, it defaults to the current working directory.
func New(outputDir string) (*Writer, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		outputDir = wd
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Writer{OutputDir: outputDir}, nil
}

// WriteFile writes data to name, relative to the output directory unless
// name is absolute. Parent directories are created as needed.
func (w *Writer) WriteFile(name string, data []byte) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.OutputDir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	return path, nil
}

// WriteFor writes data under a filename derived from source.
// Example: https://example.com/docs/intro → example_com_docs_intro.md
func (w *Writer) WriteFor(source string, data []byte, ext string) (string, error) {
	return w.WriteFile(FilenameFor(source)+ext, data)
}

// WriteArtifact writes an intermediate file for a run under <dir>/<runID>/.
func (w *Writer) WriteArtifact(runID, name string, data []byte) (string, error) {
	if runID == "" {
		runID = "unknown"
	}
	return w.WriteFile(filepath.Join(sanitize(runID), name), data)
}

// FilenameFor converts a URL or a local path into a flat filename without
// extension.
func FilenameFor(source string) string {
	parsed, err := url.Parse(source)
	if err != nil || parsed.Host == "" {
		base := filepath.Base(source)
		return sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	parts := []string{sanitize(parsed.Host)}
	path := strings.Trim(parsed.Path, "/")
	if path != "" {
		for _, seg := range strings.Split(path, "/") {
			seg = strings.TrimSuffix(seg, filepath.Ext(seg))
			parts = append(parts, sanitize(seg))
		}
	}
	return strings.Join(parts, "_")
}

// sanitize replaces non-alphanumeric characters with underscores.
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
