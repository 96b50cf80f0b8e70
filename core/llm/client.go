// Package llm implements the model client used by every LLM-backed stage.
// A single Client interface covers chat completion and image captioning;
// backends are chosen once, at construction time.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// Task labels a call for logs, metrics and mock dispatch.
type Task string

const (
	TaskClassify Task = "classify"
	TaskAssign   Task = "assign"
	TaskGenerate Task = "generate"
	TaskRefine   Task = "refine"
	TaskCaption  Task = "caption"
)

// Prompt is a fully flattened chat request. Callers render structured data
// into User before the call; clients never see structured values.
type Prompt struct {
	Task   Task
	System string
	User   string
}

// Image is an image to caption.
type Image struct {
	Name string
	MIME string
	Data []byte
}

// DataURI encodes the image as a data: URI.
func (i Image) DataURI() string {
	return "data:" + i.mimeType() + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) mimeType() string {
	if i.MIME != "" {
		return i.MIME
	}
	return http.DetectContentType(i.Data)
}

// format returns the bare subtype, e.g. "png".
func (i Image) format() string {
	_, sub, ok := strings.Cut(i.mimeType(), "/")
	if !ok {
		return strings.TrimPrefix(path.Ext(i.Name), ".")
	}
	sub, _, _ = strings.Cut(sub, ";")
	return sub
}

// Client is the model capability shared by all stages.
type Client interface {
	Chat(ctx context.Context, p Prompt) (string, error)
	Caption(ctx context.Context, img Image, instruction string) (string, error)
	// Name identifies the backend, e.g. "ollama" or "mock".
	Name() string
}

// ReadyChecker is implemented by backends that can check their own readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// ErrEmptyResponse is returned when a backend answers without content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// CheckReady checks readiness of the innermost backend behind c. Backends
// without a readiness check are assumed ready.
func CheckReady(ctx context.Context, c Client) error {
	for c != nil {
		if p, ok := c.(ReadyChecker); ok {
			if err := p.Ready(ctx); err != nil {
				return fmt.Errorf("%s backend not ready: %w", c.Name(), err)
			}
			return nil
		}
		u, ok := c.(interface{ Unwrap() Client })
		if !ok {
			return nil
		}
		c = u.Unwrap()
	}
	return nil
}

// IsMock reports whether c is, or wraps, the mock backend.
func IsMock(c Client) bool {
	return c != nil && c.Name() == "mock"
}

// Funcs adapts plain functions to a Client.
type Funcs struct {
	ID        string
	ChatFn    func(ctx context.Context, p Prompt) (string, error)
	CaptionFn func(ctx context.Context, img Image, instruction string) (string, error)
}

func (f Funcs) Chat(ctx context.Context, p Prompt) (string, error) {
	if f.ChatFn == nil {
		return "", errors.New("chat not supported")
	}
	return f.ChatFn(ctx, p)
}

func (f Funcs) Caption(ctx context.Context, img Image, instruction string) (string, error) {
	if f.CaptionFn == nil {
		return "", errors.New("caption not supported")
	}
	return f.CaptionFn(ctx, img, instruction)
}

func (f Funcs) Name() string {
	if f.ID == "" {
		return "funcs"
	}
	return f.ID
}
