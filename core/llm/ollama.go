package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

const ollamaPullTimeout = 30 * time.Minute

// Ollama talks to a local Ollama server. Chat and vision go through its
// OpenAI-compatible /v1 API; readiness and model pulls use the native API.
type Ollama struct {
	client      *openai.Client
	http        *http.Client
	baseURL     string
	model       string
	visionModel string
	autoPull    bool
	logger      *slog.Logger
}

// OllamaOptions configures an Ollama client.
type OllamaOptions struct {
	BaseURL     string
	Model       string
	VisionModel string
	AutoPull    bool
	HTTPClient  *http.Client
}

// NewOllama creates an Ollama client.
func NewOllama(opts OllamaOptions) *Ollama {
	base := strings.TrimRight(opts.BaseURL, "/")
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = base + "/v1"
	cfg.HTTPClient = hc
	vision := opts.VisionModel
	if vision == "" {
		vision = opts.Model
	}
	return &Ollama{
		client:      openai.NewClientWithConfig(cfg),
		http:        hc,
		baseURL:     base,
		model:       opts.Model,
		visionModel: vision,
		autoPull:    opts.AutoPull,
		logger:      slog.Default().With("component", "ollama"),
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Chat(ctx context.Context, p Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})
	return o.complete(ctx, o.model, messages)
}

func (o *Ollama) Caption(ctx context.Context, img Image, instruction string) (string, error) {
	messages := []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: instruction},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURI(),
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	}}
	return o.complete(ctx, o.visionModel, messages)
}

func (o *Ollama) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Ready checks that the daemon answers and the chat model is installed,
// pulling it first when auto-pull is enabled.
func (o *Ollama) Ready(ctx context.Context) error {
	models, err := o.installedModels(ctx)
	if err != nil {
		return err
	}
	if hasModel(models, o.model) {
		return nil
	}
	if !o.autoPull {
		return fmt.Errorf("model %q is not installed (run `ollama pull %s` or set OLLAMA_AUTO_PULL=true)", o.model, o.model)
	}
	return o.pull(ctx, o.model)
}

func (o *Ollama) installedModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama daemon not reachable at %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama /api/tags returned %d: %s", resp.StatusCode, body)
	}
	var names []string
	for _, n := range gjson.GetBytes(body, "models.#.name").Array() {
		names = append(names, n.String())
	}
	return names, nil
}

func (o *Ollama) pull(ctx context.Context, model string) error {
	o.logger.Info("pulling model", "model", model)
	body, err := json.Marshal(map[string]any{"model": model, "stream": false})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, ollamaPullTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("pulling %s: %w", model, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama /api/pull returned %d: %s", resp.StatusCode, data)
	}
	if msg := gjson.GetBytes(data, "error"); msg.Exists() {
		return fmt.Errorf("pulling %s: %s", model, msg.String())
	}
	o.logger.Info("model pulled", "model", model)
	return nil
}

// hasModel matches "name" against installed "name:tag" entries, treating
// a missing tag as ":latest".
func hasModel(installed []string, model string) bool {
	if !strings.Contains(model, ":") {
		model += ":latest"
	}
	return slices.Contains(installed, model)
}
