package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const (
	watsonxAPIVersion = "2024-10-08"
	// tokens are refreshed this long before they expire
	tokenSlack = time.Minute
)

// Watsonx calls the IBM watsonx.ai chat endpoint. API keys are exchanged
// for IAM bearer tokens, which are cached until shortly before expiry.
type Watsonx struct {
	http        *http.Client
	apiKey      string
	projectID   string
	baseURL     string
	iamURL      string
	model       string
	visionModel string

	mu      sync.Mutex
	token   string
	expires time.Time
}

// WatsonxOptions configures a Watsonx client.
type WatsonxOptions struct {
	APIKey      string
	ProjectID   string
	BaseURL     string
	IAMURL      string
	Model       string
	VisionModel string
	HTTPClient  *http.Client
}

func NewWatsonx(opts WatsonxOptions) (*Watsonx, error) {
	if opts.APIKey == "" || opts.ProjectID == "" || opts.BaseURL == "" {
		return nil, errors.New("watsonx requires an api key, project id and api url")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	vision := opts.VisionModel
	if vision == "" {
		vision = opts.Model
	}
	return &Watsonx{
		http:        hc,
		apiKey:      opts.APIKey,
		projectID:   opts.ProjectID,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		iamURL:      opts.IAMURL,
		model:       opts.Model,
		visionModel: vision,
	}, nil
}

func (w *Watsonx) Name() string { return "watsonx" }

type watsonxMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type watsonxRequest struct {
	ModelID   string           `json:"model_id"`
	ProjectID string           `json:"project_id"`
	Messages  []watsonxMessage `json:"messages"`
	MaxTokens int              `json:"max_tokens"`
	Temp      float64          `json:"temperature"`
}

func (w *Watsonx) Chat(ctx context.Context, p Prompt) (string, error) {
	var msgs []watsonxMessage
	if p.System != "" {
		msgs = append(msgs, watsonxMessage{Role: "system", Content: p.System})
	}
	msgs = append(msgs, watsonxMessage{Role: "user", Content: p.User})
	return w.chat(ctx, w.model, msgs)
}

func (w *Watsonx) Caption(ctx context.Context, img Image, instruction string) (string, error) {
	content := []map[string]any{
		{"type": "text", "text": instruction},
		{"type": "image_url", "image_url": map[string]string{"url": img.DataURI()}},
	}
	return w.chat(ctx, w.visionModel, []watsonxMessage{{Role: "user", Content: content}})
}

func (w *Watsonx) chat(ctx context.Context, model string, msgs []watsonxMessage) (string, error) {
	token, err := w.bearer(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(watsonxRequest{
		ModelID:   model,
		ProjectID: w.projectID,
		Messages:  msgs,
		MaxTokens: 4096,
		Temp:      0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	endpoint := w.baseURL + "/ml/v1/text/chat?version=" + watsonxAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	data, err := w.do(req)
	if err != nil {
		return "", fmt.Errorf("watsonx chat: %w", err)
	}
	content := gjson.GetBytes(data, "choices.0.message.content").String()
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// Ready verifies the API key by obtaining a token.
func (w *Watsonx) Ready(ctx context.Context) error {
	_, err := w.bearer(ctx)
	return err
}

func (w *Watsonx) bearer(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token != "" && time.Until(w.expires) > tokenSlack {
		return w.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ibm:params:oauth:grant-type:apikey")
	form.Set("apikey", w.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.iamURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	data, err := w.do(req)
	if err != nil {
		return "", fmt.Errorf("iam token exchange: %w", err)
	}
	token := gjson.GetBytes(data, "access_token").String()
	if token == "" {
		return "", errors.New("iam token exchange: response has no access_token")
	}
	w.token = token
	w.expires = time.Unix(gjson.GetBytes(data, "expiration").Int(), 0)
	return token, nil
}

func (w *Watsonx) do(req *http.Request) ([]byte, error) {
	resp, err := w.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(data))
	}
	return data, nil
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
