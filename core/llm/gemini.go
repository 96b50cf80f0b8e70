package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Client with the Google Generative AI SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	visionModel string
}

func NewGemini(ctx context.Context, apiKey, model, visionModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key missing; set GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if visionModel == "" {
		visionModel = model
	}
	return &Gemini{client: client, model: model, visionModel: visionModel}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Chat(ctx context.Context, p Prompt) (string, error) {
	// GenerativeModel carries the system instruction, so each call gets its own.
	model := g.client.GenerativeModel(g.model)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}
	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

func (g *Gemini) Caption(ctx context.Context, img Image, instruction string) (string, error) {
	model := g.client.GenerativeModel(g.visionModel)
	resp, err := model.GenerateContent(ctx, genai.ImageData(img.format(), img.Data), genai.Text(instruction))
	if err != nil {
		return "", fmt.Errorf("gemini caption: %w", err)
	}
	return responseText(resp)
}

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
