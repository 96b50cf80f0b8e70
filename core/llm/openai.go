package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Client using the official openai-go SDK against any
// OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      openai.Client
	model       string
	visionModel string
}

// OpenAIOptions configures an OpenAI client.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai api key missing; set OPENAI_API_KEY")
	}
	if opts.Model == "" {
		return nil, errors.New("openai model is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	vision := opts.VisionModel
	if vision == "" {
		vision = opts.Model
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), model: opts.Model, visionModel: vision}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Chat(ctx context.Context, p Prompt) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))
	return o.complete(ctx, o.model, msgs)
}

func (o *OpenAI) Caption(ctx context.Context, img Image, instruction string) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(instruction),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.DataURI()}),
	}
	return o.complete(ctx, o.visionModel, []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)})
}

func (o *OpenAI) complete(ctx context.Context, model string, msgs []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
