package formatter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel = openai.GPT4oMini

	openAIMaxTokens = 16384
)

// OpenAIModel implements Model with the chat completions API in JSON mode.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a client for apiKey. baseURL may be empty.
func NewOpenAIModel(apiKey, model, baseURL string) (*OpenAIModel, error) {
	const op = "NewOpenAIModel"

	if apiKey == "" {
		return nil, NewFormatError(op, ErrMissingCredentials, "OPENAI_API_KEY is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAIModel) Name() string { return o.model }

// Generate runs one chat completion and returns the first choice.
func (o *OpenAIModel) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	// Reasoning models reject MaxTokens and a custom temperature.
	if isReasoningModel(o.model) {
		req.MaxCompletionTokens = openAIMaxTokens
	} else {
		req.MaxTokens = openAIMaxTokens
		req.Temperature = 0.1
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices from OpenAI", ErrMalformedOutput)
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
