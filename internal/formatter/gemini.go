package formatter

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"fraudocr/internal/logger"
)

const (
	DefaultGeminiModel  = "gemini-2.5-flash"
	DefaultVertexRegion = "us-central1"

	geminiMaxOutputTokens = 32768
)

// GeminiConfig selects a Vertex AI Gemini model.
type GeminiConfig struct {
	ProjectID       string
	Region          string
	Model           string
	CredentialsJSON string
	CredentialsFile string
}

// GeminiModel implements Model with Vertex AI Gemini in JSON mode.
type GeminiModel struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	log    zerolog.Logger
}

// NewGeminiModel creates the Vertex AI client and configures the model.
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	const op = "NewGeminiModel"

	if cfg.ProjectID == "" {
		return nil, NewFormatError(op, ErrMissingCredentials, "GOOGLE_CLOUD_PROJECT is required for Gemini")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultVertexRegion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region, opts...)
	if err != nil {
		return nil, WrapFormatError(op, err, "genai.NewClient")
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
		MaxOutputTokens:  genai.Ptr[int32](geminiMaxOutputTokens),
	}

	return &GeminiModel{
		client: client,
		model:  model,
		name:   cfg.Model,
		log:    logger.WithComponent("gemini"),
	}, nil
}

func (g *GeminiModel) Name() string { return g.name }

// Generate sends prompt and concatenates the text parts of the first candidate.
func (g *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty Gemini response", ErrMalformedOutput)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		g.log.Warn().
			Str("model", g.name).
			Msg("Gemini response truncated at the output token limit")
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}

// Close releases the Vertex AI client.
func (g *GeminiModel) Close() error {
	return g.client.Close()
}
