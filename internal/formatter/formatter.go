// Package formatter turns raw OCR JSON into the structured fraud analysis
// using a hosted generative model.
//
// Rate-limit responses are retried by a retry.Policy (3 retries, 2s/4s/8s by
// default). Every other failure, including exhausted retries, falls back to
// the original input unchanged with Result.Formatted set to false. Only
// context cancellation is returned as an error.
package formatter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fraudocr/internal/logger"
	"fraudocr/internal/retry"
	"fraudocr/pkg/models"
)

// Model is a generative backend that answers a prompt with text.
type Model interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Formatter is what the pipeline depends on.
type Formatter interface {
	Format(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result is the outcome of one Format call.
type Result struct {
	// JSON is the model output, or the untouched input on fallback.
	JSON json.RawMessage

	// Formatted is false when JSON is the fallback input.
	Formatted bool

	// Attempts counts model calls made.
	Attempts int

	// Model names the backend used.
	Model string

	// Err is the failure that caused the fallback.
	Err error
}

// Service implements Formatter over a Model.
type Service struct {
	model  Model
	policy retry.Policy
	log    zerolog.Logger
}

// NewService creates a formatter. A zero policy means retry.Default().
func NewService(model Model, policy retry.Policy) *Service {
	if policy.BaseDelay == 0 && policy.MaxRetries == 0 {
		policy = retry.Default()
	}
	return &Service{
		model:  model,
		policy: policy,
		log:    logger.WithComponent("formatter"),
	}
}

// Format asks the model to structure input.
func (s *Service) Format(ctx context.Context, input json.RawMessage) (*Result, error) {
	const op = "Format"

	trimmed := strings.TrimSpace(string(input))
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return nil, NewFormatError(op, ErrInvalidInput, "")
	}

	prompt, dropped := BuildPrompt(input)
	if dropped > 0 {
		s.log.Warn().
			Int("dropped_pages", dropped).
			Int("input_bytes", len(input)).
			Msg("Input too large, dropped pages without tables")
	}

	s.log.Debug().
		Str("model", s.model.Name()).
		Int("prompt_length", len(prompt)).
		Int("max_retries", s.policy.MaxRetries).
		Msg("Sending formatting request")

	policy := s.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", s.policy.MaxRetries).
			Dur("backoff", delay).
			Msg("Model rate limited, backing off")
	}

	var (
		output   json.RawMessage
		attempts int
	)
	err := policy.Do(ctx, IsRateLimit, func(ctx context.Context, attempt int) error {
		attempts = attempt
		text, err := s.model.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		extracted, err := ExtractJSON(text)
		if err != nil {
			s.log.Warn().
				Int("attempt", attempt).
				Int("response_length", len(text)).
				Msg("Model response contained no parseable JSON")
			return err
		}
		if err := checkOutput(extracted); err != nil {
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Msg("Model response is not a formatted analysis")
			return err
		}
		output = extracted
		return nil
	})

	result := &Result{Attempts: attempts, Model: s.model.Name()}
	if err == nil {
		result.JSON = output
		result.Formatted = true
		s.log.Info().
			Str("model", result.Model).
			Int("attempts", attempts).
			Int("output_bytes", len(output)).
			Msg("Formatting succeeded")
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, WrapFormatError(op, ctxErr, "")
	}

	result.JSON = append(json.RawMessage(nil), input...)
	result.Err = WrapFormatError(op, err, "")
	s.log.Warn().
		Err(err).
		Str("model", result.Model).
		Int("attempts", attempts).
		Bool("retries_exhausted", retry.IsExhausted(err)).
		Msg("Formatting failed, returning original input")
	return result, nil
}

// checkOutput accepts an analysis document with a "pages" key or a flat,
// non-empty label -> count table. Anything else, such as a refusal object,
// is ErrMalformedOutput.
func checkOutput(raw json.RawMessage) error {
	const op = "checkOutput"

	if _, err := models.ParseAnalysis(raw); err == nil {
		return nil
	}
	table, err := models.ParseFormattedTable(raw)
	if err != nil {
		return NewFormatError(op, ErrMalformedOutput, err.Error())
	}
	if len(table) == 0 {
		return NewFormatError(op, ErrMalformedOutput, "empty object")
	}
	return nil
}
