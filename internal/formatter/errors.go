package formatter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common formatting errors
var (
	// ErrRateLimited is returned by models when the provider throttles the call.
	// It is the only error the formatter retries.
	ErrRateLimited = errors.New("model rate limit exceeded")

	// ErrInvalidInput is returned when the OCR payload is not a JSON object.
	ErrInvalidInput = errors.New("formatter input is not a JSON object")

	// ErrMalformedOutput is returned when no JSON object can be recovered from
	// the model response.
	ErrMalformedOutput = errors.New("model returned no usable JSON")

	// ErrMissingCredentials is returned when the selected model has no key or project.
	ErrMissingCredentials = errors.New("missing model credentials")
)

// FormatError wraps errors with the formatting step that failed.
type FormatError struct {
	// Op is the operation that failed (e.g., "Format", "Generate").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("formatter: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("formatter: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *FormatError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFormatError creates a new FormatError.
func NewFormatError(op string, err error, details string) *FormatError {
	return &FormatError{Op: op, Err: err, Details: details}
}

// WrapFormatError wraps an error as a FormatError if it isn't already one.
func WrapFormatError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return NewFormatError(op, err, details)
}

// rateLimitMarkers are matched case-insensitively against error text for
// providers that only report throttling in the message.
var rateLimitMarkers = []string{"429", "resource exhausted", "resource_exhausted", "rate limit", "quota"}

// IsRateLimit reports whether err is a throttling signal from any provider.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
