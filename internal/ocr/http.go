package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fraudocr/internal/logger"
	"fraudocr/pkg/models"
)

const (
	// DefaultHTTPTimeout bounds a single upload; large scans take minutes.
	DefaultHTTPTimeout = 10 * time.Minute

	// failedPageMarker is what the endpoint writes for pages it could not read.
	failedPageMarker = "Error: OCR failed"
)

// HTTPConfig configures the remote OCR endpoint client.
type HTTPConfig struct {
	// Endpoint is the base URL; documents are posted to Endpoint + "/ocr/pdf".
	Endpoint string

	// Token is sent as a bearer token when set.
	Token string

	Timeout time.Duration
}

// HTTPClient uploads documents to a remote OCR service.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client
	log      zerolog.Logger
}

// NewHTTPClient creates a client for the endpoint in cfg.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	const op = "NewHTTPClient"

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, NewOCRError(op, ErrEndpointUnavailable, "OCR_ENDPOINT is not set")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{
		endpoint: endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		log:      logger.WithComponent("ocr-http"),
	}, nil
}

// wireResponse covers both the structured and the legacy endpoint payloads.
type wireResponse struct {
	Filename   string `json:"filename"`
	TotalPages int    `json:"total_pages"`
	Results    []struct {
		Page   int    `json:"page"`
		Text   string `json:"text"`
		Status string `json:"status"`
	} `json:"results"`
	OCRResults []string `json:"ocr_results"`
	Error      string   `json:"error"`
}

// Extract uploads doc and returns the per-page text.
func (c *HTTPClient) Extract(ctx context.Context, doc *Document) (*models.OCRResult, error) {
	const op = "Extract"

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	body, contentType, err := multipartBody(doc)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to build upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/ocr/pdf", body)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to build request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Info().
		Str("file", doc.Filename).
		Int("bytes", len(doc.Content)).
		Str("endpoint", c.endpoint).
		Msg("Uploading document for OCR")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NewOCRError(op, ErrEndpointUnavailable, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewOCRError(op, ErrEndpointUnavailable, fmt.Sprintf("failed to read response: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewOCRError(op, ErrUnauthorized, fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, NewOCRError(op, ErrInvalidPDF, fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(raw)))
	case resp.StatusCode >= 500:
		return nil, NewOCRError(op, ErrOCRFailed, fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(raw)))
	case resp.StatusCode != http.StatusOK:
		return nil, NewOCRError(op, ErrEndpointUnavailable, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	result, err := decodeResponse(raw, doc.Filename)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	c.log.Info().
		Str("file", result.Filename).
		Int("pages", result.TotalPages).
		Int("successful_pages", result.SuccessfulPages()).
		Dur("duration", time.Since(start)).
		Msg("OCR completed")

	return result, nil
}

func multipartBody(doc *Document) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", doc.Filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeResponse normalises either payload shape into an OCRResult.
func decodeResponse(raw []byte, filename string) (*models.OCRResult, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrOCRFailed, wire.Error)
	}

	result := &models.OCRResult{Filename: wire.Filename}
	if result.Filename == "" {
		result.Filename = filename
	}

	switch {
	case len(wire.Results) > 0:
		for i, r := range wire.Results {
			page := r.Page
			if page == 0 {
				page = i + 1
			}
			result.Results = append(result.Results, models.PageResult{
				Page:   page,
				Text:   r.Text,
				Status: pageStatus(r.Status, r.Text),
			})
		}
	case len(wire.OCRResults) > 0:
		for i, text := range wire.OCRResults {
			result.Results = append(result.Results, models.PageResult{
				Page:   i + 1,
				Text:   text,
				Status: pageStatus("", text),
			})
		}
	default:
		return nil, fmt.Errorf("%w: no pages in response", ErrMalformedResponse)
	}

	result.TotalPages = wire.TotalPages
	if result.TotalPages < len(result.Results) {
		result.TotalPages = len(result.Results)
	}
	if err := result.Validate(); err != nil {
		return nil, errors.Join(ErrMalformedResponse, err)
	}
	return result, nil
}

func pageStatus(status, text string) models.PageStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(models.PageStatusSuccess):
		return models.PageStatusSuccess
	case string(models.PageStatusFailure), "failed", "error":
		return models.PageStatusFailure
	}
	if strings.HasPrefix(strings.TrimSpace(text), failedPageMarker) {
		return models.PageStatusFailure
	}
	return models.PageStatusSuccess
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
