package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"fraudocr/internal/logger"
	"fraudocr/pkg/models"
)

type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

// DocumentAIExtractor implements Extractor with a Document AI OCR processor.
type DocumentAIExtractor struct {
	client  documentProcessor
	closer  func() error
	config  GoogleConfig
	timeout time.Duration
	log     zerolog.Logger
}

// NewDocumentAIExtractor creates a processor client for cfg.Location.
func NewDocumentAIExtractor(ctx context.Context, cfg GoogleConfig) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	if cfg.ProjectID == "" {
		return nil, NewOCRError(op, ErrMissingCredentials, "GOOGLE_CLOUD_PROJECT is required")
	}
	if cfg.ProcessorID == "" {
		return nil, NewOCRError(op, ErrOCRFailed, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	clientOptions, err := cfg.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Location != "us" {
		clientOptions = append(clientOptions, option.WithEndpoint(cfg.documentAIEndpoint()))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	d := newDocumentAIExtractor(client, cfg)
	d.closer = client.Close
	return d, nil
}

func newDocumentAIExtractor(client documentProcessor, cfg GoogleConfig) *DocumentAIExtractor {
	return &DocumentAIExtractor{
		client:  client,
		closer:  func() error { return nil },
		config:  cfg,
		timeout: 5 * time.Minute,
		log:     logger.WithComponent("ocr-documentai"),
	}
}

func (d *DocumentAIExtractor) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// Extract processes the document and splits the text by page anchors.
func (d *DocumentAIExtractor) Extract(ctx context.Context, doc *Document) (*models.OCRResult, error) {
	const op = "Extract"
	start := time.Now()

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.Content,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI call failed: %v", err))
	}

	result := pagesFromDocument(doc.Filename, resp.GetDocument())
	if result.SuccessfulPages() == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "Document AI returned no text")
	}

	d.log.Info().
		Str("file", doc.Filename).
		Int("pages", result.TotalPages).
		Dur("duration", time.Since(start)).
		Msg("Document AI OCR completed")

	return result, nil
}

// pagesFromDocument slices the document text into pages using each page's
// layout text anchor.
func pagesFromDocument(filename string, document *documentaipb.Document) *models.OCRResult {
	result := &models.OCRResult{Filename: filename}
	if document == nil {
		return result
	}
	text := document.GetText()

	for i, page := range document.GetPages() {
		number := int(page.GetPageNumber())
		if number == 0 {
			number = i + 1
		}
		pr := models.PageResult{Page: number, Status: models.PageStatusFailure}

		var b strings.Builder
		for _, seg := range page.GetLayout().GetTextAnchor().GetTextSegments() {
			startIdx, endIdx := seg.GetStartIndex(), seg.GetEndIndex()
			if startIdx < 0 || endIdx > int64(len(text)) || startIdx >= endIdx {
				continue
			}
			b.WriteString(text[startIdx:endIdx])
		}
		if pageText := b.String(); strings.TrimSpace(pageText) != "" {
			pr.Text = pageText
			pr.Status = models.PageStatusSuccess
		}
		result.Results = append(result.Results, pr)
	}

	// Processors without page layout still return the full text.
	if len(result.Results) == 0 && strings.TrimSpace(text) != "" {
		result.Results = []models.PageResult{{Page: 1, Text: text, Status: models.PageStatusSuccess}}
	}
	result.TotalPages = len(result.Results)
	return result
}

// Close closes the underlying Document AI client.
func (d *DocumentAIExtractor) Close() error {
	return d.closer()
}
