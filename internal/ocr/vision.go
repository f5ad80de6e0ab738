package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"fraudocr/internal/logger"
	"fraudocr/pkg/models"
)

// MaxPagesSync is the number of pages Vision accepts per synchronous file request.
const MaxPagesSync = 5

// fileAnnotator is the part of the Vision client used here.
type fileAnnotator interface {
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error)
}

// VisionExtractor implements Extractor with Google Cloud Vision document
// text detection. Documents longer than MaxPagesSync are sent in page batches.
type VisionExtractor struct {
	client    fileAnnotator
	closer    func() error
	pageCount func(*Document) (int, error)
	log       zerolog.Logger
}

// NewVisionExtractor creates a Vision client from cfg credentials.
func NewVisionExtractor(ctx context.Context, cfg GoogleConfig) (*VisionExtractor, error) {
	const op = "NewVisionExtractor"

	opts, err := cfg.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	v := newVisionExtractor(client, PageCount)
	v.closer = client.Close
	return v, nil
}

func newVisionExtractor(client fileAnnotator, pageCount func(*Document) (int, error)) *VisionExtractor {
	return &VisionExtractor{
		client:    client,
		closer:    func() error { return nil },
		pageCount: pageCount,
		log:       logger.WithComponent("ocr-vision"),
	}
}

// Extract runs document text detection over every page.
func (v *VisionExtractor) Extract(ctx context.Context, doc *Document) (*models.OCRResult, error) {
	const op = "Extract"
	start := time.Now()

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	total, err := v.pageCount(doc)
	if err != nil {
		return nil, err
	}

	result := &models.OCRResult{Filename: doc.Filename, TotalPages: total}
	for first := 1; first <= total; first += MaxPagesSync {
		last := min(first+MaxPagesSync-1, total)
		pages, err := v.annotate(ctx, doc, first, last)
		if err != nil {
			return nil, WrapOCRError(op, err, fmt.Sprintf("pages %d-%d", first, last))
		}
		result.Results = append(result.Results, pages...)
	}

	if result.SuccessfulPages() == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, fmt.Sprintf("%d pages, none readable", total))
	}

	v.log.Info().
		Str("file", doc.Filename).
		Int("pages", total).
		Int("successful_pages", result.SuccessfulPages()).
		Dur("duration", time.Since(start)).
		Msg("Vision OCR completed")

	return result, nil
}

// annotate sends pages first..last (1-based, inclusive) in one request.
// Page-level errors become failure pages; only a failed call is an error.
func (v *VisionExtractor) annotate(ctx context.Context, doc *Document, first, last int) ([]models.PageResult, error) {
	pageNumbers := make([]int32, 0, last-first+1)
	for p := first; p <= last; p++ {
		pageNumbers = append(pageNumbers, int32(p))
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  doc.Content,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				Pages: pageNumbers,
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: Vision API call failed: %v", ErrOCRFailed, err)
	}

	out := make([]models.PageResult, len(pageNumbers))
	for i, p := range pageNumbers {
		out[i] = models.PageResult{Page: int(p), Status: models.PageStatusFailure}
	}
	if len(resp.GetResponses()) == 0 {
		return out, nil
	}

	fileResp := resp.GetResponses()[0]
	if fileResp.GetError() != nil {
		v.log.Warn().
			Str("file", doc.Filename).
			Int("first_page", first).
			Str("error", fileResp.GetError().GetMessage()).
			Msg("Vision rejected page batch")
		return out, nil
	}

	for i, page := range fileResp.GetResponses() {
		if i >= len(out) {
			break
		}
		if page.GetError() != nil {
			v.log.Warn().
				Int("page", out[i].Page).
				Str("error", page.GetError().GetMessage()).
				Msg("Vision failed on page")
			continue
		}
		text := page.GetFullTextAnnotation().GetText()
		if strings.TrimSpace(text) == "" {
			continue
		}
		out[i].Text = text
		out[i].Status = models.PageStatusSuccess
	}
	return out, nil
}

// Close closes the underlying Vision client.
func (v *VisionExtractor) Close() error {
	return v.closer()
}
