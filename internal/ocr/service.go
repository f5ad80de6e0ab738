// Package ocr turns scanned PDF documents into per-page text.
//
// Three backends implement Extractor:
//   - HTTPClient posts the document to a remote OCR endpoint
//   - VisionExtractor calls Google Cloud Vision document text detection
//   - DocumentAIExtractor calls a Google Document AI OCR processor
//
// None of them retries on its own; a failed call is returned to the caller.
// Pages the backend could not read come back with status failure instead of
// failing the whole document.
//
// Required environment for the Google backends:
//   - GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_KEY
//   - GOOGLE_CLOUD_PROJECT
package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"fraudocr/pkg/models"
)

// MaxFileSizeBytes is the largest document accepted for upload (20MB).
const MaxFileSizeBytes = 20 * 1024 * 1024

// Extractor is implemented by every OCR backend.
type Extractor interface {
	// Extract returns one result per page, ordered by page number.
	Extract(ctx context.Context, doc *Document) (*models.OCRResult, error)
}

// Document is a PDF held in memory.
type Document struct {
	// Filename is the base name used as the cache key.
	Filename string

	// Content is the raw PDF.
	Content []byte
}

// LoadDocument reads a PDF from disk and checks it looks like one.
func LoadDocument(path string) (*Document, error) {
	const op = "LoadDocument"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to read %s", path))
	}
	doc := &Document{Filename: filepath.Base(path), Content: data}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks size and PDF header.
func (d *Document) Validate() error {
	const op = "Validate"

	if len(d.Content) > MaxFileSizeBytes {
		return WrapOCRError(op, ErrPDFTooLarge, fmt.Sprintf("file size: %d bytes", len(d.Content)))
	}
	if len(d.Content) < 4 || string(d.Content[:4]) != "%PDF" {
		return WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}
	return nil
}
