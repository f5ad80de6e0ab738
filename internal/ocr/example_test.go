package ocr_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"fraudocr/internal/ocr"
)

// Example uploads a report to a remote OCR endpoint.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := ocr.NewHTTPClient(ocr.HTTPConfig{Endpoint: "https://ocr.example.com"})
	if err != nil {
		log.Fatalf("Failed to create OCR client: %v", err)
	}

	doc, err := ocr.LoadDocument("2023_IC3Report.pdf")
	if err != nil {
		log.Fatalf("Failed to load PDF: %v", err)
	}

	result, err := client.Extract(ctx, doc)
	if err != nil {
		log.Fatalf("OCR failed: %v", err)
	}

	for _, page := range result.Results {
		fmt.Printf("page %d: %s (%d characters)\n", page.Page, page.Status, len(page.Text))
	}
}

// ExampleExtractStateFigures recovers per-state figures from OCR tables.
func ExampleExtractStateFigures() {
	ctx := context.Background()

	extractor, err := ocr.NewVisionExtractor(ctx, ocr.GoogleConfig{ProjectID: "my-project"})
	if err != nil {
		log.Fatalf("Failed to create Vision extractor: %v", err)
	}
	defer extractor.Close()

	doc, err := ocr.LoadDocument("2023_IC3Report.pdf")
	if err != nil {
		log.Fatalf("Failed to load PDF: %v", err)
	}
	result, err := extractor.Extract(ctx, doc)
	if err != nil {
		log.Fatalf("OCR failed: %v", err)
	}

	for _, fig := range ocr.ExtractStateFigures(result) {
		fmt.Printf("%s: $%d lost, %d complaints\n", fig.State, fig.Loss, fig.Count)
	}
}
