package models

import (
	"fmt"
	"strings"
)

// PageStatus reports whether OCR succeeded for a single page.
type PageStatus string

const (
	PageStatusSuccess PageStatus = "success"
	PageStatusFailure PageStatus = "failure"
)

// PageResult is the OCR output for one page.
type PageResult struct {
	Page   int        `json:"page"`
	Text   string     `json:"text"`
	Status PageStatus `json:"status"`
}

// OCRResult is the raw payload returned by an OCR backend, ordered by page.
type OCRResult struct {
	Filename   string       `json:"filename"`
	TotalPages int          `json:"total_pages"`
	Results    []PageResult `json:"results"`
}

// Validate checks the structural invariants of an OCR payload.
func (r *OCRResult) Validate() error {
	if r == nil {
		return fmt.Errorf("ocr result is nil")
	}
	if strings.TrimSpace(r.Filename) == "" {
		return fmt.Errorf("ocr result has no filename")
	}
	if len(r.Results) == 0 {
		return fmt.Errorf("ocr result for %s has no pages", r.Filename)
	}
	prev := 0
	for i, p := range r.Results {
		if p.Page <= prev {
			return fmt.Errorf("page %d out of order at index %d", p.Page, i)
		}
		if p.Status != PageStatusSuccess && p.Status != PageStatusFailure {
			return fmt.Errorf("page %d has unknown status %q", p.Page, p.Status)
		}
		prev = p.Page
	}
	return nil
}

// SuccessfulPages counts pages with status success.
func (r *OCRResult) SuccessfulPages() int {
	n := 0
	for _, p := range r.Results {
		if p.Status == PageStatusSuccess {
			n++
		}
	}
	return n
}

// Text joins the text of all successful pages.
func (r *OCRResult) Text() string {
	var b strings.Builder
	for _, p := range r.Results {
		if p.Status != PageStatusSuccess {
			continue
		}
		if b.Len() > 0 {
			fmt.Fprintf(&b, "\n\n--- Page %d ---\n\n", p.Page)
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Clone returns a deep copy.
func (r *OCRResult) Clone() *OCRResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Results = append([]PageResult(nil), r.Results...)
	return &c
}
