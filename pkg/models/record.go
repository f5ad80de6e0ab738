package models

import (
	"encoding/json"
	"time"
)

// Record is the cached analysis of one document. Filename is the unique key;
// saving a record for an existing filename replaces it.
type Record struct {
	Filename      string          `json:"filename"`
	FormattedJSON json.RawMessage `json:"formatted_json"`
	OCR           *OCRResult      `json:"original_ocr_data,omitempty"`
	Formatted     bool            `json:"formatted"`
	Keywords      []string        `json:"keywords,omitempty"`
	KeyMetrics    *KeyMetrics     `json:"key_metrics,omitempty"`
	TotalPages    int             `json:"total_pages"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	CachedAt      time.Time       `json:"cached_at"`
}

// KeyMetrics summarises a record for listings and reports.
type KeyMetrics struct {
	DocumentType       string   `json:"document_type"`
	OverallSummary     string   `json:"overall_summary"`
	TotalPagesAnalyzed int      `json:"total_pages_analyzed"`
	Year               int      `json:"year,omitempty"`
	TotalLoss          *Number  `json:"total_loss"`
	TotalVictims       *Number  `json:"total_victims"`
	TopFraudCategories []string `json:"top_fraud_categories"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.FormattedJSON = append(json.RawMessage(nil), r.FormattedJSON...)
	c.OCR = r.OCR.Clone()
	c.Keywords = append([]string(nil), r.Keywords...)
	if r.KeyMetrics != nil {
		km := *r.KeyMetrics
		km.TopFraudCategories = append([]string(nil), r.KeyMetrics.TopFraudCategories...)
		c.KeyMetrics = &km
	}
	return &c
}

// Derive fills Keywords, KeyMetrics and TotalPages from the formatted JSON and
// the raw OCR. Records holding fallback output still get a year and page count.
func (r *Record) Derive() {
	if r.OCR != nil && r.TotalPages == 0 {
		r.TotalPages = r.OCR.TotalPages
		if r.TotalPages == 0 {
			r.TotalPages = len(r.OCR.Results)
		}
	}

	km := &KeyMetrics{TopFraudCategories: []string{}}
	if a, err := ParseAnalysis(r.FormattedJSON); err == nil {
		km.DocumentType = a.DocumentType
		km.OverallSummary = a.OverallSummary
		km.TotalPagesAnalyzed = len(a.Pages)
		km.Year = int(a.Year)
		if a.OverallMetrics != nil {
			km.TotalLoss = a.OverallMetrics.TotalLoss
			km.TotalVictims = a.OverallMetrics.TotalVictims
			if km.Year == 0 {
				km.Year = int(a.OverallMetrics.Year)
			}
			if len(a.OverallMetrics.TopFraudCategories) > 0 {
				km.TopFraudCategories = append([]string(nil), a.OverallMetrics.TopFraudCategories...)
			}
		}
	}
	if km.Year == 0 {
		km.Year = YearFromFilename(r.Filename)
	}
	r.Keywords = append([]string(nil), km.TopFraudCategories...)
	r.KeyMetrics = km
}
