package cache

import (
	"encoding/json"
	"fmt"

	"fraudocr/pkg/models"
)

// encodedRecord is a Record with its JSON columns serialised.
type encodedRecord struct {
	formatted  string
	ocr        *string
	keywords   string
	keyMetrics *string
}

func encodeRecord(rec *models.Record) (*encodedRecord, error) {
	enc := &encodedRecord{formatted: string(rec.FormattedJSON)}
	if len(rec.FormattedJSON) == 0 {
		enc.formatted = "{}"
	}

	if rec.OCR != nil {
		b, err := json.Marshal(rec.OCR)
		if err != nil {
			return nil, fmt.Errorf("encode ocr data: %w", err)
		}
		s := string(b)
		enc.ocr = &s
	}

	keywords := rec.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("encode keywords: %w", err)
	}
	enc.keywords = string(b)

	if rec.KeyMetrics != nil {
		b, err := json.Marshal(rec.KeyMetrics)
		if err != nil {
			return nil, fmt.Errorf("encode key metrics: %w", err)
		}
		s := string(b)
		enc.keyMetrics = &s
	}
	return enc, nil
}

// decodeColumns fills the JSON-backed fields of rec. Empty columns are left zero.
func decodeColumns(rec *models.Record, ocr, keywords, keyMetrics []byte) error {
	if len(ocr) > 0 && string(ocr) != "null" {
		var r models.OCRResult
		if err := json.Unmarshal(ocr, &r); err != nil {
			return fmt.Errorf("decode original_ocr_data: %w", err)
		}
		rec.OCR = &r
	}
	if len(keywords) > 0 && string(keywords) != "null" {
		if err := json.Unmarshal(keywords, &rec.Keywords); err != nil {
			return fmt.Errorf("decode keywords: %w", err)
		}
	}
	if len(keyMetrics) > 0 && string(keyMetrics) != "null" {
		var km models.KeyMetrics
		if err := json.Unmarshal(keyMetrics, &km); err != nil {
			return fmt.Errorf("decode key_metrics: %w", err)
		}
		rec.KeyMetrics = &km
	}
	return nil
}
