package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Analysis is the structured document produced by the formatter model.
type Analysis struct {
	Filename       string          `json:"filename"`
	TotalPages     Int             `json:"total_pages"`
	Year           Int             `json:"year"`
	DocumentType   string          `json:"document_type"`
	Pages          []AnalysisPage  `json:"pages"`
	OverallMetrics *OverallMetrics `json:"overall_metrics"`
	OverallSummary string          `json:"overall_summary"`
}

type AnalysisPage struct {
	PageNumber     Int            `json:"page_number"`
	ContentSummary string         `json:"content_summary"`
	FraudMetrics   *FraudMetrics  `json:"fraud_metrics,omitempty"`
	FinancialData  *FinancialData `json:"financial_data,omitempty"`
}

type FraudMetrics struct {
	Tables        []Table  `json:"tables"`
	TotalLoss     *Number  `json:"total_loss"`
	TotalVictims  *Number  `json:"total_victims"`
	TopCategories []string `json:"top_categories"`
}

// Table is one extracted table. Rows keep the model's keys as-is.
type Table struct {
	Title   string           `json:"title"`
	Headers []string         `json:"headers"`
	Rows    []map[string]any `json:"rows"`
}

type FinancialData struct {
	LossesByCategory []CategoryLoss `json:"losses_by_category"`
	LossesByState    []StateLoss    `json:"losses_by_state"`
	TotalLoss        *Number        `json:"total_loss"`
}

type CategoryLoss struct {
	Category    string  `json:"category"`
	Amount      *Number `json:"amount"`
	VictimCount *Number `json:"victim_count"`
}

type StateLoss struct {
	State       string  `json:"state"`
	Amount      *Number `json:"amount"`
	VictimCount *Number `json:"victim_count"`
	Incidents   *Number `json:"incidents"`
}

type OverallMetrics struct {
	TotalLoss          *Number        `json:"total_loss"`
	TotalVictims       *Number        `json:"total_victims"`
	Year               Int            `json:"year"`
	TopFraudCategories []string       `json:"top_fraud_categories"`
	LossesByCategory   []CategoryLoss `json:"losses_by_category"`
	LossesByState      []StateLoss    `json:"losses_by_state"`
}

// ErrNotAnalysis is returned when JSON does not carry the analysis shape.
var ErrNotAnalysis = errors.New("json is not a formatted analysis")

// ParseAnalysis decodes raw into an Analysis. The object must at least carry a
// "pages" key; fallback OCR payloads do not.
func ParseAnalysis(raw json.RawMessage) (*Analysis, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnalysis, err)
	}
	if _, ok := keys["pages"]; !ok {
		return nil, ErrNotAnalysis
	}
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnalysis, err)
	}
	return &a, nil
}

// CategoryCounts collapses the analysis into label -> victim count. Overall
// metrics win over per-page figures, which win over raw table rows.
func (a *Analysis) CategoryCounts() FormattedTable {
	out := FormattedTable{}
	add := func(label string, n float64) {
		if label == "" || n < 0 {
			return
		}
		if _, ok := out[label]; !ok {
			out[label] = int64(n)
		}
	}
	if a.OverallMetrics != nil {
		for _, c := range a.OverallMetrics.LossesByCategory {
			if c.VictimCount != nil {
				add(c.Category, c.VictimCount.Float())
			}
		}
	}
	for _, p := range a.Pages {
		if p.FinancialData != nil {
			for _, c := range p.FinancialData.LossesByCategory {
				if c.VictimCount != nil {
					add(c.Category, c.VictimCount.Float())
				}
			}
		}
		if p.FraudMetrics == nil {
			continue
		}
		for _, t := range p.FraudMetrics.Tables {
			for _, row := range t.Rows {
				label, _ := row["category"].(string)
				for _, key := range []string{"victim_count", "count", "victims"} {
					if n, ok := AnyNumber(row[key]); ok {
						add(label, n)
						break
					}
				}
			}
		}
	}
	return out
}

// FormattedTable maps a crime-type label to a non-negative count.
type FormattedTable map[string]int64

// ParseFormattedTable reads either a flat {"label": count} object or a full
// Analysis document.
func ParseFormattedTable(raw json.RawMessage) (FormattedTable, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var flat map[string]any
	if err := dec.Decode(&flat); err != nil {
		return nil, fmt.Errorf("decode formatted table: %w", err)
	}
	if _, ok := flat["pages"]; ok {
		a, err := ParseAnalysis(raw)
		if err != nil {
			return nil, err
		}
		return a.CategoryCounts(), nil
	}
	table := make(FormattedTable, len(flat))
	for k, v := range flat {
		n, ok := AnyNumber(v)
		if !ok {
			return nil, fmt.Errorf("value for %q is not a count", k)
		}
		if n < 0 {
			return nil, fmt.Errorf("negative count for %q", k)
		}
		table[k] = int64(n)
	}
	return table, nil
}

// yearPattern only matches four-digit runs, not digits inside longer numbers.
var yearPattern = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)

// YearFromFilename returns the first plausible year in name, or 0.
func YearFromFilename(name string) int {
	m := yearPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}
