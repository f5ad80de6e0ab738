// Package report turns cached records into fraud statistics and renders them
// as markdown or HTML with text bar charts.
package report

import (
	"strings"

	"fraudocr/internal/ocr"
	"fraudocr/pkg/models"
)

// Figure is a loss/victim pair for one label within one document.
type Figure struct {
	Label   string
	Loss    float64
	Victims float64
}

// StateRow is one state entry within one document.
type StateRow struct {
	State     string
	Loss      float64
	Victims   float64
	Incidents float64
}

// DocumentMetrics is what a single record contributes to the report.
type DocumentMetrics struct {
	Filename     string
	Year         int
	TotalLoss    float64
	TotalVictims float64
	Categories   []Figure
	AgeGroups    []Figure
	States       []StateRow

	// Formatted is false when the record holds fallback OCR instead of an
	// analysis; only state figures can then be recovered.
	Formatted bool
}

var agePatterns = []string{"under", "over", "age", "20", "30", "40", "50", "60"}

func isAgeGroup(label string) bool {
	l := strings.ToLower(label)
	for _, p := range agePatterns {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}

// ExtractMetrics pulls fraud figures out of a record's formatted JSON. When
// the JSON is not an analysis, per-state figures are recovered from the HTML
// tables in the raw OCR.
func ExtractMetrics(rec *models.Record) DocumentMetrics {
	m := DocumentMetrics{Filename: rec.Filename}

	a, err := models.ParseAnalysis(rec.FormattedJSON)
	if err != nil {
		m.Year = models.YearFromFilename(rec.Filename)
		if rec.KeyMetrics != nil && rec.KeyMetrics.Year != 0 {
			m.Year = rec.KeyMetrics.Year
		}
		for _, sf := range ocr.ExtractStateFigures(rec.OCR) {
			m.States = append(m.States, StateRow{
				State:     sf.State,
				Loss:      float64(sf.Loss),
				Victims:   float64(sf.Count),
				Incidents: float64(sf.Count),
			})
		}
		return m
	}

	m.Formatted = true
	m.Year = int(a.Year)
	if m.Year == 0 && a.OverallMetrics != nil {
		m.Year = int(a.OverallMetrics.Year)
	}
	if m.Year == 0 {
		m.Year = models.YearFromFilename(rec.Filename)
	}

	if om := a.OverallMetrics; om != nil {
		m.TotalLoss = num(om.TotalLoss)
		m.TotalVictims = num(om.TotalVictims)
		for _, c := range om.LossesByCategory {
			m.Categories = append(m.Categories, Figure{Label: c.Category, Loss: num(c.Amount), Victims: num(c.VictimCount)})
		}
		for _, s := range om.LossesByState {
			m.States = append(m.States, stateRow(s))
		}
	}

	for _, p := range a.Pages {
		if p.FraudMetrics != nil {
			for _, t := range p.FraudMetrics.Tables {
				m.addTable(t)
			}
		}
		if fd := p.FinancialData; fd != nil {
			for _, c := range fd.LossesByCategory {
				m.Categories = append(m.Categories, Figure{Label: c.Category, Loss: num(c.Amount), Victims: num(c.VictimCount)})
			}
			for _, s := range fd.LossesByState {
				m.States = append(m.States, stateRow(s))
			}
		}
	}
	return m
}

func (m *DocumentMetrics) addTable(t models.Table) {
	stateTable := strings.Contains(strings.ToLower(t.Title), "state")
	if !stateTable && len(t.Headers) > 0 {
		h := strings.ToLower(strings.Join(t.Headers, " "))
		stateTable = strings.Contains(h, "state") &&
			(strings.Contains(h, "rank") || strings.Contains(h, "count") || strings.Contains(h, "loss"))
	}

	for _, row := range t.Rows {
		if state := rowString(row, "state", "State"); state != "" || stateTable {
			if state == "" {
				continue
			}
			if state == "District of" {
				state = "District of Columbia"
			}
			count := rowNumber(row, "victim_count", "victims", "count", "Count")
			incidents := rowNumber(row, "incidents", "Incidents", "count", "Count")
			m.States = append(m.States, StateRow{
				State:     state,
				Loss:      rowNumber(row, "loss", "amount", "total_loss", "Loss"),
				Victims:   count,
				Incidents: incidents,
			})
			continue
		}

		category := rowString(row, "category")
		loss := rowNumber(row, "total_loss")
		if category == "" || loss == 0 {
			continue
		}
		f := Figure{Label: category, Loss: loss, Victims: rowNumber(row, "victim_count")}
		if isAgeGroup(category) {
			m.AgeGroups = append(m.AgeGroups, f)
		} else {
			m.Categories = append(m.Categories, f)
		}
	}
}

func stateRow(s models.StateLoss) StateRow {
	r := StateRow{State: strings.TrimSpace(s.State), Loss: num(s.Amount), Victims: num(s.VictimCount), Incidents: num(s.Incidents)}
	if r.State == "District of" {
		r.State = "District of Columbia"
	}
	return r
}

func num(n *models.Number) float64 {
	if n == nil {
		return 0
	}
	return n.Float()
}

// rowNumber returns the first non-zero numeric value among keys.
func rowNumber(row map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if n, ok := models.AnyNumber(row[k]); ok && n != 0 {
			return n
		}
	}
	return 0
}

func rowString(row map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := row[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
