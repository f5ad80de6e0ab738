package ocr

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"fraudocr/pkg/models"
)

// usStates are matched against table cells; longer names are tried first so
// "West Virginia" never resolves to "Virginia".
var usStates = func() []string {
	states := []string{
		"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
		"Connecticut", "Delaware", "Florida", "Georgia", "Hawaii", "Idaho",
		"Illinois", "Indiana", "Iowa", "Kansas", "Kentucky", "Louisiana",
		"Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
		"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada",
		"New Hampshire", "New Jersey", "New Mexico", "New York",
		"North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon",
		"Pennsylvania", "Rhode Island", "South Carolina", "South Dakota",
		"Tennessee", "Texas", "Utah", "Vermont", "Virginia", "Washington",
		"West Virginia", "Wisconsin", "Wyoming", "District of Columbia",
	}
	sort.SliceStable(states, func(i, j int) bool { return len(states[i]) > len(states[j]) })
	return states
}()

// minStateValue drops rank columns and stray small numbers.
const minStateValue = 100

// Table is an HTML table from OCR output as rows of trimmed cell text.
type Table [][]string

// ParseTables returns every <table> found in html.
func ParseTables(html string) []Table {
	if !strings.Contains(html, "<table") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		var table Table
		t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, strings.TrimSpace(cell.Text()))
			})
			if len(row) > 0 {
				table = append(table, row)
			}
		})
		if len(table) > 0 {
			tables = append(tables, table)
		}
	})
	return tables
}

// StateFigure is what the OCR tables say about one state. Zero means unknown.
type StateFigure struct {
	State string
	Loss  int64
	Count int64
}

// ExtractStateFigures recovers per-state losses and complaint counts from the
// HTML tables of state ranking pages. For each state the largest value seen
// in a loss table and in a count table is kept.
func ExtractStateFigures(ocr *models.OCRResult) []StateFigure {
	if ocr == nil {
		return nil
	}
	byState := map[string]*StateFigure{}
	var order []string

	for _, page := range ocr.Results {
		if page.Status != models.PageStatusSuccess || !isStatePage(page.Text) {
			continue
		}
		pageMentionsLoss := strings.Contains(strings.ToUpper(page.Text), "LOSS")

		for _, table := range ParseTables(page.Text) {
			isLoss := pageMentionsLoss || tableHasDollar(table)
			for _, row := range table {
				if len(row) < 2 {
					continue
				}
				state := stateInRow(row)
				if state == "" {
					continue
				}
				for _, cell := range row {
					if strings.Contains(strings.ToLower(cell), strings.ToLower(state)) {
						continue
					}
					v, ok := models.ParseAmount(cell)
					if !ok || v <= minStateValue {
						continue
					}
					fig, seen := byState[state]
					if !seen {
						fig = &StateFigure{State: state}
						byState[state] = fig
						order = append(order, state)
					}
					if isLoss {
						fig.Loss = max(fig.Loss, int64(v))
					} else {
						fig.Count = max(fig.Count, int64(v))
					}
				}
			}
		}
	}

	out := make([]StateFigure, 0, len(order))
	for _, s := range order {
		out = append(out, *byState[s])
	}
	return out
}

func isStatePage(text string) bool {
	if !strings.Contains(text, "State") {
		return false
	}
	return strings.Contains(text, "Rank") || strings.Contains(text, "Count") ||
		strings.Contains(text, "Loss") || strings.Contains(strings.ToUpper(text), "LOSSES BY STATE")
}

func tableHasDollar(t Table) bool {
	for _, row := range t {
		for _, cell := range row {
			if strings.Contains(cell, "$") {
				return true
			}
		}
	}
	return false
}

func stateInRow(row []string) string {
	for _, cell := range row {
		lc := strings.ToLower(cell)
		for _, s := range usStates {
			if strings.Contains(lc, strings.ToLower(s)) {
				return s
			}
		}
	}
	for _, cell := range row {
		if strings.Contains(strings.ToLower(cell), "district of") {
			return "District of Columbia"
		}
	}
	return ""
}
