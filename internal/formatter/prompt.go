package formatter

import (
	"encoding/json"
	"fmt"
	"strings"

	"fraudocr/pkg/models"
)

const (
	// MaxPromptInputBytes is the OCR payload size above which low-value pages
	// are dropped before prompting.
	MaxPromptInputBytes = 150000

	// minPageTextLen keeps pages without tables that still carry real prose.
	minPageTextLen = 200
)

// SystemPrompt is sent as the model's system instruction.
const SystemPrompt = `You extract fraud statistics from OCR output of FBI Internet Crime Complaint Center reports.
The OCR text contains HTML tables. Parse every <table>, every <tr> row and every <td> cell.
Convert numbers by removing "$" and thousands separators. Never invent values; use null when a value is absent.
Respond with a single JSON object and nothing else.`

const userPromptTemplate = `Analyze the following OCR output and extract fraud-specific metrics and financial data.

Extract, from all HTML tables:
1. Financial losses by fraud category (exact amounts)
2. Every fraud category with its victim count
3. Victim statistics by age group
4. Complaint counts and losses by US state
5. Multi-year comparisons, one row per category and year
6. The year or period the report covers
7. Totals: total loss, total victims, top fraud categories

OCR Data:
%s

Return a JSON object with this structure:
{
  "filename": "document.pdf",
  "total_pages": 2,
  "year": 2020,
  "document_type": "fraud report",
  "pages": [
    {
      "page_number": 1,
      "content_summary": "brief summary focusing on fraud metrics",
      "fraud_metrics": {
        "tables": [
          {"title": "Crime Types", "headers": ["Category", "Victim Count", "Total Loss"],
           "rows": [{"category": "Category Name", "victim_count": 12345, "total_loss": 123456789, "year": 2020}]},
          {"title": "Age Groups", "headers": ["Age Range", "Count", "Loss"],
           "rows": [{"age_group": "Over 60", "victim_count": 12345, "total_loss": 123456789}]},
          {"title": "State Data", "headers": ["State", "Incidents", "Loss", "Victims"],
           "rows": [{"state": "California", "incidents": 1234, "loss": 123456789, "victim_count": 12345}]}
        ],
        "total_loss": 1234567890,
        "total_victims": 123456,
        "top_categories": ["Category 1", "Category 2"]
      },
      "financial_data": {
        "losses_by_category": [{"category": "Category Name", "amount": 123456789, "victim_count": 12345}],
        "losses_by_state": [{"state": "California", "amount": 123456789, "victim_count": 12345, "incidents": 1234}],
        "total_loss": 1234567890
      }
    }
  ],
  "overall_metrics": {
    "total_loss": 1234567890,
    "total_victims": 123456,
    "year": 2020,
    "top_fraud_categories": ["Category 1", "Category 2", "Category 3"],
    "losses_by_category": [{"category": "Category Name", "amount": 123456789, "victim_count": 12345}],
    "losses_by_state": [{"state": "California", "amount": 123456789, "victim_count": 12345, "incidents": 1234}]
  },
  "overall_summary": "concise summary of key fraud statistics"
}`

// BuildPrompt renders the user prompt for input, shrinking oversized OCR
// payloads first.
func BuildPrompt(input json.RawMessage) (string, int) {
	payload, dropped := trimInput(input)
	return fmt.Sprintf(userPromptTemplate, payload), dropped
}

// trimInput drops pages with neither a table nor substantial text when the
// payload exceeds MaxPromptInputBytes. Input that is not an OCR result is
// passed through untouched.
func trimInput(input json.RawMessage) (string, int) {
	if len(input) <= MaxPromptInputBytes {
		return string(input), 0
	}

	var ocr models.OCRResult
	if err := json.Unmarshal(input, &ocr); err != nil || len(ocr.Results) == 0 {
		return string(input), 0
	}

	kept := ocr.Results[:0:0]
	for _, p := range ocr.Results {
		if strings.Contains(p.Text, "<table>") || len(p.Text) > minPageTextLen {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(ocr.Results) {
		return string(input), 0
	}

	dropped := len(ocr.Results) - len(kept)
	ocr.Results = kept
	out, err := json.Marshal(ocr)
	if err != nil {
		return string(input), 0
	}
	return string(out), dropped
}
