package formatter

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		check    func(map[string]any) bool
	}{
		{
			name:     "plain",
			response: `{"year": 2023}`,
			check:    func(m map[string]any) bool { return m["year"] == float64(2023) },
		},
		{
			name:     "fenced",
			response: "Here you go:\n```json\n{\"year\": 2023}\n```\nThanks",
			check:    func(m map[string]any) bool { return m["year"] == float64(2023) },
		},
		{
			name:     "prose around braces",
			response: `The result is {"document_type": "fraud report"} as requested.`,
			check:    func(m map[string]any) bool { return m["document_type"] == "fraud report" },
		},
		{
			name:     "trailing commas",
			response: `{"top": ["BEC", "Investment",], "year": 2023,}`,
			check: func(m map[string]any) bool {
				top, _ := m["top"].([]any)
				return len(top) == 2 && m["year"] == float64(2023)
			},
		},
		{
			name:     "raw newline in string",
			response: "{\"overall_summary\": \"line one\nline two\"}",
			check:    func(m map[string]any) bool { return m["overall_summary"] == "line one\nline two" },
		},
		{
			name:     "truncated",
			response: `{"pages": [{"page_number": 1, "content_summary": "Losses by st`,
			check: func(m map[string]any) bool {
				pages, _ := m["pages"].([]any)
				return len(pages) == 1
			},
		},
		{
			name:     "truncated after key",
			response: `{"pages": [], "overall_metrics": {"total_loss":`,
			check: func(m map[string]any) bool {
				om, _ := m["overall_metrics"].(map[string]any)
				v, ok := om["total_loss"]
				return ok && v == nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ExtractJSON(tt.response)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("result is not an object: %v (%s)", err, raw)
			}
			if !tt.check(m) {
				t.Fatalf("unexpected content: %s", raw)
			}
		})
	}
}

func TestExtractJSONRejects(t *testing.T) {
	for _, resp := range []string{"", "no json here", "[1, 2, 3]"} {
		if _, err := ExtractJSON(resp); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ExtractJSON(%q) err = %v", resp, err)
		}
	}
}
