package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"fraudocr/internal/pipeline"
	"fraudocr/pkg/models"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestEmitResultPrintsCachedAnalysis(t *testing.T) {
	out := captureStdout(t)
	res := &pipeline.Result{
		Outcome: pipeline.OutcomeCached,
		Record: &models.Record{
			Filename:      "2023_IC3Report.pdf",
			FormattedJSON: json.RawMessage(`{"year":2023,"pages":[]}`),
		},
	}

	if err := emitResult(res, "", zerolog.Nop()); err != nil {
		t.Fatalf("emitResult: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not JSON: %q", out.String())
	}
	if got["year"] != float64(2023) {
		t.Fatalf("stdout = %s", out.String())
	}
}

func TestEmitResultOCROnlyToFile(t *testing.T) {
	out := captureStdout(t)
	path := filepath.Join(t.TempDir(), "result.json")
	res := &pipeline.Result{
		Outcome: pipeline.OutcomeOCROnly,
		OCR: &models.OCRResult{Filename: "2023_IC3Report.pdf", TotalPages: 1, Results: []models.PageResult{
			{Page: 1, Text: "Phishing/Spoofing 23,252", Status: models.PageStatusSuccess},
		}},
	}

	if err := emitResult(res, path, zerolog.Nop()); err != nil {
		t.Fatalf("emitResult: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("stdout should be empty with an output file, got %q", out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Phishing/Spoofing 23,252") {
		t.Fatalf("file = %s", data)
	}
}
