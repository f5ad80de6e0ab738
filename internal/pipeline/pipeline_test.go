package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fraudocr/internal/cache"
	"fraudocr/internal/formatter"
	"fraudocr/internal/ocr"
	"fraudocr/pkg/models"
)

type fakeExtractor struct {
	calls  int
	result *models.OCRResult
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, doc *ocr.Document) (*models.OCRResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result.Clone(), nil
}

type fakeFormatter struct {
	calls  int
	output json.RawMessage
	fail   error
	err    error
}

func (f *fakeFormatter) Format(_ context.Context, input json.RawMessage) (*formatter.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.fail != nil {
		return &formatter.Result{JSON: input, Formatted: false, Attempts: 1, Err: f.fail}, nil
	}
	return &formatter.Result{JSON: f.output, Formatted: true, Attempts: 1}, nil
}

type recordingSink struct {
	names []string
}

func (r *recordingSink) Put(_ context.Context, name string, _ []byte) (string, error) {
	r.names = append(r.names, name)
	return "mem://" + name, nil
}

type failingStore struct {
	*cache.MemoryStore
	saveErr error
}

func (f *failingStore) Save(context.Context, *models.Record) error { return f.saveErr }

const analysisJSON = `{"document_type":"fraud report","year":2023,"pages":[{"page_number":1}],
"overall_metrics":{"total_loss":12500000000,"top_fraud_categories":["Phishing/Spoofing","Tech Support"]},
"overall_summary":"Losses exceeded $12.5 billion"}`

func sampleOCR() *models.OCRResult {
	return &models.OCRResult{Filename: "2023_IC3Report.pdf", TotalPages: 1, Results: []models.PageResult{
		{Page: 1, Text: "<table><tr><td>Phishing/Spoofing</td><td>298,878</td></tr></table>", Status: models.PageStatusSuccess},
	}}
}

func sampleDoc() *ocr.Document {
	return &ocr.Document{Filename: "2023_IC3Report.pdf", Content: []byte("%PDF-1.7")}
}

func fixedID() string { return "run-1" }

func TestRunCacheMissProcessesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	ext := &fakeExtractor{result: sampleOCR()}
	fmtr := &fakeFormatter{output: json.RawMessage(analysisJSON)}
	sink := &recordingSink{}
	o := New(store, ext, fmtr, WithArtifactSink(sink), WithRunIDs(fixedID))

	res, err := o.Run(ctx, Request{Document: sampleDoc()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeProcessed || !res.Formatted || res.RunID != "run-1" {
		t.Fatalf("result = %+v", res)
	}
	if ext.calls != 1 || fmtr.calls != 1 {
		t.Fatalf("calls: ocr=%d format=%d", ext.calls, fmtr.calls)
	}
	if len(sink.names) != 1 || sink.names[0] != "2023_IC3Report_ocr.json" {
		t.Fatalf("artifacts = %v", sink.names)
	}

	stored, err := store.Lookup(ctx, "2023_IC3Report.pdf")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if stored.KeyMetrics == nil || stored.KeyMetrics.Year != 2023 || len(stored.Keywords) != 2 {
		t.Fatalf("derived fields missing: %+v", stored)
	}
	if stored.OCR == nil || stored.TotalPages != 1 {
		t.Fatalf("raw OCR not stored: %+v", stored)
	}
}

func TestRunCacheHitSkipsOCRAndFormatter(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	if err := store.Save(ctx, &models.Record{Filename: "2023_IC3Report.pdf", FormattedJSON: json.RawMessage(analysisJSON), Formatted: true}); err != nil {
		t.Fatal(err)
	}
	ext := &fakeExtractor{result: sampleOCR()}
	fmtr := &fakeFormatter{output: json.RawMessage(`{}`)}
	o := New(store, ext, fmtr)

	for _, opts := range []Options{{}, {SkipOCR: true}, {SkipFormat: true}} {
		res, err := o.Run(ctx, Request{Document: sampleDoc(), Options: opts})
		if err != nil {
			t.Fatalf("Run(%+v): %v", opts, err)
		}
		if res.Outcome != OutcomeCached || string(res.Record.FormattedJSON) != analysisJSON {
			t.Fatalf("Run(%+v) = %+v", opts, res)
		}
	}
	if ext.calls != 0 || fmtr.calls != 0 {
		t.Fatalf("cache hit invoked OCR %d times and formatter %d times", ext.calls, fmtr.calls)
	}
}

func TestRunForceOverwrites(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	if err := store.Save(ctx, &models.Record{Filename: "2023_IC3Report.pdf", FormattedJSON: json.RawMessage(`{"old":1}`), OCR: sampleOCR()}); err != nil {
		t.Fatal(err)
	}
	ext := &fakeExtractor{result: sampleOCR()}
	fmtr := &fakeFormatter{output: json.RawMessage(analysisJSON)}
	o := New(store, ext, fmtr)

	res, err := o.Run(ctx, Request{Filename: "2023_IC3Report.pdf", Options: Options{SkipOCR: true, Force: true}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ext.calls != 0 {
		t.Fatal("SkipOCR should reuse cached OCR")
	}
	if res.Record.Version != 2 {
		t.Fatalf("Version = %d, want 2", res.Record.Version)
	}
	records, _ := store.List(ctx)
	if len(records) != 1 || string(records[0].FormattedJSON) != analysisJSON {
		t.Fatalf("records = %+v", records)
	}
}

func TestRunSkipFormatDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	fmtr := &fakeFormatter{output: json.RawMessage(analysisJSON)}
	o := New(store, &fakeExtractor{result: sampleOCR()}, fmtr)

	res, err := o.Run(ctx, Request{Document: sampleDoc(), Options: Options{SkipFormat: true}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeOCROnly || res.OCR == nil || res.Record != nil {
		t.Fatalf("result = %+v", res)
	}
	if fmtr.calls != 0 {
		t.Fatal("formatter called despite SkipFormat")
	}
	if _, err := store.Lookup(ctx, "2023_IC3Report.pdf"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("record persisted: %v", err)
	}
}

func TestRunSkipOCRWithSuppliedData(t *testing.T) {
	ctx := context.Background()
	ext := &fakeExtractor{result: sampleOCR()}
	o := New(cache.NewMemoryStore(), ext, &fakeFormatter{output: json.RawMessage(analysisJSON)})

	res, err := o.Run(ctx, Request{OCR: sampleOCR(), Options: Options{SkipOCR: true}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ext.calls != 0 || res.Outcome != OutcomeProcessed || res.Record.Filename != "2023_IC3Report.pdf" {
		t.Fatalf("result = %+v, ocr calls = %d", res, ext.calls)
	}
}

func TestRunSkipOCRWithoutData(t *testing.T) {
	o := New(cache.NewMemoryStore(), nil, &fakeFormatter{})
	_, err := o.Run(context.Background(), Request{Filename: "x.pdf", Options: Options{SkipOCR: true}})
	if !errors.Is(err, ErrNoOCRData) || FailedStage(err) != StageOCR {
		t.Fatalf("err = %v", err)
	}
}

func TestRunOCRFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	fmtr := &fakeFormatter{}
	o := New(store, &fakeExtractor{err: ocr.ErrEndpointUnavailable}, fmtr)

	_, err := o.Run(ctx, Request{Document: sampleDoc()})
	if !errors.Is(err, ocr.ErrEndpointUnavailable) || FailedStage(err) != StageOCR {
		t.Fatalf("err = %v", err)
	}
	if fmtr.calls != 0 {
		t.Fatal("formatter called after OCR failure")
	}
	if records, _ := store.List(ctx); len(records) != 0 {
		t.Fatalf("records = %v", records)
	}
}

func TestRunRejectsEmptyExtractorResult(t *testing.T) {
	tests := []struct {
		name   string
		result *models.OCRResult
	}{
		{"nil result", nil},
		{"no pages", &models.OCRResult{Filename: "2023_IC3Report.pdf"}},
		{"unknown status", &models.OCRResult{Results: []models.PageResult{{Page: 1, Status: "maybe"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := cache.NewMemoryStore()
			fmtr := &fakeFormatter{}
			o := New(store, &fakeExtractor{result: tt.result}, fmtr)

			_, err := o.Run(ctx, Request{Document: sampleDoc()})
			if !errors.Is(err, ocr.ErrMalformedResponse) || FailedStage(err) != StageOCR {
				t.Fatalf("err = %v", err)
			}
			if fmtr.calls != 0 {
				t.Fatal("formatter called without OCR data")
			}
			if records, _ := store.List(ctx); len(records) != 0 {
				t.Fatalf("records = %v", records)
			}
		})
	}
}

func TestRunFormatterFallbackIsPersisted(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	o := New(store, &fakeExtractor{result: sampleOCR()}, &fakeFormatter{fail: formatter.ErrMalformedOutput})

	res, err := o.Run(ctx, Request{Document: sampleDoc()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Formatted || !errors.Is(res.FormatErr, formatter.ErrMalformedOutput) {
		t.Fatalf("result = %+v", res)
	}
	stored, _ := store.Lookup(ctx, "2023_IC3Report.pdf")
	var back models.OCRResult
	if err := json.Unmarshal(stored.FormattedJSON, &back); err != nil || back.Results[0].Text != sampleOCR().Results[0].Text {
		t.Fatalf("fallback record should hold raw OCR: %s", stored.FormattedJSON)
	}
	if stored.Formatted || stored.KeyMetrics.Year != 2023 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestRunFormatAbort(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	o := New(store, &fakeExtractor{result: sampleOCR()}, &fakeFormatter{err: context.Canceled})

	_, err := o.Run(ctx, Request{Document: sampleDoc()})
	if !errors.Is(err, context.Canceled) || FailedStage(err) != StageFormat {
		t.Fatalf("err = %v", err)
	}
	if records, _ := store.List(ctx); len(records) != 0 {
		t.Fatal("nothing should be persisted when formatting aborts")
	}
}

func TestRunPersistFailure(t *testing.T) {
	store := &failingStore{MemoryStore: cache.NewMemoryStore(), saveErr: cache.NewStoreError("Save", "2023_IC3Report.pdf", cache.ErrAuthorization, nil)}
	o := New(store, &fakeExtractor{result: sampleOCR()}, &fakeFormatter{output: json.RawMessage(analysisJSON)})

	res, err := o.Run(context.Background(), Request{Document: sampleDoc()})
	if !errors.Is(err, cache.ErrAuthorization) || FailedStage(err) != StagePersist {
		t.Fatalf("err = %v", err)
	}
	if res == nil || res.Record == nil {
		t.Fatal("unsaved result should be returned with the error")
	}
}

func TestRunCacheErrorStops(t *testing.T) {
	store := cache.NewMemoryStore()
	_ = store.Close()
	ext := &fakeExtractor{result: sampleOCR()}
	o := New(store, ext, &fakeFormatter{})

	_, err := o.Run(context.Background(), Request{Document: sampleDoc()})
	if !errors.Is(err, cache.ErrConnectivity) || FailedStage(err) != StageCheckCache {
		t.Fatalf("err = %v", err)
	}
	if ext.calls != 0 {
		t.Fatal("OCR ran after cache failure")
	}
}

func TestRunRequiresFilename(t *testing.T) {
	o := New(cache.NewMemoryStore(), nil, &fakeFormatter{})
	if _, err := o.Run(context.Background(), Request{}); !errors.Is(err, ErrNoFilename) {
		t.Fatalf("err = %v", err)
	}
}
