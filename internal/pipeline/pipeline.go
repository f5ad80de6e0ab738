// Package pipeline runs one document through cache check, OCR, formatting
// and persistence:
//
//	CheckCache -> hit:  return cached record
//	           -> miss: RunOCR -> RunFormat -> Persist -> return
//
// Documents are processed one at a time. A record is only written after
// formatting finished (successfully or by fallback); a failure earlier in the
// run leaves the cache untouched.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fraudocr/internal/artifact"
	"fraudocr/internal/cache"
	"fraudocr/internal/formatter"
	"fraudocr/internal/logger"
	"fraudocr/internal/ocr"
	"fraudocr/pkg/models"
)

// Options toggles individual stages.
type Options struct {
	// SkipOCR uses Request.OCR, or the cached record's raw OCR, instead of
	// calling the OCR backend.
	SkipOCR bool

	// SkipFormat stops after OCR. Nothing is persisted.
	SkipFormat bool

	// Force re-analyses a document that is already cached.
	Force bool
}

// Request describes one document run.
type Request struct {
	// Filename is the cache key; defaults to the document or OCR filename.
	Filename string

	// Document is the PDF, needed only when OCR runs.
	Document *ocr.Document

	// OCR is a previously produced OCR payload.
	OCR *models.OCRResult

	Options Options
}

// Outcome says how a run ended.
type Outcome string

const (
	OutcomeCached    Outcome = "cached"
	OutcomeProcessed Outcome = "processed"
	OutcomeOCROnly   Outcome = "ocr_only"
)

// Result is returned by Run.
type Result struct {
	RunID   string
	Outcome Outcome

	// Record is the cached or newly saved record; nil for OCR-only runs.
	Record *models.Record

	// OCR is the payload used for this run.
	OCR *models.OCRResult

	// Formatted is false when the formatter fell back to raw OCR.
	Formatted bool

	// FormatErr is why formatting fell back, if it did.
	FormatErr error

	// ArtifactPath is where the raw OCR JSON was archived.
	ArtifactPath string

	Duration time.Duration
}

// Orchestrator wires the stages together.
type Orchestrator struct {
	store     cache.Store
	extractor ocr.Extractor
	formatter formatter.Formatter
	sink      artifact.Sink
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArtifactSink archives fresh OCR output to sink.
func WithArtifactSink(sink artifact.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// New creates an orchestrator. extractor may be nil when every request
// carries OCR data or skips OCR.
func New(store cache.Store, extractor ocr.Extractor, f formatter.Formatter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		formatter: f,
		sink:      artifact.Discard{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes req. On a persist failure the unsaved result is returned
// together with the error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	filename := requestFilename(req)
	if filename == "" {
		return nil, ErrNoFilename
	}

	res := &Result{RunID: o.newID()}
	log := logger.WithRequestID(res.RunID).With().
		Str("component", "pipeline").
		Str("file", filename).
		Logger()

	log.Info().
		Bool("skip_ocr", req.Options.SkipOCR).
		Bool("skip_format", req.Options.SkipFormat).
		Bool("force", req.Options.Force).
		Msg("Starting pipeline run")

	// CheckCache
	cached, err := o.store.Lookup(ctx, filename)
	switch {
	case err == nil && !req.Options.Force:
		log.Info().
			Time("cached_at", cached.CachedAt).
			Int64("version", cached.Version).
			Msg("Cache hit, skipping OCR and formatting")
		res.Outcome = OutcomeCached
		res.Record = cached
		res.OCR = cached.OCR
		res.Formatted = cached.Formatted
		res.Duration = time.Since(start)
		return res, nil
	case err == nil:
		log.Info().Msg("Cache hit ignored, re-analysing")
	case errors.Is(err, cache.ErrNotFound):
		cached = nil
		log.Debug().Msg("Cache miss")
	default:
		return nil, &StageError{Stage: StageCheckCache, Filename: filename, Err: err}
	}

	// RunOCR
	ocrResult, fresh, err := o.ocrSource(ctx, req, cached, filename)
	if err != nil {
		return nil, &StageError{Stage: StageOCR, Filename: filename, Err: err}
	}
	if ocrResult.Filename == "" {
		ocrResult.Filename = filename
	}
	res.OCR = ocrResult
	log.Info().
		Int("pages", len(ocrResult.Results)).
		Int("successful_pages", ocrResult.SuccessfulPages()).
		Bool("fresh", fresh).
		Msg("OCR data ready")

	if fresh {
		res.ArtifactPath = o.archive(ctx, log, filename, ocrResult)
	}

	if req.Options.SkipFormat {
		log.Info().Msg("Formatting skipped, nothing persisted")
		res.Outcome = OutcomeOCROnly
		res.Duration = time.Since(start)
		return res, nil
	}

	// RunFormat
	input, err := json.Marshal(ocrResult)
	if err != nil {
		return nil, &StageError{Stage: StageFormat, Filename: filename, Err: fmt.Errorf("encode ocr data: %w", err)}
	}
	formatted, err := o.formatter.Format(ctx, input)
	if err != nil {
		return nil, &StageError{Stage: StageFormat, Filename: filename, Err: err}
	}
	res.Formatted = formatted.Formatted
	res.FormatErr = formatted.Err

	// Persist
	rec := &models.Record{
		Filename:      filename,
		FormattedJSON: formatted.JSON,
		OCR:           ocrResult,
		Formatted:     formatted.Formatted,
	}
	rec.Derive()
	res.Record = rec

	if err := o.store.Save(ctx, rec); err != nil {
		res.Duration = time.Since(start)
		return res, &StageError{Stage: StagePersist, Filename: filename, Err: err}
	}

	res.Outcome = OutcomeProcessed
	res.Duration = time.Since(start)
	log.Info().
		Bool("formatted", rec.Formatted).
		Int64("version", rec.Version).
		Strs("keywords", rec.Keywords).
		Dur("duration", res.Duration).
		Msg("Pipeline run completed")
	return res, nil
}

// ocrSource picks the OCR payload: request data first, then the cache when
// OCR is skipped, otherwise the extractor. fresh reports an extractor call.
func (o *Orchestrator) ocrSource(ctx context.Context, req Request, cached *models.Record, filename string) (*models.OCRResult, bool, error) {
	if req.OCR != nil {
		if err := req.OCR.Validate(); err != nil {
			return nil, false, err
		}
		return req.OCR.Clone(), false, nil
	}

	if req.Options.SkipOCR {
		if cached != nil && cached.OCR != nil {
			return cached.OCR.Clone(), false, nil
		}
		return nil, false, fmt.Errorf("%w for %s", ErrNoOCRData, filename)
	}

	if req.Document == nil {
		return nil, false, ErrNoDocument
	}
	if o.extractor == nil {
		return nil, false, fmt.Errorf("%w: no OCR backend configured", ErrNoDocument)
	}
	result, err := o.extractor.Extract(ctx, req.Document)
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, fmt.Errorf("%w: extractor returned no result", ocr.ErrMalformedResponse)
	}
	if result.Filename == "" {
		result.Filename = filename
	}
	if err := result.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ocr.ErrMalformedResponse, err)
	}
	return result, true, nil
}

func (o *Orchestrator) archive(ctx context.Context, log zerolog.Logger, filename string, result *models.OCRResult) string {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode OCR artifact")
		return ""
	}
	where, err := o.sink.Put(ctx, artifact.OCRArtifactName(filename), data)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to archive OCR output")
		return ""
	}
	if where != "" {
		log.Info().Str("artifact", where).Msg("OCR output archived")
	}
	return where
}

func requestFilename(req Request) string {
	switch {
	case req.Filename != "":
		return req.Filename
	case req.Document != nil:
		return req.Document.Filename
	case req.OCR != nil:
		return req.OCR.Filename
	}
	return ""
}
