package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"fraudocr/internal/artifact"
	"fraudocr/internal/cache"
	"fraudocr/internal/config"
	"fraudocr/internal/formatter"
	"fraudocr/internal/ocr"
	"fraudocr/internal/pipeline"
	"fraudocr/internal/retry"
)

// openStore opens the configured cache, or an in-memory one for dry runs.
func openStore(ctx context.Context, cfg *config.Config, dryRun bool, log zerolog.Logger) (cache.Store, error) {
	if dryRun {
		log.Info().Msg("Dry run: using in-memory cache, nothing is persisted")
		return cache.NewMemoryStore(), nil
	}
	if err := cfg.RequireCache(); err != nil {
		return nil, fmt.Errorf("cache not configured: %w\n\nSet DATABASE_URL (Supabase/Postgres), MYSQL_DSN or MONGO_URI and CACHE_BACKEND", err)
	}
	store, err := cache.Open(ctx, cfg.CacheConfig(), log)
	if err != nil {
		return nil, handleCacheError(err, log)
	}
	return store, nil
}

// newExtractor builds the configured OCR backend. The returned close func is
// never nil.
func newExtractor(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Extractor, func(), error) {
	noop := func() {}
	if err := cfg.RequireOCR(); err != nil {
		return nil, noop, err
	}

	google := ocr.GoogleConfig{
		ProjectID:       cfg.GoogleCloudProject,
		Location:        cfg.GoogleCloudLocation,
		ProcessorID:     cfg.DocumentAIProcessorID,
		CredentialsJSON: cfg.GoogleServiceAccountKey,
		CredentialsFile: cfg.GoogleCredentialsFile,
	}

	switch cfg.OCRBackend {
	case "vision":
		v, err := ocr.NewVisionExtractor(ctx, google)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Vision OCR client: %w", err)
		}
		return v, closer(v.Close, log, "Vision client"), nil
	case "documentai":
		d, err := ocr.NewDocumentAIExtractor(ctx, google)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Document AI client: %w", err)
		}
		return d, closer(d.Close, log, "Document AI client"), nil
	default:
		h, err := ocr.NewHTTPClient(ocr.HTTPConfig{
			Endpoint: cfg.OCREndpoint,
			Token:    cfg.OCRToken,
			Timeout:  cfg.OCRTimeout,
		})
		if err != nil {
			return nil, noop, err
		}
		log.Debug().Str("endpoint", cfg.OCREndpoint).Msg("Using HTTP OCR endpoint")
		return h, noop, nil
	}
}

// newFormatter builds the AI formatter with the configured retry policy.
func newFormatter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (formatter.Formatter, func(), error) {
	noop := func() {}
	if err := cfg.RequireFormatter(); err != nil {
		return nil, noop, err
	}

	policy := cfg.RetryPolicy()
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.Default()
	}

	switch cfg.FormatterBackend {
	case "openai":
		m, err := formatter.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, noop, err
		}
		return formatter.NewService(m, policy), noop, nil
	default:
		m, err := formatter.NewGeminiModel(ctx, formatter.GeminiConfig{
			ProjectID:       cfg.GoogleCloudProject,
			Region:          cfg.VertexAIRegion,
			Model:           cfg.GeminiModel,
			CredentialsJSON: cfg.GoogleServiceAccountKey,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return formatter.NewService(m, policy), closer(m.Close, log, "Gemini client"), nil
	}
}

// newArtifactSink returns where raw OCR output is archived.
func newArtifactSink(ctx context.Context, cfg *config.Config, dryRun bool, log zerolog.Logger) (artifact.Sink, func(), error) {
	noop := func() {}
	if dryRun {
		return artifact.Discard{}, noop, nil
	}
	switch cfg.ArtifactBackend {
	case "none":
		return artifact.Discard{}, noop, nil
	case "minio":
		m, err := artifact.NewMinioSink(ctx, cfg.MinioConfig())
		if err != nil {
			return nil, noop, err
		}
		return m, noop, nil
	case "gcs":
		g, err := artifact.NewGCSSink(ctx, cfg.ArtifactBucket, cfg.ArtifactPrefix, cfg.GoogleServiceAccountKey, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, noop, err
		}
		return g, closer(g.Close, log, "GCS client"), nil
	default:
		l, err := artifact.NewLocalSink(cfg.ArtifactDir)
		if err != nil {
			return nil, noop, err
		}
		return l, noop, nil
	}
}

func closer(fn func() error, log zerolog.Logger, what string) func() {
	return func() {
		if err := fn(); err != nil {
			log.Warn().Err(err).Msgf("Failed to close %s", what)
		}
	}
}

// handleCacheError provides user-friendly messages for cache failures
func handleCacheError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Cache operation failed")

	switch {
	case errors.Is(err, cache.ErrNotFound):
		return fmt.Errorf("no cached record found: %w", err)
	case errors.Is(err, cache.ErrInvalidConfig):
		return fmt.Errorf("cache configuration is invalid: %w", err)
	case errors.Is(err, cache.ErrConnectivity):
		return fmt.Errorf("cannot reach the cache database. Check DATABASE_URL and your network: %w", err)
	case errors.Is(err, cache.ErrAuthorization):
		return fmt.Errorf("the cache database rejected the request. With Supabase, connect as a role that bypasses row level security (service role): %w", err)
	case errors.Is(err, cache.ErrSchema):
		return fmt.Errorf("the cache table is missing or has the wrong columns. Run `fraudocr cache init`: %w", err)
	case errors.Is(err, cache.ErrUnsupportedBackend):
		return fmt.Errorf("unknown CACHE_BACKEND. Use supabase, postgres, mysql, mongo or memory: %w", err)
	default:
		return fmt.Errorf("cache operation failed: %w", err)
	}
}

// handleFormatError provides user-friendly messages for formatter failures
func handleFormatError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Formatting failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("formatting timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("formatting was canceled")
	case errors.Is(err, formatter.ErrInvalidInput):
		return fmt.Errorf("the OCR data is not a JSON object and cannot be formatted: %w", err)
	case errors.Is(err, formatter.ErrMissingCredentials):
		return fmt.Errorf("AI model credentials missing. Set GOOGLE_CLOUD_PROJECT for Gemini or OPENAI_API_KEY for OpenAI: %w", err)
	default:
		return fmt.Errorf("formatting failed: %w", err)
	}
}

// handlePipelineError maps a failed run to a message naming the stage.
func handlePipelineError(err error, log zerolog.Logger) error {
	switch pipeline.FailedStage(err) {
	case pipeline.StageCheckCache, pipeline.StagePersist:
		return handleCacheError(err, log)
	case pipeline.StageOCR:
		if errors.Is(err, pipeline.ErrNoOCRData) {
			log.Error().Err(err).Msg("No OCR data available")
			return fmt.Errorf("no OCR data to analyse: pass --ocr-json or run without --skip-ocr")
		}
		return handleOCRError(err, log)
	case pipeline.StageFormat:
		return handleFormatError(err, log)
	}
	if errors.Is(err, pipeline.ErrNoFilename) {
		return fmt.Errorf("cannot determine the document filename")
	}
	log.Error().Err(err).Msg("Pipeline failed")
	return err
}
