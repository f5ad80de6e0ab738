// Package server exposes the analysis pipeline over HTTP for clients that
// already hold OCR output.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fraudocr/internal/cache"
	"fraudocr/internal/formatter"
	"fraudocr/internal/logger"
	"fraudocr/internal/ocr"
	"fraudocr/internal/pipeline"
	"fraudocr/pkg/models"
)

// maxBodyBytes bounds the OCR payload accepted by /analyze.
const maxBodyBytes = 32 << 20

// Runner is the part of the orchestrator the server needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Server struct {
	runner Runner
	store  cache.Store
	log    zerolog.Logger
}

// Config holds HTTP-level settings.
type Config struct {
	CORSOrigins []string
}

// New returns the router serving /, /check-cache and /analyze.
func New(runner Runner, store cache.Store, cfg Config) http.Handler {
	s := &Server{runner: runner, store: store, log: logger.WithComponent("server")}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(s.logRequests)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		// Credentials only for an explicit origin list, never with "*".
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}))

	mux.Get("/", s.handleHealth)
	mux.Get("/check-cache", s.wrap(s.handleCheckCache))
	mux.Post("/analyze", s.wrap(s.handleAnalyze))
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries an explicit status for request validation failures.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			ev := s.log.Warn()
			if status >= http.StatusInternalServerError {
				ev = s.log.Error()
			}
			ev.Err(err).
				Str("path", req.URL.Path).
				Int("status", status).
				Msg("Request failed")
			writeJSON(w, status, map[string]any{"detail": detail(err)})
		}
	}
}

func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, formatter.ErrInvalidInput),
		errors.Is(err, ocr.ErrInvalidPDF),
		errors.Is(err, pipeline.ErrNoFilename),
		errors.Is(err, pipeline.ErrNoOCRData):
		return http.StatusBadRequest
	case errors.Is(err, cache.ErrConnectivity),
		errors.Is(err, ocr.ErrEndpointUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, cache.ErrAuthorization):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func detail(err error) string {
	var he *httpError
	if errors.As(err, &he) {
		return he.msg
	}
	return "Analysis failed: " + err.Error()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "fraudocr analysis API",
		"time":    time.Now().UTC(),
	})
}

// GET /check-cache?filename=
func (s *Server) handleCheckCache(w http.ResponseWriter, req *http.Request) error {
	filename := strings.TrimSpace(req.URL.Query().Get("filename"))
	if filename == "" {
		return badRequest("filename query parameter is required")
	}

	rec, err := s.store.Lookup(req.Context(), filename)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return writeJSON(w, http.StatusOK, map[string]any{"cached": false, "data": nil})
	case err != nil:
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"cached": true, "data": rec})
}

type analyzeResponse struct {
	Status     string             `json:"status"`
	Message    string             `json:"message,omitempty"`
	RunID      string             `json:"run_id"`
	Filename   string             `json:"filename"`
	Analysis   json.RawMessage    `json:"analysis,omitempty"`
	Formatted  bool               `json:"formatted"`
	FormatErr  string             `json:"format_error,omitempty"`
	Keywords   []string           `json:"keywords,omitempty"`
	KeyMetrics *models.KeyMetrics `json:"key_metrics,omitempty"`
	Saved      bool               `json:"saved"`
	SaveError  string             `json:"save_error,omitempty"`
	Data       *models.Record     `json:"data,omitempty"`
}

// POST /analyze with an OCR payload as body.
func (s *Server) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var payload models.OCRResult
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		return badRequest("invalid OCR payload: %v", err)
	}
	if payload.Filename == "" || payload.Results == nil {
		return badRequest("Missing 'filename' or 'results' in input")
	}
	if err := payload.Validate(); err != nil {
		return badRequest("invalid OCR payload: %v", err)
	}

	res, err := s.runner.Run(req.Context(), pipeline.Request{
		OCR:     &payload,
		Options: pipeline.Options{SkipOCR: true},
	})
	if err != nil && pipeline.FailedStage(err) != pipeline.StagePersist {
		return err
	}

	resp := analyzeResponse{RunID: res.RunID, Filename: payload.Filename}
	switch {
	case err != nil:
		resp.Status = "partial_success"
		resp.SaveError = err.Error()
	case res.Outcome == pipeline.OutcomeCached:
		resp.Status = "cached"
		resp.Message = "Using cached analysis"
		resp.Data = res.Record
		resp.Saved = true
	default:
		resp.Status = "success"
		resp.Saved = true
	}
	if res.Record != nil {
		resp.Analysis = res.Record.FormattedJSON
		resp.Keywords = res.Record.Keywords
		resp.KeyMetrics = res.Record.KeyMetrics
	}
	resp.Formatted = res.Formatted
	if res.FormatErr != nil {
		resp.FormatErr = res.FormatErr.Error()
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		s.log.Info().
			Str("request_id", middleware.GetReqID(req.Context())).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
