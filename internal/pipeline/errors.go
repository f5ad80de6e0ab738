package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocument is returned when OCR must run but no PDF was supplied.
	ErrNoDocument = errors.New("no document to run OCR on")

	// ErrNoOCRData is returned when OCR is skipped and no OCR payload is
	// available from the request or the cache.
	ErrNoOCRData = errors.New("OCR skipped but no OCR data available")

	// ErrNoFilename is returned when the request names no document.
	ErrNoFilename = errors.New("request has no filename")
)

// Stage names a pipeline step.
type Stage string

const (
	StageCheckCache Stage = "check_cache"
	StageOCR        Stage = "ocr"
	StageFormat     Stage = "format"
	StagePersist    Stage = "persist"
)

// StageError reports which step failed for which document.
type StageError struct {
	Stage    Stage
	Filename string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s %q: %v", e.Stage, e.Filename, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage of a StageError, or "" for other errors.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
