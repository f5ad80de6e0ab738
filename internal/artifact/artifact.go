// Package artifact archives intermediate pipeline outputs such as the raw
// OCR JSON of a document.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores named blobs and returns where they ended up.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// OCRArtifactName is "<stem>_ocr.json" for a document filename.
func OCRArtifactName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_ocr.json"
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".html":
		return "text/html"
	case ".md":
		return "text/markdown"
	}
	return "application/octet-stream"
}

// LocalSink writes into a directory.
type LocalSink struct {
	Dir string
}

// NewLocalSink creates dir if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalSink{Dir: dir}, nil
}

func (l *LocalSink) Put(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(l.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}

// Discard drops everything; used for dry runs.
type Discard struct{}

func (Discard) Put(_ context.Context, name string, _ []byte) (string, error) {
	return "", nil
}
