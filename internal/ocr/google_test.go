package ocr

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestClientOptions(t *testing.T) {
	ctx := context.Background()

	opts, err := GoogleConfig{}.clientOptions(ctx)
	if err != nil || opts != nil {
		t.Fatalf("no credentials: opts=%v err=%v", opts, err)
	}

	_, err = GoogleConfig{CredentialsJSON: `{"type":`}.clientOptions(ctx)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("bad json: err = %v", err)
	}

	_, err = GoogleConfig{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}.clientOptions(ctx)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("missing file: err = %v", err)
	}
}

func TestDocumentAIEndpoint(t *testing.T) {
	if got := (GoogleConfig{Location: "eu"}).documentAIEndpoint(); got != "eu-documentai.googleapis.com:443" {
		t.Fatalf("endpoint = %s", got)
	}
}
