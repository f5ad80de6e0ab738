package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraudocr.log")
	cfg := LogConfig{Level: "debug", Format: "json", Output: path}
	if err := Setup(cfg); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = Setup(DefaultConfig()) }()

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("level = %v", zerolog.GlobalLevel())
	}
	l := WithComponent("cache")
	l.Info().Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{`"component":"cache"`, `"service":"fraudocr"`, `"message":"hello"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}
}

func TestSetupRejectsBadLevel(t *testing.T) {
	if err := Setup(LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
