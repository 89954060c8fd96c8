package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Format: "json", Out: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Str("input", "samples").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["input"] != "samples" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected a timestamp")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Format: "console", NoColor: true, Out: &buf})
	logger.Info().Msg("report written")

	if !strings.Contains(buf.String(), "report written") {
		t.Errorf("expected message in console output, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("expected no color codes")
	}
}

func TestNewLevelFallback(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		if got := New(Options{Level: level, Out: &bytes.Buffer{}}).GetLevel(); got != zerolog.InfoLevel {
			t.Errorf("level %q: expected info, got %v", level, got)
		}
	}
	if got := New(Options{Level: "DEBUG", Out: &bytes.Buffer{}}).GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("expected debug, got %v", got)
	}
}
