package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRespectsCustomWriter(t *testing.T) {
	var buf bytes.Buffer

	logger, closer, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()
	logger.Info("custom writer")

	if !strings.Contains(buf.String(), "custom writer") {
		t.Fatalf("expected output in custom writer, got %q", buf.String())
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, _, err := New(Config{Writer: &buf, Format: " JSON "})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello", "shortcode", "BA")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if payload["shortcode"] != "BA" {
		t.Fatalf("expected shortcode attribute, got %v", payload["shortcode"])
	}
}

func TestNewTeesToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "reelscrape.log")

	logger, closer, err := New(Config{Writer: &buf, File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("both sinks")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "both sinks") {
		t.Fatalf("expected file to contain message, got %q", data)
	}
	if !strings.Contains(buf.String(), "both sinks") {
		t.Fatalf("expected writer to contain message, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug", input: "debug", expected: slog.LevelDebug},
		{name: "warning", input: "warning", expected: slog.LevelWarn},
		{name: "warn", input: "warn", expected: slog.LevelWarn},
		{name: "error", input: "error", expected: slog.LevelError},
		{name: "info", input: "info", expected: slog.LevelInfo},
		{name: "empty", input: "", expected: slog.LevelInfo},
		{name: "unknown", input: "verbose", expected: slog.LevelInfo},
		{name: "mixed case", input: " DeBuG ", expected: slog.LevelDebug},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseLevel(tc.input).Level(); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Writer: &buf, Level: "info"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	t.Run("adds component attribute", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		WithComponent(logger, "server").Info("component set")

		var payload map[string]any
		if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
			t.Fatalf("failed to unmarshal log output: %v", err)
		}
		if payload["component"] != "server" {
			t.Fatalf("expected component \"server\", got %v", payload["component"])
		}
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		if got := WithComponent(nil, "anything"); got != nil {
			t.Fatalf("expected nil logger, got %v", got)
		}
	})
}

func TestWithContextAnnotatesLogger(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), " req-1 ")

	if id, ok := RequestIDFromContext(ctx); !ok || id != "req-1" {
		t.Fatalf("expected request id req-1, got %q", id)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WithContext(ctx, logger).Info("hello")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("failed to unmarshal log output: %v", err)
	}
	if payload["request_id"] != "req-1" {
		t.Fatalf("expected request_id to be set, got %v", payload["request_id"])
	}
}

func TestContextWithEmptyRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "  ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatalf("expected no request id for blank input")
	}
}

func TestInitSetsDefaultLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger, _, err := Init(Config{Writer: &buf, Format: string(FormatText), Level: "debug"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if logger != slog.Default() {
		t.Fatalf("expected Init to replace the default logger")
	}

	slog.Info("hello world")

	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected text output to include message, got %q", buf.String())
	}
}
