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

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "warn", "json"))

	log.Info("dropped")
	log.Warn("kept", "rows", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["rows"] != 3.0 {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "info", "text")).Info("hello", "file", "a.dbf")

	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "file=a.dbf") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestSetup_FileOutput(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "nested", "app.log")
	closer, err := Setup(Options{Level: "info", Format: "json", Output: "file", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	slog.Info("written to file", "export_id", "x1")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"export_id":"x1"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestSetup_ConsoleHasNopCloser(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	closer, err := Setup(Options{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFromContext_RequestID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(NewHandler(&buf, "info", "text")))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "export_id", "e1").Info("export started")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") || !strings.Contains(out, "export_id=e1") {
		t.Errorf("output = %q", out)
	}
}
