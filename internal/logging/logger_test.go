package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidshrink/internal/config"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

func TestNewFromConfigWritesJSONCopy(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Machine.Name = "worker-3"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("run started", logging.String(logging.FieldEventType, "run_start"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "vidshrink.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	line := strings.TrimSpace(strings.SplitN(string(content), "\n", 2)[0])
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", line, err)
	}
	if record["msg"] != "run started" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record[logging.FieldMachine] != "worker-3" {
		t.Fatalf("expected machine attr, got %v", record[logging.FieldMachine])
	}
	if record["level"] != "info" {
		t.Fatalf("expected lower-case level, got %v", record["level"])
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerFormatsSubjectAndSizes(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "worker")
	logger.Info("encode complete",
		logging.Video("/media/shows/pilot.mkv"),
		logging.String(logging.FieldStage, "encode"),
		logging.Int64("input_bytes", 2<<30),
		logging.Float64("savings_percent", 41.25),
		logging.String(logging.FieldRunID, "hidden-at-info"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(content)
	for _, want := range []string{"[worker]", "pilot.mkv (encode)", "Input: 2.0 GiB", "Savings: 41.2%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in console output %q", want, out)
		}
	}
	if strings.Contains(out, "hidden-at-info") {
		t.Fatalf("run id should be debug-only, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-xyz")
	ctx = services.WithVideoPath(ctx, "/media/a.mp4")
	ctx = services.WithStage(ctx, "claim")

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, base).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldRunID] != "run-xyz" {
		t.Fatalf("run id = %v", record[logging.FieldRunID])
	}
	if record[logging.FieldVideoPath] != "/media/a.mp4" {
		t.Fatalf("video path = %v", record[logging.FieldVideoPath])
	}
	if record[logging.FieldStage] != "claim" {
		t.Fatalf("stage = %v", record[logging.FieldStage])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "stale claim removed", "claim_stale")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected %s to be injected, got %v", key, record)
		}
	}
}

func TestJSONFileRecordsNumericDurationsAndErrorText(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("video failed",
		logging.Duration("elapsed", 1500*time.Millisecond),
		logging.Error(errors.New("ffmpeg exit 1")),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode record %q: %v", content, err)
	}
	if record["elapsed"] != 1.5 {
		t.Fatalf("elapsed = %v, want 1.5 seconds", record["elapsed"])
	}
	if record["error"] != "ffmpeg exit 1" {
		t.Fatalf("error = %v", record["error"])
	}
	if _, ok := record["ts"].(string); !ok {
		t.Fatalf("expected ts string, got %v", record["ts"])
	}
}

func TestSizes(t *testing.T) {
	attrs := logging.Sizes(1000, 250)
	if len(attrs) != 3 {
		t.Fatalf("expected input, output and savings attrs, got %v", attrs)
	}
	if got := attrs[2].Value.Float64(); got != 75 {
		t.Fatalf("savings = %v, want 75", got)
	}
	if attrs := logging.Sizes(1000, 0); len(attrs) != 1 || attrs[0].Key != "input_bytes" {
		t.Fatalf("expected only input size before output exists, got %v", attrs)
	}
}
