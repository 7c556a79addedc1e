package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"viralforge/internal/config"
	"viralforge/internal/logging"
	"viralforge/internal/services"
)

func newFileLogger(t *testing.T, format, level string) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{
		Format:           format,
		Level:            level,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "production").Info("segment rendered",
		logging.String("job_id", "abc"),
		logging.Int("index", 2),
		logging.String("note", "two words"),
	)
	return logPath, func() string {
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(data)
	}
}

func TestConsoleFormat(t *testing.T) {
	_, read := newFileLogger(t, "console", "info")
	line := read()
	for _, want := range []string{" INFO production: segment rendered", "job_id=abc", "index=2", `note="two words"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleIncludesSourceAtDebug(t *testing.T) {
	_, read := newFileLogger(t, "console", "debug")
	if !strings.Contains(read(), ".go:") {
		t.Fatal("expected caller information at debug level")
	}
}

func TestJSONFormatRenamesKeys(t *testing.T) {
	_, read := newFileLogger(t, "json", "info")
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["msg"] != "segment rendered" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key in %v", entry)
	}
	if entry["component"] != "production" {
		t.Fatalf("unexpected component: %v", entry["component"])
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "viralforge.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	base, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithTaskID(context.Background(), 7)
	ctx = services.WithStage(ctx, "analysis")
	ctx = services.WithJobID(ctx, "job-9")
	ctx = services.WithRequestID(ctx, "req-1")

	logger := logging.WithContext(ctx, base)
	logging.WarnWithContext(logger, "budget near limit", "budget_warning", logging.Error(errors.New("threshold")))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{"task_id=7", "stage=analysis", "job_id=job-9", "correlation_id=req-1", "event_type=budget_warning", "error_hint=", "impact="} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestDecisionAttrs(t *testing.T) {
	attrs := logging.DecisionAttrs("score_gate", "rejected", "score below threshold")
	if !logging.HasAttrKey(attrs, logging.FieldDecisionType) {
		t.Fatal("expected decision_type attribute")
	}
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 100) {
		t.Fatal("nop logger should not be enabled")
	}
	logging.ErrorWithContext(nil, "ignored", "noop")
}
