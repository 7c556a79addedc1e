package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"viralforge/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer srv.Close()

	cfg := config.LLMConfig{APIKey: "good-key", BaseURL: srv.URL, Model: "demo"}
	if result := CheckLLM(context.Background(), "Analysis LLM", cfg); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	cfg.APIKey = "bad-key"
	if result := CheckLLM(context.Background(), "Analysis LLM", cfg); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	cfg.APIKey = ""
	if result := CheckLLM(context.Background(), "Analysis LLM", cfg); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result for missing key: %+v", result)
	}
}

func TestCheckRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	if result := CheckRedis(context.Background(), mr.Addr(), "", 0); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckRedis(context.Background(), "", "", 0); result.Passed {
		t.Fatal("expected failure for missing address")
	}
	addr := mr.Addr()
	mr.Close()
	if result := CheckRedis(context.Background(), addr, "", 0); result.Passed {
		t.Fatal("expected failure for stopped server")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func stubBinaries(t *testing.T, names ...string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatalf("write stub: %v", err)
		}
	}
	t.Setenv("PATH", dir)
}

func TestRunAll_MinimalConfig(t *testing.T) {
	stubBinaries(t, "ffmpeg", "ffprobe", "edge-tts")
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Storage.Backend = config.StorageFS
	cfg.Storage.Root = t.TempDir()
	cfg.Budget.Backend = config.BudgetBackendSQLite

	results := RunAll(context.Background(), &cfg)
	// Three directories plus ffmpeg, edge-tts and ffprobe.
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ReportsMissingBinaryAndRedis(t *testing.T) {
	stubBinaries(t, "ffprobe")
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Storage.Backend = config.StorageS3
	cfg.Budget.Backend = config.BudgetBackendRedis
	cfg.Budget.RedisAddr = addr
	cfg.TTS.Primary = "elevenlabs"
	cfg.TTS.Fallback = ""

	failed := Failed(RunAll(context.Background(), &cfg))
	names := map[string]bool{}
	for _, r := range failed {
		names[r.Name] = true
	}
	if len(failed) != 2 || !names["FFmpeg"] || !names["Budget ledger"] {
		t.Fatalf("expected ffmpeg and ledger failures, got %+v", failed)
	}
}
