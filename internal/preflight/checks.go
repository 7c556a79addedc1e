package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"viralforge/internal/config"
	"viralforge/internal/deps"
	"viralforge/internal/services/llm"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Model)}
}

// CheckRedis verifies that the Redis ledger backend answers PING.
func CheckRedis(ctx context.Context, addr, password string, db int) Result {
	const name = "Budget ledger"

	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Result{Name: name, Detail: "missing redis address"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	defer client.Close()

	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("redis %s unreachable (%v)", addr, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("redis %s", addr)}
}

// CheckBudgetBackend evaluates the configured ledger backend.
func CheckBudgetBackend(ctx context.Context, cfg *config.Config) Result {
	if cfg.Budget.Backend == config.BudgetBackendRedis {
		return CheckRedis(ctx, cfg.Budget.RedisAddr, cfg.Budget.RedisPassword, cfg.Budget.RedisDB)
	}
	return Result{Name: "Budget ledger", Passed: true, Detail: "sqlite " + cfg.DatabasePath()}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries production shells out to.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list. edge-tts is optional when it is only the fallback
// narration provider.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Concatenates segments and mixes the final audio",
		},
	}
	if usesEdgeTTS(cfg) {
		requirements = append(requirements, deps.Requirement{
			Name:        "edge-tts",
			Command:     cfg.EdgeTTSBinary(),
			Description: "Synthesizes narration",
			Optional:    !strings.EqualFold(cfg.TTS.Primary, "edge-tts"),
		})
	}
	results := deps.CheckBinaries(requirements)
	return append(results, deps.CheckFFprobe(cfg.FFmpegBinary(), cfg.Mix.FFprobeBinary))
}

func usesEdgeTTS(cfg *config.Config) bool {
	return strings.EqualFold(cfg.TTS.Primary, "edge-tts") || strings.EqualFold(cfg.TTS.Fallback, "edge-tts")
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
