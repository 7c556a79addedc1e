package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"viralforge/internal/config"
	"viralforge/internal/daemon"
	"viralforge/internal/stage"
	"viralforge/internal/workflow"
)

func TestDaemonStopWhenNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"daemon", "stop"}, env.configPath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestDaemonStopReportsUnreadablePID(t *testing.T) {
	env := setupCLITestEnv(t)

	lock := flock.New(daemon.LockFilePath(env.cfg))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: %v (locked=%v)", err, locked)
	}
	t.Cleanup(func() { _ = lock.Unlock() })
	writeFile(t, daemon.PIDFilePath(env.cfg), "not-a-pid\n")

	_, _, err = runCLI(t, []string{"daemon", "stop"}, env.configPath)
	if err == nil {
		t.Fatal("expected pid file error")
	}
	requireContains(t, err.Error(), "pid file is unreadable")
}

func TestDaemonStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"daemon", "status"}, env.configPath)
	if err == nil {
		t.Fatal("expected connection error")
	}
	requireContains(t, err.Error(), "connect to daemon")
}

func TestDaemonStatusRendersAPIResponse(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(daemon.Status{
			Running: true,
			PID:     4242,
			Workflow: workflow.StatusSummary{
				Running:   true,
				LastError: "veo timed out",
				StageHealth: map[string]stage.Health{
					"producer": {Name: "producer", Ready: true, Detail: "ready"},
				},
			},
		})
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Paths.APIBind = strings.TrimPrefix(srv.URL, "http://")
	env.cfg.Paths.APIToken = "secret"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"daemon", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "pid 4242")
	requireContains(t, out, "last error: veo timed out")
	requireContains(t, out, "Stage producer")
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
}

func TestDepsOfflineListsEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, _ := runCLI(t, []string{"deps", "--offline"}, env.configPath)
	requireContains(t, out, "== Environment ==")
	if strings.Contains(out, "== Models ==") {
		t.Fatalf("expected --offline to skip model checks\n%s", out)
	}
}

func TestNotifyTestWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"notify", "test"}, env.configPath)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestDaemonRunningProbe(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.LogDir = t.TempDir()

	running, err := daemonRunning(cfg)
	if err != nil || running {
		t.Fatalf("expected free lock, got running=%v err=%v", running, err)
	}
	if _, err := os.Stat(daemon.LockFilePath(cfg)); err != nil {
		t.Fatalf("expected probe to leave the lock file behind: %v", err)
	}
}
