package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"viralforge/internal/candidates"
	"viralforge/internal/store"
)

const sampleDataset = `[
  {"id": "7301", "webVideoUrl": "https://www.tiktok.com/@chef/video/7301", "text": "three pasta mistakes", "playCount": 100000, "diggCount": 10000, "commentCount": 1000},
  {"id": "7302", "webVideoUrl": "https://www.tiktok.com/@chef/video/7302", "text": "quiet day", "playCount": 10, "diggCount": 1, "commentCount": 0}
]`

func TestCandidatesImportQueuesPassingItems(t *testing.T) {
	env := setupCLITestEnv(t)
	dataset := filepath.Join(env.baseDir, "dataset.json")
	writeFile(t, dataset, sampleDataset)

	out, _, err := runCLI(t, []string{"candidates", "import", "--dataset", dataset}, env.configPath)
	if err != nil {
		t.Fatalf("candidates import: %v", err)
	}
	requireContains(t, out, "Fetched 2, stored 2, passed 1, queued 1, gated out 1, failed 0")

	ctx := context.Background()
	tasks, err := env.store.ListTasks(ctx, store.TaskPending)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Kind != store.TaskAnalyze {
		t.Fatalf("expected one analyze task, got %+v", tasks)
	}
	cand, err := env.store.GetCandidate(ctx, tasks[0].SubjectID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if cand == nil || cand.ExternalID != "7301" || cand.Status != store.CandidateQueued {
		t.Fatalf("unexpected queued candidate %+v", cand)
	}

	// A second import refreshes counters without queueing the item again.
	out, _, err = runCLI(t, []string{"candidates", "import", "--dataset", dataset, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	var report candidates.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Stored != 2 || report.Passed != 1 || report.Queued != 0 {
		t.Fatalf("unexpected second report %+v", report)
	}

	out, _, err = runCLI(t, []string{"candidates", "list", "--passing"}, env.configPath)
	if err != nil {
		t.Fatalf("candidates list: %v", err)
	}
	requireContains(t, out, "7301")
	requireContains(t, out, "queued")
	if strings.Contains(out, "7302") {
		t.Fatalf("expected gated-out candidate to be filtered, got\n%s", out)
	}

	out, _, err = runCLI(t, []string{"budget", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("budget status: %v", err)
	}
	requireContains(t, out, "candidates_collected")
}

func TestCandidatesImportRequiresOneSource(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"candidates", "import"}, env.configPath); err == nil {
		t.Fatal("expected missing source error")
	}
	if _, _, err := runCLI(t, []string{"candidates", "import", "--dataset", "a.json", "--feed", "b.xml"}, env.configPath); err == nil {
		t.Fatal("expected conflicting source error")
	}
	if _, _, err := runCLI(t, []string{"candidates", "import", "--dataset", "a.json", "--profile", "9"}, env.configPath); err == nil {
		t.Fatal("expected missing profile error")
	}
}

func TestCandidatesScore(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"candidates", "score", "--views", "100000", "--likes", "10000", "--comments", "1000"}, env.configPath)
	if err != nil {
		t.Fatalf("candidates score: %v", err)
	}
	requireContains(t, out, "Score:                 0.900 (threshold 0.600)")
	requireContains(t, out, "Passes:                yes")
	requireContains(t, out, "Recency:               0.500")

	out, _, err = runCLI(t, []string{"candidates", "score", "--views", "10"}, env.configPath)
	if err != nil {
		t.Fatalf("candidates score: %v", err)
	}
	requireContains(t, out, "Passes:                no")

	if _, _, err := runCLI(t, []string{"candidates", "score", "--posted", "yesterday"}, env.configPath); err == nil {
		t.Fatal("expected invalid --posted error")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("a  b\nc", 10); got != "a b c" {
		t.Fatalf("expected whitespace collapsed, got %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}
