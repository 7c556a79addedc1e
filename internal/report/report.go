// Package report assembles the daily operations summary: spend against the
// limits, activity counters, queue and candidate totals, productions started
// that day and strategies still waiting for approval. The summary renders as
// Markdown for the terminal and as HTML for the daemon API.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"viralforge/internal/budget"
	"viralforge/internal/production"
	"viralforge/internal/store"
)

const jobScanLimit = 200

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Source is the read side of the store the report draws from.
type Source interface {
	TaskStats(ctx context.Context) (map[store.TaskStatus]int, error)
	CandidateStats(ctx context.Context) (map[store.CandidateStatus]int, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]production.Job, error)
	ListStrategies(ctx context.Context, statuses ...store.StrategyStatus) ([]store.Strategy, error)
}

// Ledger supplies the budget views.
type Ledger interface {
	Status(ctx context.Context, day string) (budget.Status, error)
	MonthStatus(ctx context.Context, month string) (budget.Status, error)
}

// Daily is one day's summary.
type Daily struct {
	Day        string                        `json:"day"`
	Budget     budget.Status                 `json:"budget"`
	Month      budget.Status                 `json:"month"`
	Tasks      map[store.TaskStatus]int      `json:"tasks"`
	Candidates map[store.CandidateStatus]int `json:"candidates"`
	Jobs       []production.Job              `json:"jobs"`
	Pending    []store.Strategy              `json:"pending_strategies"`
}

// Build gathers the summary for day (YYYY-MM-DD). Jobs are attributed to the
// day their creation time falls on in loc; a nil loc means UTC.
func Build(ctx context.Context, src Source, ledger Ledger, day string, loc *time.Location) (*Daily, error) {
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, fmt.Errorf("report day %q: %w", day, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	d := &Daily{Day: day}

	var err error
	if d.Budget, err = ledger.Status(ctx, day); err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}
	if d.Month, err = ledger.MonthStatus(ctx, day[:7]); err != nil {
		return nil, fmt.Errorf("month status: %w", err)
	}
	if d.Tasks, err = src.TaskStats(ctx); err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	if d.Candidates, err = src.CandidateStats(ctx); err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	jobs, err := src.ListJobs(ctx, store.JobFilter{Limit: jobScanLimit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, job := range jobs {
		if job.CreatedAt.In(loc).Format("2006-01-02") == day {
			d.Jobs = append(d.Jobs, job)
		}
	}
	if d.Pending, err = src.ListStrategies(ctx, store.StrategyPendingApproval); err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return d, nil
}

var counterOrder = []string{
	budget.CounterCandidatesCollected,
	budget.CounterVideosAnalyzed,
	budget.CounterStrategiesGenerated,
	budget.CounterVideosProduced,
	budget.CounterRenderGenerations,
	budget.CounterTTSCharacters,
}

// Markdown renders the summary.
func (d *Daily) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# viralforge daily report: %s\n\n", d.Day)

	b.WriteString("## Budget\n\n")
	b.WriteString("| Period | Spent | Limit | Remaining | Used |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	budgetRow(&b, "Today", d.Budget)
	budgetRow(&b, d.Month.Period, d.Month)
	b.WriteString("\n")
	switch {
	case d.Budget.Exceeded && d.Budget.ExceededAt != nil:
		fmt.Fprintf(&b, "Daily limit exceeded at %s. Paid work resumes tomorrow.\n\n", d.Budget.ExceededAt.Format("15:04"))
	case d.Budget.Exceeded:
		b.WriteString("Daily limit exceeded. Paid work resumes tomorrow.\n\n")
	case d.Budget.WarningReached:
		b.WriteString("Warning threshold reached.\n\n")
	}

	if len(d.Budget.Breakdown) > 0 {
		b.WriteString("### Spend by service\n\n| Service | Spent |\n|---|---:|\n")
		for _, service := range sortedKeys(d.Budget.Breakdown) {
			fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(service), d.Budget.Breakdown[service])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Activity\n\n| Counter | Count |\n|---|---:|\n")
	seen := make(map[string]bool, len(counterOrder))
	for _, name := range counterOrder {
		seen[name] = true
		fmt.Fprintf(&b, "| %s | %d |\n", name, d.Budget.Counters[name])
	}
	for _, name := range sortedKeys(d.Budget.Counters) {
		if !seen[name] {
			fmt.Fprintf(&b, "| %s | %d |\n", escapeCell(name), d.Budget.Counters[name])
		}
	}
	b.WriteString("\n")

	statusTable(&b, "Queue", "Tasks", d.Tasks)
	statusTable(&b, "Candidates", "Candidates", d.Candidates)

	b.WriteString("## Productions\n\n")
	if len(d.Jobs) == 0 {
		b.WriteString("No productions today.\n\n")
	} else {
		b.WriteString("| Job | Strategy | Status | Cost | Missing scenes | Output |\n|---|---:|---|---:|---:|---|\n")
		for _, job := range d.Jobs {
			output := job.FinalRef
			if output == "" {
				output = job.Error
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %d | %s |\n",
				shortID(job.ID), job.StrategyID, job.Status, job.TotalCost, job.SegmentsFailed, escapeCell(output))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Awaiting approval\n\n")
	if len(d.Pending) == 0 {
		b.WriteString("No strategies awaiting approval.\n")
	} else {
		for _, s := range d.Pending {
			fmt.Fprintf(&b, "- #%d %s (candidate #%d)\n", s.ID, strings.TrimSpace(s.Title), s.CandidateID)
		}
	}
	return b.String()
}

// HTML renders the Markdown summary to an HTML fragment.
func (d *Daily) HTML() (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(d.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func budgetRow(b *strings.Builder, label string, st budget.Status) {
	fmt.Fprintf(b, "| %s | %s | %s | %s | %.1f%% |\n", label, st.Spent, st.Limit, st.Remaining, st.PercentUsed)
}

func statusTable[K ~string](b *strings.Builder, title, column string, counts map[K]int) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(counts) == 0 {
		b.WriteString("Empty.\n\n")
		return
	}
	fmt.Fprintf(b, "| Status | %s |\n|---|---:|\n", column)
	for _, key := range sortedKeys(counts) {
		fmt.Fprintf(b, "| %s | %d |\n", key, counts[key])
	}
	b.WriteString("\n")
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
