package candidates_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"viralforge/internal/budget"
	"viralforge/internal/candidates"
	"viralforge/internal/store"
	"viralforge/internal/testsupport"
)

const instagramDataset = `[
  {
    "id": "3311",
    "shortCode": "C9xyz",
    "url": "https://www.instagram.com/reel/C9xyz/",
    "caption": "  morning routine  ",
    "ownerUsername": "dailyhabits",
    "videoViewCount": 250000,
    "likesCount": 12000,
    "commentsCount": 800,
    "timestamp": "2026-03-01T08:00:00.000Z"
  },
  {
    "url": "https://www.instagram.com/reel/NOID/",
    "videoPlayCount": 900,
    "likesCount": 10,
    "commentsCount": -4
  },
  {"caption": "no id and no url"}
]`

func TestParseDatasetInstagramArray(t *testing.T) {
	items, err := candidates.ParseDataset(context.Background(), strings.NewReader(instagramDataset), "")
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.Platform != candidates.PlatformInstagram || first.ExternalID != "3311" || first.Author != "dailyhabits" {
		t.Fatalf("unexpected first item %+v", first)
	}
	if first.Views != 250000 || first.Likes != 12000 || first.Comments != 800 || first.Caption != "morning routine" {
		t.Fatalf("unexpected counters %+v", first)
	}
	if first.PostedAt == nil || !first.PostedAt.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected posted at %v", first.PostedAt)
	}

	second := items[1]
	if second.ExternalID == "" || second.ExternalID == second.URL {
		t.Fatalf("expected derived id for item without id, got %q", second.ExternalID)
	}
	if second.Views != 900 || second.Comments != 0 || second.PostedAt != nil {
		t.Fatalf("unexpected second item %+v", second)
	}

	again, err := candidates.ParseDataset(context.Background(), strings.NewReader(instagramDataset), "")
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if again[1].ExternalID != second.ExternalID {
		t.Fatal("derived ids must be stable across imports")
	}
}

func TestParseDatasetTikTokLines(t *testing.T) {
	data := `{"id": "7301", "text": "fast recipe", "webVideoUrl": "https://www.tiktok.com/@chef/video/7301", "authorMeta": {"name": "chef"}, "stats": {"playCount": 50000, "diggCount": 4000, "commentCount": 300}, "createTime": 1772352000}
{"id": "7302", "playCount": "1,200", "diggCount": 30, "commentCount": 2, "createTimeISO": "2026-03-01T10:00:00Z"}
`
	items, err := candidates.ParseDataset(context.Background(), strings.NewReader(data), "tiktok")
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Author != "chef" || items[0].Views != 50000 || items[0].Likes != 4000 || items[0].Comments != 300 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].PostedAt == nil || items[0].PostedAt.Unix() != 1772352000 {
		t.Fatalf("unexpected posted at %v", items[0].PostedAt)
	}
	if items[1].Platform != "tiktok" || items[1].Views != 1200 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
}

func TestParseDatasetEmpty(t *testing.T) {
	items, err := candidates.ParseDataset(context.Background(), strings.NewReader("  \n"), "tiktok")
	if err != nil || len(items) != 0 {
		t.Fatalf("expected no items, got %v %v", items, err)
	}
	if _, err := candidates.ParseDataset(context.Background(), strings.NewReader("[{"), "tiktok"); err == nil {
		t.Fatal("expected decode error for truncated dataset")
	}
}

func TestFeedSourceReadsYouTubeStatistics(t *testing.T) {
	src := candidates.NewFeedSource(filepath.Join("testdata", "youtube.xml"), "")
	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.ExternalID != "abc123" || first.Platform != candidates.PlatformYouTube || first.Author != "kitchenshorts" {
		t.Fatalf("unexpected first item %+v", first)
	}
	if first.Views != 125000 || first.Likes != 4200 {
		t.Fatalf("expected media statistics, got views=%d likes=%d", first.Views, first.Likes)
	}
	if items[1].Views != 0 || items[1].PostedAt == nil {
		t.Fatalf("unexpected second item %+v", items[1])
	}
}

type staticSource struct {
	items []candidates.Item
	err   error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Fetch(context.Context) ([]candidates.Item, error) { return s.items, s.err }

func TestImporterQueuesPassingCandidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ledger := budget.NewLedger(st, budget.DefaultPolicy(), budget.DefaultPrices("test"))
	ctx := context.Background()

	posted := time.Now().Add(-2 * time.Hour)
	src := staticSource{items: []candidates.Item{
		{Platform: "tiktok", ExternalID: "hit", Views: 150000, Likes: 9000, Comments: 2000, PostedAt: &posted},
		{Platform: "tiktok", ExternalID: "miss", Views: 800, Likes: 20, Comments: 1, PostedAt: &posted},
	}}

	im := candidates.NewImporter(st, ledger, nil)
	report, err := im.Import(ctx, src, candidates.Options{ChargeService: budget.ServiceApify})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Stored != 2 || report.Passed != 1 || report.Queued != 1 || report.GatedOut != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	// 2.30 per 1000 results.
	if report.Cost != budget.USD(2*2300) {
		t.Fatalf("cost = %s", report.Cost)
	}
	status, err := ledger.Status(ctx, ledger.Today())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Breakdown[budget.ServiceApify] != report.Cost {
		t.Fatalf("expected apify spend recorded, got %+v", status.Breakdown)
	}

	tasks, err := st.ListTasks(ctx, store.TaskPending)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Kind != store.TaskAnalyze {
		t.Fatalf("expected one analyze task, got %+v", tasks)
	}
	hit, err := st.GetCandidate(ctx, tasks[0].SubjectID)
	if err != nil || hit == nil || hit.ExternalID != "hit" || hit.Status != store.CandidateQueued {
		t.Fatalf("unexpected queued candidate %+v (%v)", hit, err)
	}

	// A second import refreshes counters without queueing twice.
	report, err = im.Import(ctx, src, candidates.Options{})
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if report.Queued != 0 || report.Passed != 1 || report.Cost != 0 {
		t.Fatalf("unexpected second report %+v", report)
	}
	if tasks, _ := st.ListTasks(ctx, store.TaskPending); len(tasks) != 1 {
		t.Fatalf("expected the analyze task to stay unique, got %d", len(tasks))
	}
}

func TestImporterFetchError(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	im := candidates.NewImporter(st, nil, nil)
	boom := errors.New("dataset unavailable")
	if _, err := im.Import(context.Background(), staticSource{err: boom}, candidates.Options{}); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	src := staticSource{items: []candidates.Item{{Platform: "tiktok", ExternalID: "x"}}}
	if _, err := im.Import(context.Background(), src, candidates.Options{ChargeService: budget.ServiceApify}); err == nil {
		t.Fatal("expected error when charging without a ledger")
	}
}
