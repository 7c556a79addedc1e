package budget_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"viralforge/internal/budget"
)

var testNow = time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC)

func newLedger(t *testing.T, policy budget.Policy) (*budget.Ledger, *budget.MemoryStore) {
	t.Helper()
	store := budget.NewMemoryStore()
	ledger := budget.NewLedger(store, policy, budget.DefaultPrices("test"),
		budget.WithClock(func() time.Time { return testNow }),
		budget.WithLocation(time.UTC),
	)
	return ledger, store
}

func dollars(v float64) budget.USD { return budget.FromDollars(v) }

func TestStatusWithoutSpendDoesNotCreatePeriod(t *testing.T) {
	ledger, store := newLedger(t, budget.DefaultPolicy())
	ctx := context.Background()

	st, err := ledger.Status(ctx, "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Period != "2026-05-14" {
		t.Fatalf("unexpected period %q", st.Period)
	}
	if st.Spent != 0 || st.Remaining != dollars(20) || st.Exceeded {
		t.Fatalf("unexpected empty status: %+v", st)
	}
	if p, _ := store.Period(ctx, "2026-05-14"); p != nil {
		t.Fatalf("expected no period to be created, got %+v", p)
	}
}

func TestRecordAccumulatesAndSetsExceededOnce(t *testing.T) {
	ledger, _ := newLedger(t, budget.Policy{DailyLimit: dollars(1), MonthlyLimit: dollars(100), WarningThreshold: 0.8, AbortOnExceed: true})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, dollars(0.25), budget.ServiceVeo); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := ledger.Record(ctx, dollars(0.002), budget.ServiceGemini); err != nil {
		t.Fatalf("Record: %v", err)
	}
	p, err := ledger.Record(ctx, dollars(0.748), budget.ServiceVeo)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if p.Total != dollars(1) {
		t.Fatalf("expected total $1.00, got %s", p.Total)
	}
	if !p.Exceeded || p.ExceededAt == nil {
		t.Fatalf("expected exceeded at total == limit, got %+v", p)
	}
	firstExceeded := *p.ExceededAt

	var sum budget.USD
	for _, v := range p.Breakdown {
		sum += v
	}
	if sum != p.Total {
		t.Fatalf("breakdown %v does not sum to total %s", p.Breakdown, p.Total)
	}
	if p.Operations != 3 {
		t.Fatalf("expected 3 operations, got %d", p.Operations)
	}

	p, err = ledger.Record(ctx, dollars(0.5), budget.ServiceVeo)
	if err != nil {
		t.Fatalf("Record after exceed should still write: %v", err)
	}
	if !p.ExceededAt.Equal(firstExceeded) {
		t.Fatalf("exceeded_at changed from %v to %v", firstExceeded, p.ExceededAt)
	}
}

func TestRecordRejectsNegativeAndSkipsZero(t *testing.T) {
	ledger, store := newLedger(t, budget.DefaultPolicy())
	ctx := context.Background()
	if _, err := ledger.Record(ctx, -1, budget.ServiceVeo); !errors.Is(err, budget.ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	p, err := ledger.Record(ctx, 0, budget.ServiceEdgeTTS)
	if err != nil {
		t.Fatalf("Record zero: %v", err)
	}
	if p.Total != 0 || p.Operations != 0 {
		t.Fatalf("unexpected period for zero record: %+v", p)
	}
	if existing, _ := store.Period(ctx, p.Day); existing != nil {
		t.Fatal("zero record should not create a period")
	}
}

func TestCanSpendReasons(t *testing.T) {
	hard := budget.Policy{DailyLimit: dollars(10), MonthlyLimit: dollars(500), WarningThreshold: 0.8, AbortOnExceed: true}
	soft := hard
	soft.AbortOnExceed = false

	tests := []struct {
		name        string
		policy      budget.Policy
		spent       float64
		amount      float64
		wantAllowed bool
		wantReason  string
	}{
		{"ok", hard, 0, 1, true, budget.ReasonOK},
		{"threshold", hard, 7, 1, true, budget.ReasonWarnThresholdReached},
		{"insufficient hard", hard, 9, 2, false, budget.ReasonInsufficient},
		{"insufficient soft", soft, 9, 2, true, budget.ReasonWarnExceeds},
		{"exceeded hard", hard, 10, 0.01, false, budget.ReasonExceeded},
		{"exceeded soft", soft, 12, 0.01, false, budget.ReasonExceeded},
		{"exact remaining", hard, 5, 5, true, budget.ReasonWarnThresholdReached},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger, _ := newLedger(t, tc.policy)
			ctx := context.Background()
			if tc.spent > 0 {
				if _, err := ledger.Record(ctx, dollars(tc.spent), budget.ServiceVeo); err != nil {
					t.Fatalf("seed spend: %v", err)
				}
			}
			allowed, reason, err := ledger.CanSpend(ctx, dollars(tc.amount), "production")
			if err != nil {
				t.Fatalf("CanSpend: %v", err)
			}
			if allowed != tc.wantAllowed || reason != tc.wantReason {
				t.Fatalf("CanSpend = (%v, %q), want (%v, %q)", allowed, reason, tc.wantAllowed, tc.wantReason)
			}
		})
	}
}

func TestCanSpendChecksMonthlyLimit(t *testing.T) {
	store := budget.NewMemoryStore()
	policy := budget.Policy{DailyLimit: dollars(10), MonthlyLimit: dollars(15), WarningThreshold: 0.8, AbortOnExceed: true}
	earlier := budget.NewLedger(store, policy, budget.DefaultPrices("test"),
		budget.WithClock(func() time.Time { return testNow.AddDate(0, 0, -2) }), budget.WithLocation(time.UTC))
	if _, err := earlier.Record(context.Background(), dollars(9), budget.ServiceVeo); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := earlier.Record(context.Background(), dollars(1), budget.ServiceVeo); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ledger := budget.NewLedger(store, policy, budget.DefaultPrices("test"),
		budget.WithClock(func() time.Time { return testNow }), budget.WithLocation(time.UTC))
	allowed, reason, err := ledger.CanSpend(context.Background(), dollars(6), "production")
	if err != nil {
		t.Fatalf("CanSpend: %v", err)
	}
	if allowed || reason != budget.ReasonInsufficientMonthly {
		t.Fatalf("expected monthly refusal, got (%v, %q)", allowed, reason)
	}

	month, err := ledger.MonthStatus(context.Background(), "2026-05")
	if err != nil {
		t.Fatalf("MonthStatus: %v", err)
	}
	if month.Spent != dollars(10) || month.Limit != dollars(15) || month.Remaining != dollars(5) {
		t.Fatalf("unexpected month status: %+v", month)
	}
	if month.Operations != 2 {
		t.Fatalf("expected 2 operations, got %d", month.Operations)
	}
}

func TestEstimateUsesPricesAndCanSpend(t *testing.T) {
	ledger, _ := newLedger(t, budget.DefaultPolicy())
	est, err := ledger.Estimate(context.Background(), budget.Counts{
		budget.ServiceVeo:        5,
		budget.ServiceElevenLabs: 1000,
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.Items[budget.ServiceVeo] != dollars(1.25) {
		t.Fatalf("unexpected veo cost %s", est.Items[budget.ServiceVeo])
	}
	if est.Items[budget.ServiceElevenLabs] != dollars(0.30) {
		t.Fatalf("unexpected elevenlabs cost %s", est.Items[budget.ServiceElevenLabs])
	}
	if est.Total != dollars(1.55) || !est.Allowed || est.Reason != budget.ReasonOK {
		t.Fatalf("unexpected estimate: %+v", est)
	}
	if _, err := ledger.Estimate(context.Background(), budget.Counts{"midjourney": 1}); !errors.Is(err, budget.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestConcurrentRecordsAreNotLost(t *testing.T) {
	ledger, _ := newLedger(t, budget.Policy{DailyLimit: dollars(5), MonthlyLimit: dollars(100), WarningThreshold: 0.8, AbortOnExceed: true})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Record(ctx, dollars(0.25), budget.ServiceVeo); err != nil {
				t.Errorf("Record: %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := ledger.Status(ctx, "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Spent != dollars(12.5) || st.Operations != 50 {
		t.Fatalf("expected $12.50 over 50 operations, got %s over %d", st.Spent, st.Operations)
	}
	if !st.Exceeded {
		t.Fatal("expected exceeded")
	}
}

func TestCountersAppearInStatus(t *testing.T) {
	ledger, _ := newLedger(t, budget.DefaultPolicy())
	ctx := context.Background()
	if err := ledger.Count(ctx, budget.CounterVideosAnalyzed, 2); err != nil {
		t.Fatalf("Count: %v", err)
	}
	if err := ledger.Count(ctx, budget.CounterVideosProduced, 1); err != nil {
		t.Fatalf("Count: %v", err)
	}
	st, err := ledger.Status(ctx, "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Counters[budget.CounterVideosAnalyzed] != 2 || st.Counters[budget.CounterVideosProduced] != 1 {
		t.Fatalf("unexpected counters: %v", st.Counters)
	}
}

type failingStore struct {
	*budget.MemoryStore
	err error
}

func (f failingStore) Apply(context.Context, budget.Charge) (budget.Period, error) {
	return budget.Period{}, f.err
}

func TestRecordSurfacesStoreError(t *testing.T) {
	boom := errors.New("disk full")
	ledger := budget.NewLedger(failingStore{MemoryStore: budget.NewMemoryStore(), err: boom}, budget.DefaultPolicy(), budget.DefaultPrices("test"))
	if _, err := ledger.Record(context.Background(), dollars(1), budget.ServiceVeo); !errors.Is(err, boom) {
		t.Fatalf("expected store error to surface, got %v", err)
	}
}

func TestRecordNotifiesObserver(t *testing.T) {
	var seen []string
	store := budget.NewMemoryStore()
	ledger := budget.NewLedger(store, budget.DefaultPolicy(), budget.DefaultPrices("test"),
		budget.WithObserver(func(service string, amount budget.USD) {
			seen = append(seen, service+"="+amount.String())
		}))
	if _, err := ledger.Record(context.Background(), dollars(0.5), budget.ServiceVeo); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(seen) != 1 || seen[0] != "veo=$0.50" {
		t.Fatalf("unexpected observer calls: %v", seen)
	}
}

func TestNextDayStartsAtLocalMidnight(t *testing.T) {
	ledger, _ := newLedger(t, budget.DefaultPolicy())
	if got, want := ledger.NextDay(), time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("NextDay = %v, want %v", got, want)
	}

	saoPaulo := time.FixedZone("BRT", -3*3600)
	late := budget.NewLedger(budget.NewMemoryStore(), budget.DefaultPolicy(), budget.DefaultPrices("test"),
		budget.WithClock(func() time.Time { return time.Date(2026, 5, 15, 1, 0, 0, 0, time.UTC) }),
		budget.WithLocation(saoPaulo),
	)
	if got, want := late.NextDay(), time.Date(2026, 5, 15, 0, 0, 0, 0, saoPaulo); !got.Equal(want) {
		t.Fatalf("NextDay = %v, want %v", got, want)
	}
}

func TestRecordOrderDoesNotChangeTotals(t *testing.T) {
	type charge struct {
		amount  float64
		service string
	}
	policy := budget.Policy{DailyLimit: dollars(4), MonthlyLimit: dollars(100), WarningThreshold: 0.8, AbortOnExceed: true}
	apply := func(charges []charge) budget.Status {
		ledger, _ := newLedger(t, policy)
		ctx := context.Background()
		for _, c := range charges {
			if _, err := ledger.Record(ctx, dollars(c.amount), c.service); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
		st, err := ledger.Status(ctx, "")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		return st
	}

	forward := apply([]charge{{3, budget.ServiceVeo}, {2, budget.ServiceElevenLabs}})
	reverse := apply([]charge{{2, budget.ServiceElevenLabs}, {3, budget.ServiceVeo}})

	if forward.Spent != dollars(5) || reverse.Spent != forward.Spent {
		t.Fatalf("totals differ: forward=%s reverse=%s", forward.Spent, reverse.Spent)
	}
	if forward.Operations != 2 || reverse.Operations != 2 {
		t.Fatalf("unexpected operation counts %d / %d", forward.Operations, reverse.Operations)
	}
	if !forward.Exceeded || !reverse.Exceeded {
		t.Fatal("both orders must end exceeded")
	}
	for _, st := range []budget.Status{forward, reverse} {
		var sum budget.USD
		for _, amount := range st.Breakdown {
			sum += amount
		}
		if sum != st.Spent {
			t.Fatalf("breakdown sums to %s, total is %s", sum, st.Spent)
		}
		if st.Breakdown[budget.ServiceVeo] != dollars(3) || st.Breakdown[budget.ServiceElevenLabs] != dollars(2) {
			t.Fatalf("unexpected breakdown %+v", st.Breakdown)
		}
	}
}

func TestCanSpendBeyondRemainingByPolicy(t *testing.T) {
	for _, tc := range []struct {
		abort       bool
		wantAllowed bool
		wantReason  string
	}{
		{true, false, budget.ReasonInsufficient},
		{false, true, budget.ReasonWarnExceeds},
	} {
		ledger, _ := newLedger(t, budget.Policy{DailyLimit: dollars(20), MonthlyLimit: dollars(500), WarningThreshold: 0.8, AbortOnExceed: tc.abort})
		ctx := context.Background()
		if _, err := ledger.Record(ctx, dollars(17), budget.ServiceVeo); err != nil {
			t.Fatalf("Record: %v", err)
		}
		st, err := ledger.Status(ctx, "")
		if err != nil || st.Remaining != dollars(3) {
			t.Fatalf("expected $3 remaining, got %+v (%v)", st, err)
		}
		allowed, reason, err := ledger.CanSpend(ctx, dollars(5), "production")
		if err != nil {
			t.Fatalf("CanSpend: %v", err)
		}
		if allowed != tc.wantAllowed || reason != tc.wantReason {
			t.Fatalf("abort=%v: CanSpend = %v %q, want %v %q", tc.abort, allowed, reason, tc.wantAllowed, tc.wantReason)
		}
	}
}
