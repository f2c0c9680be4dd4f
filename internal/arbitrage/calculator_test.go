package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/retry"
	"github.com/alanyoungcy/inthegrid/internal/store/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(context.Context, string, map[string]string) error { return nil }

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// flakySpreads fails the first insert of each pair once.
type flakySpreads struct {
	*memory.SpreadStore
	mu     sync.Mutex
	failed map[string]bool
}

func (f *flakySpreads) Insert(ctx context.Context, rec domain.SpreadRecord) (bool, error) {
	f.mu.Lock()
	key := rec.MarketPair.String()
	if !f.failed[key] {
		f.failed[key] = true
		f.mu.Unlock()
		return false, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.SpreadStore.Insert(ctx, rec)
}

func seed(t *testing.T, prices *memory.PriceStore, at time.Time, vals map[domain.MarketCode]float64) {
	t.Helper()
	for m, p := range vals {
		o, err := domain.NewPriceObservation(m, at, p)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := prices.Insert(context.Background(), o); err != nil {
			t.Fatal(err)
		}
	}
}

func newCalc(t *testing.T, prices domain.PriceStore, spreads domain.SpreadStore, bus domain.SignalBus) *Calculator {
	t.Helper()
	return NewCalculator(CalculatorConfig{
		Markets:  []domain.MarketCode{"DE", "FR", "NL"},
		Costs:    defaultCosts(t),
		Lookback: 5 * time.Minute,
		Bucket:   10 * time.Second,
		Retry:    retry.Policy{MaxAttempts: 3, Base: time.Millisecond, Max: time.Millisecond},
		Prices:   prices,
		Spreads:  spreads,
		Bus:      bus,
		Logger:   quiet,
	})
}

func TestRunCycle_OnlyInWindowMarketsArePaired(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceStore()
	spreads := memory.NewSpreadStore()
	bus := &fakeBus{}

	now := time.Date(2025, 3, 10, 12, 0, 3, 0, time.UTC)
	seed(t, prices, now.Add(-time.Minute), map[domain.MarketCode]float64{"DE": 60, "FR": 80})
	seed(t, prices, now.Add(-time.Hour), map[domain.MarketCode]float64{"NL": 70})

	stats, err := newCalc(t, prices, spreads, bus).RunCycle(ctx, now)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Pairs != 1 || stats.Inserted != 1 {
		t.Fatalf("stats = %+v, want 1 pair inserted", stats)
	}
	if len(stats.Missing) != 1 || stats.Missing[0] != "NL" {
		t.Errorf("missing = %v, want [NL]", stats.Missing)
	}

	recs, _ := spreads.ListAfter(ctx, 0, 10)
	if len(recs) != 1 {
		t.Fatalf("stored %d spreads, want 1", len(recs))
	}
	rec := recs[0]
	if rec.MarketPair.String() != "DE-FR" || rec.NetOpportunity.StringFixed(2) != "17.50" {
		t.Errorf("record = %s net %s, want DE-FR net 17.50", rec.MarketPair, rec.NetOpportunity.StringFixed(2))
	}
	if !rec.Timestamp.Equal(now.Truncate(10 * time.Second)) {
		t.Errorf("timestamp = %v, want bucket start", rec.Timestamp)
	}

	msgs := bus.published[domain.ChannelSpreads]
	if len(msgs) != 1 {
		t.Fatalf("spreads announcements = %d, want 1", len(msgs))
	}
	var ev spreadsEvent
	if err := json.Unmarshal(msgs[0], &ev); err != nil || ev.Inserted != 1 {
		t.Errorf("announcement = %s (%v)", msgs[0], err)
	}
}

func TestRunCycle_NegativeNetIsPersisted(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceStore()
	spreads := memory.NewSpreadStore()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, prices, now, map[domain.MarketCode]float64{"DE": 70, "FR": 71})

	if _, err := newCalc(t, prices, spreads, nil).RunCycle(ctx, now); err != nil {
		t.Fatal(err)
	}
	recs, _ := spreads.ListAfter(ctx, 0, 10)
	if len(recs) != 1 || recs[0].NetOpportunity.StringFixed(2) != "-1.50" {
		t.Fatalf("records = %+v, want one with net -1.50", recs)
	}
}

func TestRunCycle_SameBucketIsIdempotent(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceStore()
	spreads := memory.NewSpreadStore()
	now := time.Date(2025, 3, 10, 12, 0, 1, 0, time.UTC)
	seed(t, prices, now, map[domain.MarketCode]float64{"DE": 60, "FR": 80, "NL": 65})

	calc := newCalc(t, prices, spreads, nil)
	first, err := calc.RunCycle(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := calc.RunCycle(ctx, now.Add(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if first.Inserted != 3 || second.Inserted != 0 || second.Duplicates != 3 {
		t.Errorf("first %+v second %+v, want 3 inserted then 3 duplicates", first, second)
	}
	if got := calc.LastCycle(); got.Duplicates != 3 {
		t.Errorf("LastCycle = %+v", got)
	}
}

func TestRunCycle_RetriesTransientInsert(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceStore()
	spreads := &flakySpreads{SpreadStore: memory.NewSpreadStore(), failed: map[string]bool{}}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, prices, now, map[domain.MarketCode]float64{"DE": 60, "FR": 80, "NL": 65})

	stats, err := newCalc(t, prices, spreads, nil).RunCycle(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inserted != 3 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 3 inserted after retry", stats)
	}
}

func TestRunCycle_HeldLockSkips(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceStore()
	spreads := memory.NewSpreadStore()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, prices, now, map[domain.MarketCode]float64{"DE": 60, "FR": 80})

	calc := NewCalculator(CalculatorConfig{
		Markets: []domain.MarketCode{"DE", "FR"},
		Costs:   defaultCosts(t),
		UseLock: true,
		Locks:   heldLocks{},
		Prices:  prices,
		Spreads: spreads,
		Logger:  quiet,
	})
	stats, err := calc.RunCycle(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Skipped {
		t.Error("cycle not skipped while lock held")
	}
	if n, _ := spreads.MaxID(ctx); n != 0 {
		t.Errorf("stored %d spreads while skipped", n)
	}
}

func TestRunCycle_SingleMarketProducesNothing(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceStore()
	spreads := memory.NewSpreadStore()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, prices, now, map[domain.MarketCode]float64{"DE": 60})

	stats, err := newCalc(t, prices, spreads, nil).RunCycle(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pairs != 0 {
		t.Errorf("pairs = %d, want 0", stats.Pairs)
	}
}
