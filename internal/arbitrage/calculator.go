package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/retry"
)

// CalculatorConfig configures the spread calculator.
type CalculatorConfig struct {
	Markets       []domain.MarketCode
	Costs         CostTable
	Lookback      time.Duration
	Bucket        time.Duration
	InsertTimeout time.Duration
	Retry         retry.Policy
	UseLock       bool
	LockTTL       time.Duration

	Prices  domain.PriceStore
	Spreads domain.SpreadStore
	Bus     domain.SignalBus   // optional
	Locks   domain.LockManager // optional
	Logger  *slog.Logger
}

// CycleStats summarises one calculator cycle.
type CycleStats struct {
	Bucket     time.Time           `json:"bucket"`
	Markets    int                 `json:"markets"`
	Missing    []domain.MarketCode `json:"missing,omitempty"`
	Pairs      int                 `json:"pairs"`
	Inserted   int                 `json:"inserted"`
	Duplicates int                 `json:"duplicates"`
	Failed     int                 `json:"failed"`
	Profitable int                 `json:"profitable"`
	BestPair   string              `json:"best_pair,omitempty"`
	BestNet    string              `json:"best_net,omitempty"`
	Skipped    bool                `json:"skipped,omitempty"`
}

// Calculator reads the latest price per market, computes all pairwise spreads
// and persists them. It has no scheduling of its own; callers drive RunCycle.
type Calculator struct {
	cfg    CalculatorConfig
	logger *slog.Logger

	mu   sync.Mutex
	last CycleStats
}

// NewCalculator creates a calculator.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	if cfg.Bucket <= 0 {
		cfg.Bucket = 10 * time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 5 * time.Minute
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Bucket
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Calculator{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "spread_calculator")),
	}
}

// spreadsEvent is the JSON shape published to the spreads channel.
type spreadsEvent struct {
	Bucket   string `json:"bucket"`
	Inserted int    `json:"inserted"`
}

// RunCycle performs one calculation for the bucket containing now. Only a
// failure to read prices is returned; per-pair failures are counted.
func (c *Calculator) RunCycle(ctx context.Context, now time.Time) (CycleStats, error) {
	stats := CycleStats{Bucket: now.UTC().Truncate(c.cfg.Bucket)}

	if c.cfg.UseLock && c.cfg.Locks != nil {
		unlock, err := c.cfg.Locks.Acquire(ctx, "calculator:"+stats.Bucket.Format(time.RFC3339), c.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			c.logger.DebugContext(ctx, "cycle owned by another replica", slog.Time("bucket", stats.Bucket))
			stats.Skipped = true
			c.record(stats)
			return stats, nil
		case err != nil:
			c.logger.WarnContext(ctx, "lock unavailable, running unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	obs, err := c.cfg.Prices.LatestPerMarket(ctx, c.cfg.Markets, now.Add(-c.cfg.Lookback))
	if err != nil {
		return stats, fmt.Errorf("arbitrage: read latest prices: %w", err)
	}
	obs, missing := c.filter(obs)
	stats.Markets = len(obs)
	stats.Missing = missing
	if len(missing) > 0 {
		perr := &domain.PartialMarketDataError{Missing: missing}
		c.logger.WarnContext(ctx, "partial market data", slog.String("error", perr.Error()))
	}

	records := ComputeSpreads(obs, c.cfg.Costs, stats.Bucket)
	best := 0
	stats.Pairs = len(records)
	for i, rec := range records {
		if rec.Profitable() {
			stats.Profitable++
		}
		if i == 0 || rec.NetOpportunity.GreaterThan(records[best].NetOpportunity) {
			best = i
		}

		inserted, err := c.insert(ctx, rec)
		switch {
		case err != nil:
			stats.Failed++
			c.logger.ErrorContext(ctx, "spread insert failed",
				slog.String("pair", rec.MarketPair.String()),
				slog.String("error", err.Error()),
			)
		case inserted:
			stats.Inserted++
		default:
			stats.Duplicates++
		}
	}

	if len(records) > 0 {
		stats.BestPair = records[best].MarketPair.String()
		stats.BestNet = records[best].NetOpportunity.StringFixed(2)
	}
	if stats.Inserted > 0 {
		c.announce(ctx, stats)
	}

	c.logger.InfoContext(ctx, "spread cycle complete",
		slog.Time("bucket", stats.Bucket),
		slog.Int("markets", stats.Markets),
		slog.Int("pairs", stats.Pairs),
		slog.Int("inserted", stats.Inserted),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("failed", stats.Failed),
		slog.Int("profitable", stats.Profitable),
		slog.String("best_pair", stats.BestPair),
		slog.String("best_net", stats.BestNet),
	)
	c.record(stats)
	return stats, nil
}

// LastCycle returns the stats of the most recent cycle.
func (c *Calculator) LastCycle() CycleStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Calculator) record(stats CycleStats) {
	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()
}

// filter keeps observations of configured markets and lists the configured
// markets that are absent.
func (c *Calculator) filter(obs []domain.PriceObservation) ([]domain.PriceObservation, []domain.MarketCode) {
	present := make(map[domain.MarketCode]bool, len(obs))
	kept := obs[:0:0]
	for _, o := range obs {
		if !c.configured(o.Market) {
			continue
		}
		present[o.Market] = true
		kept = append(kept, o)
	}
	var missing []domain.MarketCode
	for _, m := range c.cfg.Markets {
		if !present[m] {
			missing = append(missing, m)
		}
	}
	return kept, missing
}

func (c *Calculator) configured(m domain.MarketCode) bool {
	for _, cm := range c.cfg.Markets {
		if cm == m {
			return true
		}
	}
	return false
}

// insert persists one record on a context detached from shutdown so a cycle
// in progress finishes its writes.
func (c *Calculator) insert(ctx context.Context, rec domain.SpreadRecord) (bool, error) {
	var inserted bool
	err := retry.Do(ctx, c.cfg.Retry, domain.IsTransient, func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.InsertTimeout)
		defer cancel()
		ok, err := c.cfg.Spreads.Insert(wctx, rec)
		if err != nil {
			return &domain.TransientStoreError{Op: "insert spread " + rec.MarketPair.String(), Err: err}
		}
		inserted = ok
		return nil
	})
	return inserted, err
}

func (c *Calculator) announce(ctx context.Context, stats CycleStats) {
	if c.cfg.Bus == nil {
		return
	}
	payload, err := json.Marshal(spreadsEvent{
		Bucket:   stats.Bucket.Format(time.RFC3339Nano),
		Inserted: stats.Inserted,
	})
	if err != nil {
		return
	}
	if err := c.cfg.Bus.Publish(ctx, domain.ChannelSpreads, payload); err != nil {
		c.logger.WarnContext(ctx, "publish spreads announcement failed", slog.String("error", err.Error()))
	}
}
