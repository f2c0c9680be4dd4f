package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/retry"
)

// Threshold maps a minimum net opportunity to a priority.
type Threshold struct {
	Priority          domain.Priority
	MinNetOpportunity decimal.Decimal
}

// DefaultThresholds returns HIGH >= 20, MEDIUM >= 10, LOW >= 5 EUR/MWh.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Priority: domain.PriorityHigh, MinNetOpportunity: decimal.NewFromInt(20)},
		{Priority: domain.PriorityMedium, MinNetOpportunity: decimal.NewFromInt(10)},
		{Priority: domain.PriorityLow, MinNetOpportunity: decimal.NewFromInt(5)},
	}
}

// AlertNotifier receives every newly stored alert.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, a domain.Alert) error
}

// AlertConfig configures the evaluator.
type AlertConfig struct {
	Thresholds        []Threshold
	SuppressionWindow time.Duration
	BatchSize         int
	Now               func() time.Time

	// Retry bounds the attempts on one spread while its errors are
	// transient. Zero uses retry.DefaultPolicy.
	Retry retry.Policy
}

// EvalStats summarises one evaluation pass.
type EvalStats struct {
	Evaluated  int   `json:"evaluated"`
	Raised     int   `json:"raised"`
	Suppressed int   `json:"suppressed"`
	Failed     int   `json:"failed"`
	Cursor     int64 `json:"cursor"`
}

// AlertEvaluator turns newly persisted spreads into prioritised alerts. It
// tracks the last spread id it has seen, so each spread is evaluated once per
// process. The cursor relies on spread ids committing in order, which holds
// for a single calculator or several behind the calculator lock.
type AlertEvaluator struct {
	spreads  domain.SpreadStore
	alerts   domain.AlertStore
	audit    domain.AuditStore
	notifier AlertNotifier
	cfg      AlertConfig
	logger   *slog.Logger

	mu      sync.Mutex
	cursor  int64
	started bool
	last    EvalStats
}

// NewAlertEvaluator creates an evaluator. audit and notifier may be nil.
func NewAlertEvaluator(
	spreads domain.SpreadStore,
	alerts domain.AlertStore,
	audit domain.AuditStore,
	notifier AlertNotifier,
	cfg AlertConfig,
	logger *slog.Logger,
) *AlertEvaluator {
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = DefaultThresholds()
	}
	cfg.Thresholds = append([]Threshold(nil), cfg.Thresholds...)
	sort.SliceStable(cfg.Thresholds, func(i, j int) bool {
		return cfg.Thresholds[i].MinNetOpportunity.GreaterThan(cfg.Thresholds[j].MinNetOpportunity)
	})
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AlertEvaluator{
		spreads:  spreads,
		alerts:   alerts,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "alert_evaluator")),
	}
}

// Classify returns the highest priority whose threshold net meets.
func (e *AlertEvaluator) Classify(net decimal.Decimal) (domain.Priority, bool) {
	for _, t := range e.cfg.Thresholds {
		if net.GreaterThanOrEqual(t.MinNetOpportunity) {
			return t.Priority, true
		}
	}
	return "", false
}

// Start positions the cursor after the newest existing spread so history is
// not re-alerted on restart.
func (e *AlertEvaluator) Start(ctx context.Context) error {
	id, err := e.spreads.MaxID(ctx)
	if err != nil {
		return fmt.Errorf("alert evaluator: read cursor: %w", err)
	}
	e.mu.Lock()
	e.cursor = id
	e.started = true
	e.mu.Unlock()
	e.logger.InfoContext(ctx, "alert evaluator positioned", slog.Int64("cursor", id))
	return nil
}

// RunCycle evaluates every spread after the cursor. A spread whose evaluation
// still fails after its retries is logged, counted as failed and skipped, so
// one bad pair never holds back the others. Only a failed listing or a
// cancelled context ends the cycle early.
func (e *AlertEvaluator) RunCycle(ctx context.Context) (EvalStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return EvalStats{}, fmt.Errorf("alert evaluator: RunCycle before Start")
	}

	var stats EvalStats
	for {
		batch, err := e.spreads.ListAfter(ctx, e.cursor, e.cfg.BatchSize)
		if err != nil {
			stats.Cursor = e.cursor
			return stats, fmt.Errorf("alert evaluator: list spreads: %w", err)
		}
		for _, rec := range batch {
			var result outcome
			err := retry.Do(ctx, e.cfg.Retry, domain.IsTransient, func(ctx context.Context) error {
				var err error
				result, err = e.evaluate(ctx, rec)
				return err
			})
			if err != nil && ctx.Err() != nil {
				stats.Cursor = e.cursor
				e.last = stats
				return stats, fmt.Errorf("alert evaluator: %w", ctx.Err())
			}
			if err != nil {
				stats.Failed++
				e.logger.ErrorContext(ctx, "spread evaluation failed, skipping",
					slog.Int64("spread_id", rec.ID),
					slog.String("pair", rec.MarketPair.String()),
					slog.String("error", err.Error()),
				)
				e.cursor = rec.ID
				continue
			}
			stats.Evaluated++
			switch result {
			case outcomeRaised:
				stats.Raised++
			case outcomeSuppressed:
				stats.Suppressed++
			}
			e.cursor = rec.ID
		}
		if len(batch) < e.cfg.BatchSize {
			break
		}
	}
	stats.Cursor = e.cursor
	e.last = stats
	if stats.Evaluated > 0 || stats.Failed > 0 {
		e.logger.InfoContext(ctx, "alert cycle complete",
			slog.Int("evaluated", stats.Evaluated),
			slog.Int("raised", stats.Raised),
			slog.Int("suppressed", stats.Suppressed),
			slog.Int("failed", stats.Failed),
			slog.Int64("cursor", stats.Cursor),
		)
	}
	return stats, nil
}

// LastCycle returns the stats of the most recent pass.
func (e *AlertEvaluator) LastCycle() EvalStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

type outcome int

const (
	outcomeBelow outcome = iota
	outcomeSuppressed
	outcomeRaised
)

func (e *AlertEvaluator) evaluate(ctx context.Context, rec domain.SpreadRecord) (outcome, error) {
	priority, ok := e.Classify(rec.NetOpportunity)
	if !ok {
		return outcomeBelow, nil
	}

	now := e.cfg.Now().UTC()
	open, err := e.alerts.HasUnacknowledged(ctx, rec.MarketPair, now.Add(-e.cfg.SuppressionWindow))
	if err != nil {
		return outcomeBelow, fmt.Errorf("alert evaluator: check open alerts %s: %w", rec.MarketPair, err)
	}
	if open {
		e.logger.DebugContext(ctx, "alert suppressed",
			slog.String("pair", rec.MarketPair.String()),
			slog.String("priority", string(priority)),
		)
		return outcomeSuppressed, nil
	}

	a := domain.Alert{
		ID:             uuid.NewString(),
		MarketPair:     rec.MarketPair,
		Spread:         rec.Spread,
		NetOpportunity: rec.NetOpportunity,
		Priority:       priority,
		Message:        AlertMessage(rec),
		CreatedAt:      now,
	}
	if err := e.alerts.Insert(ctx, a); err != nil {
		return outcomeBelow, fmt.Errorf("alert evaluator: insert alert %s: %w", rec.MarketPair, err)
	}

	e.logger.InfoContext(ctx, "alert raised",
		slog.String("alert_id", a.ID),
		slog.String("pair", a.MarketPair.String()),
		slog.String("priority", string(a.Priority)),
		slog.String("net_opportunity", a.NetOpportunity.StringFixed(2)),
	)

	if e.audit != nil {
		if err := e.audit.Log(ctx, "alert_created", map[string]any{
			"alert_id":        a.ID,
			"spread_id":       rec.ID,
			"market_pair":     a.MarketPair.String(),
			"priority":        string(a.Priority),
			"net_opportunity": a.NetOpportunity.StringFixed(2),
		}); err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("alert_id", a.ID), slog.String("error", err.Error()))
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyAlert(ctx, a); err != nil {
			e.logger.WarnContext(ctx, "alert notification failed", slog.String("alert_id", a.ID), slog.String("error", err.Error()))
		}
	}
	return outcomeRaised, nil
}

// AlertMessage renders the human-readable trade suggestion for rec.
func AlertMessage(rec domain.SpreadRecord) string {
	return fmt.Sprintf("Buy %s at €%s/MWh, sell %s at €%s/MWh: spread €%s, net €%s after €%s transmission",
		rec.LowMarket, rec.LowPrice.StringFixed(2),
		rec.HighMarket, rec.HighPrice.StringFixed(2),
		rec.Spread.StringFixed(2), rec.NetOpportunity.StringFixed(2),
		rec.TransmissionCost.StringFixed(2),
	)
}
