package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/retry"
	"github.com/alanyoungcy/inthegrid/internal/service"
)

// Committer persists one observation. *service.DualWriteStore implements it.
type Committer interface {
	Commit(ctx context.Context, obs domain.PriceObservation) (service.CommitResult, error)
}

// IngestionConfig configures the ingestion loop.
type IngestionConfig struct {
	Markets       []domain.MarketCode
	Interval      time.Duration
	CommitTimeout time.Duration
	Retry         retry.Policy
}

// TickStats summarises one ingestion tick.
type TickStats struct {
	At          time.Time `json:"at"`
	Committed   int       `json:"committed"`
	Duplicates  int       `json:"duplicates"`
	Rejected    int       `json:"rejected"`
	Failed      int       `json:"failed"`
	Unpublished int       `json:"unpublished"`
}

// Ingestion pulls one observation per market from a PriceSource on every
// tick and commits it. Markets are handled concurrently and independently.
type Ingestion struct {
	source domain.PriceSource
	store  Committer
	cfg    IngestionConfig
	logger *slog.Logger

	mu     sync.Mutex
	last   TickStats
	ticks  int64
	totals TickStats
}

// NewIngestion creates an ingestion loop.
func NewIngestion(source domain.PriceSource, store Committer, cfg IngestionConfig, logger *slog.Logger) *Ingestion {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 5 * time.Second
	}
	return &Ingestion{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ingestion")),
	}
}

// Run ticks until ctx is cancelled. A tick in progress always finishes.
func (in *Ingestion) Run(ctx context.Context) error {
	return RunLoop(ctx, "ingestion", NewIntervalTrigger(in.cfg.Interval), in.logger,
		func(ctx context.Context, now time.Time) error {
			in.Tick(ctx, now)
			return nil
		})
}

// Tick ingests every market for the interval bucket containing now.
func (in *Ingestion) Tick(ctx context.Context, now time.Time) TickStats {
	at := now.UTC().Truncate(in.cfg.Interval)

	var (
		mu    sync.Mutex
		stats = TickStats{At: at}
		g     errgroup.Group
	)
	for _, m := range in.cfg.Markets {
		g.Go(func() error {
			res, err := in.ingestMarket(ctx, m, at)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case domain.IsPermanent(err):
				stats.Rejected++
			case err != nil:
				stats.Failed++
			case res.Duplicate:
				stats.Duplicates++
			default:
				stats.Committed++
				if !res.Published {
					stats.Unpublished++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	in.logger.DebugContext(ctx, "tick complete",
		slog.Time("at", at),
		slog.Int("committed", stats.Committed),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("rejected", stats.Rejected),
		slog.Int("failed", stats.Failed),
	)
	in.record(stats)
	return stats
}

func (in *Ingestion) ingestMarket(ctx context.Context, m domain.MarketCode, at time.Time) (service.CommitResult, error) {
	log := in.logger.With(slog.String("market", string(m)))

	obs, err := in.source.Next(ctx, m, at)
	if err != nil {
		log.ErrorContext(ctx, "price source failed", slog.String("error", err.Error()))
		return service.CommitResult{}, err
	}

	var res service.CommitResult
	err = retry.Do(ctx, in.cfg.Retry, domain.IsTransient, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.cfg.CommitTimeout)
		defer cancel()
		var cerr error
		res, cerr = in.store.Commit(cctx, obs)
		return cerr
	})

	var pe *domain.PermanentValidationError
	switch {
	case errors.As(err, &pe):
		log.WarnContext(ctx, "observation rejected",
			slog.String("price", obs.Price.String()),
			slog.String("reason", pe.Reason),
		)
	case err != nil:
		log.ErrorContext(ctx, "commit failed", slog.String("error", err.Error()))
	}
	return res, err
}

func (in *Ingestion) record(s TickStats) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.last = s
	in.ticks++
	in.totals.At = s.At
	in.totals.Committed += s.Committed
	in.totals.Duplicates += s.Duplicates
	in.totals.Rejected += s.Rejected
	in.totals.Failed += s.Failed
	in.totals.Unpublished += s.Unpublished
}

// LastTick returns the stats of the most recent tick.
func (in *Ingestion) LastTick() TickStats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.last
}

// Totals returns the tick count and cumulative counters since start.
func (in *Ingestion) Totals() (int64, TickStats) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ticks, in.totals
}
