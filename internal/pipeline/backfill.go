package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// SeriesSource generates a historical series. *simulator.Simulator
// implements it.
type SeriesSource interface {
	Series(ctx context.Context, start time.Time, step time.Duration, n int) ([]domain.PriceObservation, error)
}

const backfillChunk = 1000

// Backfill seeds prices for the hours before end at the given step. Rows
// already present are kept. It returns the number of new rows.
func Backfill(ctx context.Context, src SeriesSource, prices domain.PriceStore, end time.Time, hours int, step time.Duration, logger *slog.Logger) (int64, error) {
	if hours <= 0 || step <= 0 {
		return 0, fmt.Errorf("backfill: hours and step must be positive")
	}
	n := int(time.Duration(hours) * time.Hour / step)
	start := end.UTC().Truncate(step).Add(-time.Duration(n) * step)

	series, err := src.Series(ctx, start, step, n)
	if err != nil {
		return 0, fmt.Errorf("backfill: generate series: %w", err)
	}

	var inserted int64
	for i := 0; i < len(series); i += backfillChunk {
		j := min(i+backfillChunk, len(series))
		k, err := prices.InsertBatch(ctx, series[i:j])
		inserted += k
		if err != nil {
			return inserted, fmt.Errorf("backfill: insert rows %d-%d: %w", i, j, err)
		}
	}
	logger.InfoContext(ctx, "backfill complete",
		slog.Time("from", start),
		slog.Time("to", end),
		slog.Int("generated", len(series)),
		slog.Int64("inserted", inserted),
	)
	return inserted, nil
}
