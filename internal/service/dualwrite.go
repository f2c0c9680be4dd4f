package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// DualWriteConfig bounds which observations are accepted.
type DualWriteConfig struct {
	Markets  []domain.MarketCode
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
}

// CommitResult reports what happened to one observation.
type CommitResult struct {
	Inserted  bool
	Duplicate bool
	Published bool
}

// DualWriteStore persists an observation durably and then announces it on
// the price stream. The database write is authoritative; the stream is
// best-effort and never rolls the write back.
type DualWriteStore struct {
	prices  domain.PriceStore
	bus     domain.SignalBus
	markets map[domain.MarketCode]bool
	cfg     DualWriteConfig
	logger  *slog.Logger
}

// NewDualWriteStore creates a DualWriteStore. bus may be nil, in which case
// observations are only persisted.
func NewDualWriteStore(prices domain.PriceStore, bus domain.SignalBus, cfg DualWriteConfig, logger *slog.Logger) *DualWriteStore {
	markets := make(map[domain.MarketCode]bool, len(cfg.Markets))
	for _, m := range cfg.Markets {
		markets[m] = true
	}
	return &DualWriteStore{
		prices:  prices,
		bus:     bus,
		markets: markets,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "dual_write")),
	}
}

// priceEvent is the JSON shape published to the prices channel.
type priceEvent struct {
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`
	Price     string `json:"price"`
}

// Commit validates obs, writes it to the price store and publishes it. A
// rejected observation returns *domain.PermanentValidationError; a failed
// write returns *domain.TransientStoreError. Publish failures are logged and
// reported only through CommitResult.Published.
func (s *DualWriteStore) Commit(ctx context.Context, obs domain.PriceObservation) (CommitResult, error) {
	if err := s.validate(obs); err != nil {
		return CommitResult{}, err
	}

	inserted, err := s.prices.Insert(ctx, obs)
	if errors.Is(err, domain.ErrDuplicate) {
		inserted, err = false, nil
	}
	if err != nil {
		return CommitResult{}, &domain.TransientStoreError{Op: "insert price " + string(obs.Market), Err: err}
	}
	if !inserted {
		s.logger.DebugContext(ctx, "observation already stored",
			slog.String("market", string(obs.Market)),
			slog.Time("timestamp", obs.Timestamp),
		)
		return CommitResult{Duplicate: true}, nil
	}

	res := CommitResult{Inserted: true}
	if s.bus == nil {
		return res, nil
	}
	res.Published = s.publish(ctx, obs)
	return res, nil
}

func (s *DualWriteStore) validate(obs domain.PriceObservation) error {
	if len(s.markets) > 0 && !s.markets[obs.Market] {
		return &domain.PermanentValidationError{Market: obs.Market, Reason: "market not configured"}
	}
	if obs.Timestamp.IsZero() {
		return &domain.PermanentValidationError{Market: obs.Market, Reason: "zero timestamp"}
	}
	if obs.Price.LessThan(s.cfg.MinPrice) {
		return &domain.PermanentValidationError{Market: obs.Market,
			Reason: fmt.Sprintf("price %s below %s", obs.Price, s.cfg.MinPrice)}
	}
	if !s.cfg.MaxPrice.IsZero() && obs.Price.GreaterThan(s.cfg.MaxPrice) {
		return &domain.PermanentValidationError{Market: obs.Market,
			Reason: fmt.Sprintf("price %s above %s", obs.Price, s.cfg.MaxPrice)}
	}
	return nil
}

// publish appends to the durable stream and fans out on pub/sub. It returns
// whether the stream append succeeded.
func (s *DualWriteStore) publish(ctx context.Context, obs domain.PriceObservation) bool {
	ev := priceEvent{
		Market:    string(obs.Market),
		Timestamp: obs.Timestamp.UTC().Format(time.RFC3339Nano),
		Price:     obs.Price.StringFixed(2),
	}

	ok := true
	fields := map[string]string{"market": ev.Market, "timestamp": ev.Timestamp, "price": ev.Price}
	if err := s.bus.StreamAppend(ctx, domain.StreamPrices, fields); err != nil {
		ok = false
		s.logger.WarnContext(ctx, "price stream append failed, observation kept in store",
			slog.String("market", ev.Market),
			slog.String("timestamp", ev.Timestamp),
			slog.String("error", err.Error()),
		)
	}

	payload, _ := json.Marshal(ev)
	if err := s.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
		s.logger.WarnContext(ctx, "price publish failed",
			slog.String("market", ev.Market),
			slog.String("error", err.Error()),
		)
	}
	return ok
}
