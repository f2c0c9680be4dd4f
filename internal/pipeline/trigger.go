package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// Trigger decides when a loop runs its next cycle. Wait blocks until the
// next cycle is due and returns the instant it fired.
type Trigger interface {
	Wait(ctx context.Context) (time.Time, error)
}

// IntervalTrigger fires immediately, then on every interval.
type IntervalTrigger struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewIntervalTrigger returns a trigger with the given period.
func NewIntervalTrigger(interval time.Duration) *IntervalTrigger {
	return &IntervalTrigger{interval: interval}
}

// Wait implements Trigger.
func (t *IntervalTrigger) Wait(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if t.ticker == nil {
		t.ticker = time.NewTicker(t.interval)
		return time.Now(), nil
	}
	select {
	case <-ctx.Done():
		t.ticker.Stop()
		return time.Time{}, ctx.Err()
	case now := <-t.ticker.C:
		return now, nil
	}
}

// SignalTrigger fires when a message arrives on a pub/sub channel, or after
// fallback has passed without one. A burst of messages collapses into a
// single firing. If the subscription cannot be made the trigger degrades to
// the fallback interval.
type SignalTrigger struct {
	bus      domain.SignalBus
	channel  string
	fallback time.Duration
	logger   *slog.Logger

	started bool
	msgs    <-chan []byte
}

// NewSignalTrigger subscribes lazily on the first Wait.
func NewSignalTrigger(bus domain.SignalBus, channel string, fallback time.Duration, logger *slog.Logger) *SignalTrigger {
	return &SignalTrigger{
		bus:      bus,
		channel:  channel,
		fallback: fallback,
		logger:   logger.With(slog.String("trigger", channel)),
	}
}

// Wait implements Trigger.
func (t *SignalTrigger) Wait(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if !t.started {
		t.started = true
		msgs, err := t.bus.Subscribe(ctx, t.channel)
		if err != nil {
			t.logger.WarnContext(ctx, "subscribe failed, using fallback interval only",
				slog.String("error", err.Error()),
				slog.Duration("fallback", t.fallback),
			)
		}
		t.msgs = msgs
		return time.Now(), nil
	}

	timer := time.NewTimer(t.fallback)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case now := <-timer.C:
		return now, nil
	case _, ok := <-t.msgs:
		if !ok {
			t.logger.WarnContext(ctx, "subscription closed, using fallback interval only")
			t.msgs = nil
			return time.Now(), nil
		}
		t.drain()
		return time.Now(), nil
	}
}

func (t *SignalTrigger) drain() {
	for {
		select {
		case _, ok := <-t.msgs:
			if !ok {
				t.msgs = nil
				return
			}
		default:
			return
		}
	}
}

// StreamTrigger polls a Redis stream and fires when new entries have been
// appended since the last firing, or after fallback has passed without any.
// Entries already in the stream when the trigger starts are skipped.
type StreamTrigger struct {
	bus      domain.SignalBus
	stream   string
	poll     time.Duration
	fallback time.Duration
	batch    int
	logger   *slog.Logger

	started   bool
	lastID    string
	lastFired time.Time
}

// NewStreamTrigger polls stream every poll interval. A non-positive poll
// uses one second.
func NewStreamTrigger(bus domain.SignalBus, stream string, poll, fallback time.Duration, logger *slog.Logger) *StreamTrigger {
	if poll <= 0 {
		poll = time.Second
	}
	return &StreamTrigger{
		bus:      bus,
		stream:   stream,
		poll:     poll,
		fallback: fallback,
		batch:    100,
		logger:   logger.With(slog.String("trigger", "stream:"+stream)),
		lastID:   "0",
	}
}

// Wait implements Trigger.
func (t *StreamTrigger) Wait(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if !t.started {
		t.started = true
		if _, err := t.advance(ctx); err != nil {
			t.logger.WarnContext(ctx, "stream read failed", slog.String("error", err.Error()))
		}
		t.lastFired = time.Now()
		return t.lastFired, nil
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case now := <-ticker.C:
			n, err := t.advance(ctx)
			if err != nil {
				t.logger.WarnContext(ctx, "stream read failed", slog.String("error", err.Error()))
			}
			if n > 0 || (t.fallback > 0 && now.Sub(t.lastFired) >= t.fallback) {
				t.lastFired = now
				return now, nil
			}
		}
	}
}

// advance reads the stream to its end and reports how many entries it
// passed.
func (t *StreamTrigger) advance(ctx context.Context) (int, error) {
	total := 0
	for {
		msgs, err := t.bus.StreamRead(ctx, t.stream, t.lastID, t.batch)
		if err != nil {
			return total, err
		}
		if len(msgs) > 0 {
			t.lastID = msgs[len(msgs)-1].ID
			total += len(msgs)
		}
		if len(msgs) < t.batch {
			return total, nil
		}
	}
}

// RunLoop calls fn each time trig fires until ctx is done. Errors from fn
// are logged and do not stop the loop.
func RunLoop(ctx context.Context, name string, trig Trigger, logger *slog.Logger, fn func(ctx context.Context, now time.Time) error) error {
	logger = logger.With(slog.String("loop", name))
	logger.InfoContext(ctx, "loop started")
	defer logger.Info("loop stopped")

	for {
		now, err := trig.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(ctx, now); err != nil {
			logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
		}
	}
}
