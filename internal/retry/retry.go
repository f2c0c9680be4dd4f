package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      float64
}

// DefaultPolicy is used when a caller leaves its policy zero.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Base:        200 * time.Millisecond,
	Max:         2 * time.Second,
	Jitter:      0.2,
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempt budget is spent. The last error is returned wrapped with the
// attempt count. A nil retryable retries every error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p = DefaultPolicy
	}
	b := NewBackoff(p.Base, p.Max, p.Jitter)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("retry: gave up after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(b.Next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
