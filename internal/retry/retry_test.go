package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBackoff_NeverExceedsMax(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("delay stays under max plus jitter", prop.ForAll(
		func(baseMs int, maxMs int, jitterPercent int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			jitter := float64(jitterPercent) / 100.0
			b := NewBackoff(base, max, jitter)

			limit := float64(max) * (1 + jitter)
			for i := 0; i < 80; i++ {
				d := b.Next()
				if d <= 0 || float64(d) > limit {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 2000),
		gen.IntRange(2000, 60000),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}

func TestBackoff_Doubles(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 0)
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if b.Attempt() != 0 {
		t.Errorf("Attempt after Reset = %d, want 0", b.Attempt())
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("after Reset got %v, want 1s", got)
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 4, Base: time.Millisecond, Max: time.Millisecond}, nil,
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Do returned %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, Base: time.Millisecond, Max: time.Millisecond},
		func(err error) bool { return !errors.Is(err, permanent) },
		func(context.Context) error {
			calls++
			return permanent
		})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	flaky := errors.New("flaky")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Base: time.Millisecond, Max: time.Millisecond}, nil,
		func(context.Context) error {
			calls++
			return flaky
		})
	if !errors.Is(err, flaky) {
		t.Fatalf("err = %v, want wrapped %v", err, flaky)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, Base: time.Hour, Max: time.Hour}, nil,
		func(context.Context) error {
			calls++
			cancel()
			return errors.New("flaky")
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
