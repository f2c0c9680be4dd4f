// Package retry provides bounded exponential backoff for transient store
// failures.
package retry

import (
	"math/rand/v2"
	"time"
)

// Backoff computes exponentially growing delays capped at max, with an
// optional +/- jitter fraction applied after the cap.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	jitter  float64
	attempt int
}

// NewBackoff returns a calculator starting at base.
func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, jitter: jitter}
}

// Next returns the delay before the next attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	delay := b.max
	if b.attempt < 63 && b.base <= b.max>>b.attempt {
		delay = b.base << b.attempt
	}

	if b.jitter > 0 {
		factor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}

	b.attempt++
	return delay
}

// Reset starts the sequence over from base.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns how many delays have been handed out.
func (b *Backoff) Attempt() int {
	return b.attempt
}
