package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate key")
	ErrUnknownMarket = errors.New("unknown market")
	ErrLockHeld      = errors.New("lock already held")
)

// TransientStoreError wraps a storage failure that may succeed on retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error: %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// PermanentValidationError marks an observation that will never be accepted.
type PermanentValidationError struct {
	Market MarketCode
	Reason string
}

func (e *PermanentValidationError) Error() string {
	if e.Market == "" {
		return "invalid observation: " + e.Reason
	}
	return fmt.Sprintf("invalid observation for %s: %s", e.Market, e.Reason)
}

// PartialMarketDataError lists markets that had no observation inside the
// calculator's lookback window. It is reported, never fatal.
type PartialMarketDataError struct {
	Missing []MarketCode
}

func (e *PartialMarketDataError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = string(m)
	}
	return "no recent price for markets: " + strings.Join(names, ", ")
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is a validation rejection.
func IsPermanent(err error) bool {
	var pe *PermanentValidationError
	return errors.As(err, &pe)
}
