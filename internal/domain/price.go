package domain

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MarketCode identifies a bidding zone, e.g. "DE" or "FR".
type MarketCode string

// PriceObservation is one price sample for a market at an instant. It is
// unique by (Market, Timestamp) and never mutated once written.
type PriceObservation struct {
	Market    MarketCode      `json:"market"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// NewPriceObservation builds an observation from a raw float price as a feed
// adapter would receive it. Prices are rounded to cents.
func NewPriceObservation(market MarketCode, ts time.Time, price float64) (PriceObservation, error) {
	switch {
	case market == "":
		return PriceObservation{}, &PermanentValidationError{Market: market, Reason: "empty market code"}
	case ts.IsZero():
		return PriceObservation{}, &PermanentValidationError{Market: market, Reason: "zero timestamp"}
	case math.IsNaN(price) || math.IsInf(price, 0):
		return PriceObservation{}, &PermanentValidationError{Market: market, Reason: "non-finite price"}
	case price < 0:
		return PriceObservation{}, &PermanentValidationError{Market: market, Reason: "negative price"}
	}
	return PriceObservation{
		Market:    market,
		Timestamp: ts.UTC(),
		Price:     decimal.NewFromFloat(price).Round(2),
	}, nil
}

// MarketState is the simulator's private per-market random-walk state.
type MarketState struct {
	Market    MarketCode
	BasePrice float64
	LastPrice float64
	Trend     float64
}

// PriceSource yields the next observation for a market. The simulator and any
// real feed adapter implement it.
type PriceSource interface {
	Next(ctx context.Context, market MarketCode, now time.Time) (PriceObservation, error)
}
