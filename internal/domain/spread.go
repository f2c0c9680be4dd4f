package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketPair is an unordered pair of distinct markets. Use NewMarketPair to
// obtain the canonical form (A sorts before B).
type MarketPair struct {
	A MarketCode
	B MarketCode
}

// NewMarketPair returns the canonical pair for x and y.
func NewMarketPair(x, y MarketCode) MarketPair {
	if y < x {
		x, y = y, x
	}
	return MarketPair{A: x, B: y}
}

// ParseMarketPair parses the "A-B" form written to the spreads table.
func ParseMarketPair(s string) (MarketPair, bool) {
	a, b, ok := strings.Cut(s, "-")
	if !ok || a == "" || b == "" || a == b {
		return MarketPair{}, false
	}
	return NewMarketPair(MarketCode(a), MarketCode(b)), true
}

// String returns the "A-B" form.
func (p MarketPair) String() string {
	return string(p.A) + "-" + string(p.B)
}

// MarshalText renders the pair as "A-B".
func (p MarketPair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses "A-B" into canonical form.
func (p *MarketPair) UnmarshalText(b []byte) error {
	mp, ok := ParseMarketPair(string(b))
	if !ok {
		return fmt.Errorf("invalid market pair %q", b)
	}
	*p = mp
	return nil
}

// Contains reports whether m is one side of the pair.
func (p MarketPair) Contains(m MarketCode) bool {
	return p.A == m || p.B == m
}

// SpreadRecord is the computed spread between two markets for one calculator
// cycle. Spread = HighPrice - LowPrice >= 0 and NetOpportunity = Spread -
// TransmissionCost, which may be negative.
type SpreadRecord struct {
	ID               int64           `json:"id,omitempty"`
	MarketPair       MarketPair      `json:"market_pair"`
	Timestamp        time.Time       `json:"timestamp"`
	Spread           decimal.Decimal `json:"spread"`
	NetOpportunity   decimal.Decimal `json:"net_opportunity"`
	TransmissionCost decimal.Decimal `json:"transmission_cost"`
	LowMarket        MarketCode      `json:"low_market"`
	LowPrice         decimal.Decimal `json:"low_price"`
	HighMarket       MarketCode      `json:"high_market"`
	HighPrice        decimal.Decimal `json:"high_price"`
}

// Profitable reports whether the spread covers its transmission cost.
func (r SpreadRecord) Profitable() bool {
	return r.NetOpportunity.IsPositive()
}
