package arbitrage

import (
	"sort"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// Pairs returns every unordered pair of distinct markets in canonical form,
// sorted. Duplicate codes are ignored.
func Pairs(markets []domain.MarketCode) []domain.MarketPair {
	uniq := make([]domain.MarketCode, 0, len(markets))
	seen := make(map[domain.MarketCode]struct{}, len(markets))
	for _, m := range markets {
		if _, ok := seen[m]; ok || m == "" {
			continue
		}
		seen[m] = struct{}{}
		uniq = append(uniq, m)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	pairs := make([]domain.MarketPair, 0, len(uniq)*(len(uniq)-1)/2)
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			pairs = append(pairs, domain.MarketPair{A: uniq[i], B: uniq[j]})
		}
	}
	return pairs
}

// ComputeSpread builds the record for two observations of different markets.
// On a price tie the canonical first market is reported as low.
func ComputeSpread(x, y domain.PriceObservation, costs CostTable, ts time.Time) domain.SpreadRecord {
	pair := domain.NewMarketPair(x.Market, y.Market)
	low, high := x, y
	if low.Market != pair.A {
		low, high = y, x
	}
	if high.Price.LessThan(low.Price) {
		low, high = high, low
	}

	spread := high.Price.Sub(low.Price)
	cost := costs.Cost(low.Market, high.Market)
	return domain.SpreadRecord{
		MarketPair:       pair,
		Timestamp:        ts,
		Spread:           spread,
		NetOpportunity:   spread.Sub(cost),
		TransmissionCost: cost,
		LowMarket:        low.Market,
		LowPrice:         low.Price,
		HighMarket:       high.Market,
		HighPrice:        high.Price,
	}
}

// ComputeSpreads returns one record per pair of markets present in obs. If a
// market appears more than once the latest observation is used.
func ComputeSpreads(obs []domain.PriceObservation, costs CostTable, ts time.Time) []domain.SpreadRecord {
	latest := make(map[domain.MarketCode]domain.PriceObservation, len(obs))
	markets := make([]domain.MarketCode, 0, len(obs))
	for _, o := range obs {
		cur, ok := latest[o.Market]
		if !ok {
			markets = append(markets, o.Market)
		}
		if !ok || o.Timestamp.After(cur.Timestamp) {
			latest[o.Market] = o
		}
	}

	pairs := Pairs(markets)
	out := make([]domain.SpreadRecord, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ComputeSpread(latest[p.A], latest[p.B], costs, ts))
	}
	return out
}
