package arbitrage

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// DefaultTransmissionCosts returns the built-in cross-border cost table in
// EUR/MWh, keyed "LOW-HIGH".
func DefaultTransmissionCosts() map[string]float64 {
	return map[string]float64{
		"DE-FR": 2.50,
		"DE-NL": 1.50,
		"DE-DK": 3.00,
		"DE-BE": 2.00,
		"FR-NL": 2.00,
		"FR-BE": 1.50,
		"FR-DK": 4.00,
		"NL-BE": 1.00,
		"NL-DK": 3.50,
		"BE-DK": 3.50,
		"AT-DE": 1.50,
		"AT-FR": 3.00,
		"AT-NL": 3.00,
		"AT-BE": 2.50,
	}
}

// CostTable prices moving energy from a low market to a high market.
type CostTable struct {
	costs map[string]decimal.Decimal
	def   decimal.Decimal
}

// NewCostTable converts a configured "FROM-TO" cost map. def is charged for
// pairs that appear in neither direction.
func NewCostTable(costs map[string]float64, def float64) (CostTable, error) {
	if def < 0 {
		return CostTable{}, fmt.Errorf("arbitrage: default transmission cost %.2f is negative", def)
	}
	t := CostTable{
		costs: make(map[string]decimal.Decimal, len(costs)),
		def:   decimal.NewFromFloat(def),
	}
	keys := make([]string, 0, len(costs))
	for k := range costs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := domain.ParseMarketPair(k); !ok {
			return CostTable{}, fmt.Errorf("arbitrage: transmission cost key %q is not FROM-TO", k)
		}
		if costs[k] < 0 {
			return CostTable{}, fmt.Errorf("arbitrage: transmission cost %s is negative", k)
		}
		t.costs[k] = decimal.NewFromFloat(costs[k])
	}
	return t, nil
}

// Cost returns the charge for buying in low and selling in high. The
// directional entry wins, then the reverse entry, then the default.
func (t CostTable) Cost(low, high domain.MarketCode) decimal.Decimal {
	if c, ok := t.costs[string(low)+"-"+string(high)]; ok {
		return c
	}
	if c, ok := t.costs[string(high)+"-"+string(low)]; ok {
		return c
	}
	return t.def
}
