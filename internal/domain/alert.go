package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Priority ranks how actionable an alert is.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority accepts the priority names case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Alert is raised when a spread's net opportunity crosses a priority
// threshold. It copies the spread values rather than referencing the row.
// Acknowledged only ever moves false -> true, and only by an operator.
type Alert struct {
	ID             string          `json:"id"`
	MarketPair     MarketPair      `json:"market_pair"`
	Spread         decimal.Decimal `json:"spread"`
	NetOpportunity decimal.Decimal `json:"net_opportunity"`
	Priority       Priority        `json:"priority"`
	Message        string          `json:"message"`
	Acknowledged   bool            `json:"acknowledged"`
	CreatedAt      time.Time       `json:"created_at"`
}
