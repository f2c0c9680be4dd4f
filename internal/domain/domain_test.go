package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewMarketPair_Canonical(t *testing.T) {
	a := NewMarketPair("FR", "DE")
	b := NewMarketPair("DE", "FR")
	if a != b || a.String() != "DE-FR" {
		t.Errorf("pairs %v and %v, want both DE-FR", a, b)
	}
	if !a.Contains("FR") || a.Contains("NL") {
		t.Error("Contains mismatch")
	}
}

func TestParseMarketPair(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"DE-FR", "DE-FR", true},
		{"FR-DE", "DE-FR", true},
		{"DE-DE", "", false},
		{"DEFR", "", false},
		{"-FR", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseMarketPair(tt.in)
		if ok != tt.ok || (ok && got.String() != tt.want) {
			t.Errorf("ParseMarketPair(%q) = %v, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMarketPair_JSON(t *testing.T) {
	raw, err := json.Marshal(SpreadRecord{MarketPair: NewMarketPair("NL", "BE")})
	if err != nil {
		t.Fatal(err)
	}
	var back struct {
		MarketPair MarketPair `json:"market_pair"`
	}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.MarketPair.String() != "BE-NL" {
		t.Errorf("round trip = %s, want BE-NL", back.MarketPair)
	}
}

func TestNewPriceObservation(t *testing.T) {
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	obs, err := NewPriceObservation("DE", ts, 60.005)
	if err != nil {
		t.Fatal(err)
	}
	if obs.Timestamp.Location() != time.UTC {
		t.Error("timestamp not normalised to UTC")
	}
	if obs.Price.StringFixed(2) != "60.01" && obs.Price.StringFixed(2) != "60.00" {
		t.Errorf("price = %s, want cents", obs.Price)
	}

	bad := []struct {
		name   string
		market MarketCode
		ts     time.Time
		price  float64
	}{
		{"empty market", "", ts, 1},
		{"zero time", "DE", time.Time{}, 1},
		{"nan", "DE", ts, math.NaN()},
		{"inf", "DE", ts, math.Inf(1)},
		{"negative", "DE", ts, -0.01},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceObservation(tt.market, tt.ts, tt.price)
			var pe *PermanentValidationError
			if !errors.As(err, &pe) {
				t.Errorf("err = %v, want PermanentValidationError", err)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := ParsePriority(" medium "); err != nil || p != PriorityMedium {
		t.Errorf("ParsePriority = %v, %v", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("unknown priority accepted")
	}
}

func TestErrorClassification(t *testing.T) {
	te := &TransientStoreError{Op: "insert", Err: ErrDuplicate}
	if !IsTransient(te) || IsPermanent(te) || !errors.Is(te, ErrDuplicate) {
		t.Error("transient classification wrong")
	}
	pe := &PermanentValidationError{Market: "DE", Reason: "negative price"}
	if IsTransient(pe) || !IsPermanent(pe) {
		t.Error("permanent classification wrong")
	}
	pm := &PartialMarketDataError{Missing: []MarketCode{"NL", "BE"}}
	if pm.Error() != "no recent price for markets: NL, BE" {
		t.Errorf("partial message = %q", pm.Error())
	}
}
