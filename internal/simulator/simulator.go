// Package simulator generates synthetic day-ahead electricity prices as a
// mean-reverting random walk with time-of-day shape and cross-market
// correlation.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// MarketConfig describes one simulated market. Nil Floor/Ceiling fall back
// to the global bounds.
type MarketConfig struct {
	Code       domain.MarketCode
	BasePrice  float64
	Volatility float64
	Floor      *float64
	Ceiling    *float64
}

// Correlation makes Follower's perturbation share Driver's draw with the
// given weight in [0, 1].
type Correlation struct {
	Driver   domain.MarketCode
	Follower domain.MarketCode
	Weight   float64
}

// Config holds simulator settings. Hour windows are inclusive and may wrap
// midnight (start > end).
type Config struct {
	Markets       []MarketConfig
	Correlations  []Correlation
	PeakStart     int
	PeakEnd       int
	PeakFactor    float64
	OffPeakStart  int
	OffPeakEnd    int
	OffPeakFactor float64
	MeanReversion float64
	Floor         float64
	Ceiling       float64
	Location      *time.Location
	Seed          int64
}

// DefaultConfig returns the five-market European setup.
func DefaultConfig() Config {
	return Config{
		Markets: []MarketConfig{
			{Code: "DE", BasePrice: 75, Volatility: 2},
			{Code: "FR", BasePrice: 85, Volatility: 2},
			{Code: "NL", BasePrice: 73, Volatility: 1},
			{Code: "BE", BasePrice: 80, Volatility: 2},
			{Code: "AT", BasePrice: 78, Volatility: 2},
		},
		Correlations:  []Correlation{{Driver: "DE", Follower: "NL", Weight: 0.7}},
		PeakStart:     8,
		PeakEnd:       20,
		PeakFactor:    1.3,
		OffPeakStart:  21,
		OffPeakEnd:    6,
		OffPeakFactor: 0.8,
		MeanReversion: 0.1,
		Floor:         0,
		Ceiling:       500,
		Location:      time.UTC,
	}
}

type market struct {
	cfg     MarketConfig
	floor   float64
	ceiling float64
	driver  *Correlation
	state   domain.MarketState
	started bool
}

// Simulator owns the random-walk state of every configured market. It is
// safe for concurrent use.
type Simulator struct {
	cfg     Config
	order   []domain.MarketCode
	markets map[domain.MarketCode]*market

	mu     sync.Mutex
	rng    *rand.Rand
	drawAt time.Time
	draws  map[domain.MarketCode]float64
}

// New validates cfg and builds a simulator.
func New(cfg Config) (*Simulator, error) {
	if len(cfg.Markets) == 0 {
		return nil, fmt.Errorf("simulator: no markets configured")
	}
	if cfg.Ceiling <= cfg.Floor {
		return nil, fmt.Errorf("simulator: ceiling %.2f must exceed floor %.2f", cfg.Ceiling, cfg.Floor)
	}
	if cfg.MeanReversion < 0 || cfg.MeanReversion > 1 {
		return nil, fmt.Errorf("simulator: mean reversion %.3f outside [0,1]", cfg.MeanReversion)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &Simulator{
		cfg:     cfg,
		markets: make(map[domain.MarketCode]*market, len(cfg.Markets)),
		draws:   make(map[domain.MarketCode]float64),
	}
	for _, mc := range cfg.Markets {
		if mc.Code == "" {
			return nil, fmt.Errorf("simulator: market with empty code")
		}
		if _, dup := s.markets[mc.Code]; dup {
			return nil, fmt.Errorf("simulator: market %s configured twice", mc.Code)
		}
		if mc.BasePrice <= 0 || mc.Volatility < 0 {
			return nil, fmt.Errorf("simulator: market %s: base price must be positive and volatility non-negative", mc.Code)
		}
		m := &market{cfg: mc, floor: cfg.Floor, ceiling: cfg.Ceiling}
		if mc.Floor != nil {
			m.floor = *mc.Floor
		}
		if mc.Ceiling != nil {
			m.ceiling = *mc.Ceiling
		}
		if m.ceiling <= m.floor {
			return nil, fmt.Errorf("simulator: market %s: ceiling must exceed floor", mc.Code)
		}
		m.floor, m.ceiling = ceilCents(m.floor), floorCents(m.ceiling)
		if m.ceiling < m.floor {
			return nil, fmt.Errorf("simulator: market %s: no whole-cent price between floor and ceiling", mc.Code)
		}
		m.state = domain.MarketState{Market: mc.Code, BasePrice: mc.BasePrice}
		s.markets[mc.Code] = m
		s.order = append(s.order, mc.Code)
	}
	for i := range cfg.Correlations {
		c := cfg.Correlations[i]
		follower, ok := s.markets[c.Follower]
		if !ok {
			return nil, fmt.Errorf("simulator: correlation follower %s not configured", c.Follower)
		}
		if _, ok := s.markets[c.Driver]; !ok {
			return nil, fmt.Errorf("simulator: correlation driver %s not configured", c.Driver)
		}
		if c.Driver == c.Follower || c.Weight < 0 || c.Weight > 1 {
			return nil, fmt.Errorf("simulator: invalid correlation %s->%s weight %.2f", c.Driver, c.Follower, c.Weight)
		}
		if follower.driver != nil {
			return nil, fmt.Errorf("simulator: market %s has more than one driver", c.Follower)
		}
		follower.driver = &c
	}

	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return s, nil
}

// Markets returns the configured market codes in configuration order.
func (s *Simulator) Markets() []domain.MarketCode {
	out := make([]domain.MarketCode, len(s.order))
	copy(out, s.order)
	return out
}

// Next advances market's walk to now and returns the new observation.
func (s *Simulator) Next(_ context.Context, code domain.MarketCode, now time.Time) (domain.PriceObservation, error) {
	m, ok := s.markets[code]
	if !ok {
		return domain.PriceObservation{}, fmt.Errorf("simulator: %s: %w", code, domain.ErrUnknownMarket)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := m.cfg.BasePrice * s.Multiplier(now)
	if !m.started {
		m.state.LastPrice = target
		m.started = true
	}
	prev := m.state.LastPrice

	next := prev + s.shockLocked(m, now)
	next += (target - next) * s.cfg.MeanReversion
	// Bounds are whole cents, so clamping after rounding keeps both.
	next = math.Round(next*100) / 100
	next = math.Min(math.Max(next, m.floor), m.ceiling)

	m.state.LastPrice = next
	m.state.Trend = next - prev

	return domain.NewPriceObservation(code, now, next)
}

// Series produces n rounds of observations for every market, stepping from
// start by step. It advances the same state Next does.
func (s *Simulator) Series(ctx context.Context, start time.Time, step time.Duration, n int) ([]domain.PriceObservation, error) {
	if step <= 0 {
		return nil, fmt.Errorf("simulator: series step must be positive")
	}
	out := make([]domain.PriceObservation, 0, n*len(s.order))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		at := start.Add(time.Duration(i) * step)
		for _, code := range s.order {
			obs, err := s.Next(ctx, code, at)
			if err != nil {
				return out, err
			}
			out = append(out, obs)
		}
	}
	return out, nil
}

// State returns a copy of the market's current walk state.
func (s *Simulator) State(code domain.MarketCode) (domain.MarketState, bool) {
	m, ok := s.markets[code]
	if !ok {
		return domain.MarketState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.state, true
}

// Multiplier returns the time-of-day factor for t in the configured zone.
func (s *Simulator) Multiplier(t time.Time) float64 {
	h := t.In(s.cfg.Location).Hour()
	switch {
	case inWindow(h, s.cfg.PeakStart, s.cfg.PeakEnd):
		return s.cfg.PeakFactor
	case inWindow(h, s.cfg.OffPeakStart, s.cfg.OffPeakEnd):
		return s.cfg.OffPeakFactor
	default:
		return 1.0
	}
}

// shockLocked returns the perturbation for m at now. Standard-normal draws
// are memoised per instant so a follower always sees its driver's draw.
func (s *Simulator) shockLocked(m *market, now time.Time) float64 {
	if !now.Equal(s.drawAt) {
		s.drawAt = now
		clear(s.draws)
	}
	z := s.drawLocked(m.cfg.Code)
	if m.driver != nil {
		w := m.driver.Weight
		z = w*s.drawLocked(m.driver.Driver) + math.Sqrt(1-w*w)*z
	}
	return m.cfg.Volatility * z
}

func (s *Simulator) drawLocked(code domain.MarketCode) float64 {
	if z, ok := s.draws[code]; ok {
		return z
	}
	z := s.rng.NormFloat64()
	s.draws[code] = z
	return z
}

func inWindow(h, start, end int) bool {
	if start <= end {
		return h >= start && h <= end
	}
	return h >= start || h <= end
}

// centEpsilon absorbs float error in x*100 so 1.10 is not read as 1.1000001.
const centEpsilon = 1e-6

// ceilCents rounds x up to the nearest cent.
func ceilCents(x float64) float64 {
	c := x * 100
	if r := math.Round(c); math.Abs(c-r) < centEpsilon {
		return r / 100
	}
	return math.Ceil(c) / 100
}

// floorCents rounds x down to the nearest cent.
func floorCents(x float64) float64 {
	c := x * 100
	if r := math.Round(c); math.Abs(c-r) < centEpsilon {
		return r / 100
	}
	return math.Floor(c) / 100
}
