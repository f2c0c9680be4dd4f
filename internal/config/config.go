// Package config defines the inthegrid configuration tree and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by INTHEGRID_* environment variables.
type Config struct {
	Markets    []MarketConfig   `toml:"markets"`
	Simulator  SimulatorConfig  `toml:"simulator"`
	Ingestion  IngestionConfig  `toml:"ingestion"`
	Calculator CalculatorConfig `toml:"calculator"`
	Alerts     AlertsConfig     `toml:"alerts"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MarketConfig describes one bidding zone. Floor and Ceiling override the
// simulator-wide bounds when set.
type MarketConfig struct {
	Code       string   `toml:"code"`
	BasePrice  float64  `toml:"base_price"`
	Volatility float64  `toml:"volatility"`
	Floor      *float64 `toml:"floor"`
	Ceiling    *float64 `toml:"ceiling"`
}

// CorrelationConfig makes Follower's shocks track Driver's with the given
// weight in [0, 1].
type CorrelationConfig struct {
	Driver   string  `toml:"driver"`
	Follower string  `toml:"follower"`
	Weight   float64 `toml:"weight"`
}

// SimulatorConfig holds the random-walk parameters.
type SimulatorConfig struct {
	Correlations  []CorrelationConfig `toml:"correlations"`
	PeakStart     int                 `toml:"peak_start"`
	PeakEnd       int                 `toml:"peak_end"`
	PeakFactor    float64             `toml:"peak_factor"`
	OffPeakStart  int                 `toml:"off_peak_start"`
	OffPeakEnd    int                 `toml:"off_peak_end"`
	OffPeakFactor float64             `toml:"off_peak_factor"`
	MeanReversion float64             `toml:"mean_reversion"`
	Floor         float64             `toml:"floor"`
	Ceiling       float64             `toml:"ceiling"`
	Timezone      string              `toml:"timezone"`
	// Seed 0 seeds from the clock.
	Seed          int64    `toml:"seed"`
	BackfillHours int      `toml:"backfill_hours"`
	BackfillStep  duration `toml:"backfill_step"`
}

// IngestionConfig controls the polling loop and the dual-write validation.
type IngestionConfig struct {
	Interval      duration `toml:"interval"`
	CommitTimeout duration `toml:"commit_timeout"`
	MaxAttempts   int      `toml:"max_attempts"`
	RetryBase     duration `toml:"retry_base"`
	RetryMax      duration `toml:"retry_max"`
	MinPrice      float64  `toml:"min_price"`
	// MaxPrice 0 disables the upper bound.
	MaxPrice float64 `toml:"max_price"`
}

// CalculatorConfig controls spread cycles. An empty TransmissionCosts table
// selects the built-in cost table.
type CalculatorConfig struct {
	Interval                duration           `toml:"interval"`
	Trigger                 string             `toml:"trigger"`
	Lookback                duration           `toml:"lookback"`
	Bucket                  duration           `toml:"bucket"`
	InsertTimeout           duration           `toml:"insert_timeout"`
	TransmissionCosts       map[string]float64 `toml:"transmission_costs"`
	DefaultTransmissionCost float64            `toml:"default_transmission_cost"`
	UseLock                 bool               `toml:"use_lock"`
	LockTTL                 duration           `toml:"lock_ttl"`
}

// ThresholdConfig maps a minimum net opportunity to a priority.
type ThresholdConfig struct {
	Priority          string  `toml:"priority"`
	MinNetOpportunity float64 `toml:"min_net_opportunity"`
}

// AlertsConfig controls the alert evaluator.
type AlertsConfig struct {
	Enabled           bool              `toml:"enabled"`
	Interval          duration          `toml:"interval"`
	Trigger           string            `toml:"trigger"`
	Thresholds        []ThresholdConfig `toml:"thresholds"`
	SuppressionWindow duration          `toml:"suppression_window"`
	BatchSize         int               `toml:"batch_size"`
}

// PostgresConfig holds the durable store connection. With Enabled false the
// process keeps everything in memory.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds the fan-out bus connection.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	DialTimeout  duration `toml:"dial_timeout"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds the archive bucket.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the daily export.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the ops HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials. Events filters which
// event names are delivered, e.g. "alert.high".
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the built-in configuration. It matches config.example.toml.
func Defaults() Config {
	return Config{
		Markets: []MarketConfig{
			{Code: "DE", BasePrice: 75, Volatility: 2},
			{Code: "FR", BasePrice: 85, Volatility: 2},
			{Code: "NL", BasePrice: 73, Volatility: 1},
			{Code: "BE", BasePrice: 80, Volatility: 2},
			{Code: "AT", BasePrice: 78, Volatility: 2},
		},
		Simulator: SimulatorConfig{
			Correlations:  []CorrelationConfig{{Driver: "DE", Follower: "NL", Weight: 0.7}},
			PeakStart:     8,
			PeakEnd:       20,
			PeakFactor:    1.3,
			OffPeakStart:  21,
			OffPeakEnd:    6,
			OffPeakFactor: 0.8,
			MeanReversion: 0.1,
			Floor:         0,
			Ceiling:       500,
			Timezone:      "UTC",
			BackfillHours: 24,
			BackfillStep:  duration{time.Hour},
		},
		Ingestion: IngestionConfig{
			Interval:      duration{10 * time.Second},
			CommitTimeout: duration{5 * time.Second},
			MaxAttempts:   3,
			RetryBase:     duration{200 * time.Millisecond},
			RetryMax:      duration{2 * time.Second},
			MinPrice:      0,
			MaxPrice:      0,
		},
		Calculator: CalculatorConfig{
			Interval:      duration{10 * time.Second},
			Trigger:       "interval",
			Lookback:      duration{5 * time.Minute},
			InsertTimeout: duration{5 * time.Second},
			LockTTL:       duration{30 * time.Second},
		},
		Alerts: AlertsConfig{
			Enabled:  true,
			Interval: duration{10 * time.Second},
			Trigger:  "interval",
			Thresholds: []ThresholdConfig{
				{Priority: "HIGH", MinNetOpportunity: 20},
				{Priority: "MEDIUM", MinNetOpportunity: 10},
				{Priority: "LOW", MinNetOpportunity: 5},
			},
			SuppressionWindow: duration{15 * time.Minute},
			BatchSize:         500,
		},
		Postgres: PostgresConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           5432,
			Database:       "inthegrid",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			DialTimeout:  duration{5 * time.Second},
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "inthegrid-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Cron:    "15 0 * * *",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"alert.high", "alert.medium"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"ingest":    true,
	"calculate": true,
	"full":      true,
	"backfill":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTriggers = map[string]bool{
	"interval": true,
	"signal":   true,
	"stream":   true,
}

// MarketCodes returns the configured market codes in file order.
func (c *Config) MarketCodes() []domain.MarketCode {
	out := make([]domain.MarketCode, len(c.Markets))
	for i, m := range c.Markets {
		out[i] = domain.MarketCode(m.Code)
	}
	return out
}

// Validate checks every section and returns one error listing all problems.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: ingest, calculate, full, backfill)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Markets
	if len(c.Markets) == 0 {
		add("markets: at least one market is required")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		switch {
		case m.Code == "":
			add("markets[%d]: code must not be empty", i)
		case strings.Contains(m.Code, "-"):
			add("markets[%d]: code %q must not contain '-'", i, m.Code)
		case seen[m.Code]:
			add("markets[%d]: duplicate code %q", i, m.Code)
		}
		seen[m.Code] = true
		if m.BasePrice <= 0 {
			add("markets[%d]: base_price must be > 0", i)
		}
		if m.Volatility < 0 {
			add("markets[%d]: volatility must be >= 0", i)
		}
		if m.Floor != nil && m.Ceiling != nil && *m.Floor >= *m.Ceiling {
			add("markets[%d]: floor must be below ceiling", i)
		}
	}

	// Simulator
	s := c.Simulator
	for i, cr := range s.Correlations {
		if !seen[cr.Driver] || !seen[cr.Follower] {
			add("simulator.correlations[%d]: %s -> %s references an unknown market", i, cr.Driver, cr.Follower)
		}
		if cr.Driver == cr.Follower {
			add("simulator.correlations[%d]: driver and follower must differ", i)
		}
		if cr.Weight < 0 || cr.Weight > 1 {
			add("simulator.correlations[%d]: weight must be in [0, 1]", i)
		}
	}
	hours := []struct {
		name string
		h    int
	}{
		{"peak_start", s.PeakStart}, {"peak_end", s.PeakEnd},
		{"off_peak_start", s.OffPeakStart}, {"off_peak_end", s.OffPeakEnd},
	}
	for _, hr := range hours {
		if hr.h < 0 || hr.h > 23 {
			add("simulator: %s must be 0-23, got %d", hr.name, hr.h)
		}
	}
	if s.PeakFactor <= 0 || s.OffPeakFactor <= 0 {
		add("simulator: peak_factor and off_peak_factor must be > 0")
	}
	if s.MeanReversion < 0 || s.MeanReversion > 1 {
		add("simulator: mean_reversion must be in [0, 1]")
	}
	if s.Floor >= s.Ceiling {
		add("simulator: floor must be below ceiling")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		add("simulator: timezone %q: %v", s.Timezone, err)
	}
	if strings.EqualFold(c.Mode, "backfill") {
		if s.BackfillHours <= 0 {
			add("simulator: backfill_hours must be > 0 for backfill mode")
		}
		if s.BackfillStep.Duration <= 0 {
			add("simulator: backfill_step must be > 0 for backfill mode")
		}
	}

	// Ingestion
	in := c.Ingestion
	if in.Interval.Duration <= 0 {
		add("ingestion: interval must be > 0")
	}
	if in.CommitTimeout.Duration <= 0 {
		add("ingestion: commit_timeout must be > 0")
	}
	if in.MaxAttempts < 1 {
		add("ingestion: max_attempts must be >= 1")
	}
	if in.RetryBase.Duration <= 0 || in.RetryMax.Duration < in.RetryBase.Duration {
		add("ingestion: retry_base must be > 0 and not exceed retry_max")
	}
	if in.MinPrice < 0 {
		add("ingestion: min_price must be >= 0")
	}
	if in.MaxPrice != 0 && in.MaxPrice <= in.MinPrice {
		add("ingestion: max_price must exceed min_price")
	}

	// Calculator
	calc := c.Calculator
	if calc.Interval.Duration <= 0 {
		add("calculator: interval must be > 0")
	}
	if !validTriggers[calc.Trigger] {
		add("calculator: unknown trigger %q (valid: interval, signal, stream)", calc.Trigger)
	}
	if calc.Lookback.Duration <= 0 {
		add("calculator: lookback must be > 0")
	}
	if calc.Bucket.Duration < 0 {
		add("calculator: bucket must be >= 0")
	}
	if calc.DefaultTransmissionCost < 0 {
		add("calculator: default_transmission_cost must be >= 0")
	}
	for key, cost := range calc.TransmissionCosts {
		if _, ok := domain.ParseMarketPair(key); !ok {
			add("calculator.transmission_costs: key %q is not of the form A-B", key)
		}
		if cost < 0 {
			add("calculator.transmission_costs: %s must be >= 0", key)
		}
	}
	if calc.UseLock && calc.LockTTL.Duration <= 0 {
		add("calculator: lock_ttl must be > 0 when use_lock is set")
	}

	// Alerts
	al := c.Alerts
	if al.Enabled {
		if al.Interval.Duration <= 0 {
			add("alerts: interval must be > 0")
		}
		if !validTriggers[al.Trigger] || al.Trigger == "stream" {
			add("alerts: unknown trigger %q (valid: interval, signal)", al.Trigger)
		}
		if len(al.Thresholds) == 0 {
			add("alerts: at least one threshold is required")
		}
		for i, th := range al.Thresholds {
			if _, err := domain.ParsePriority(th.Priority); err != nil {
				add("alerts.thresholds[%d]: %v", i, err)
			}
		}
		if al.SuppressionWindow.Duration < 0 {
			add("alerts: suppression_window must be >= 0")
		}
		if al.BatchSize < 1 {
			add("alerts: batch_size must be >= 1")
		}
	}

	// Postgres
	pg := c.Postgres
	if pg.Enabled {
		if strings.TrimSpace(pg.DSN) == "" {
			if pg.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if pg.Port <= 0 || pg.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", pg.Port)
			}
			if pg.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if pg.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if pg.PoolMinConns < 0 || pg.PoolMinConns > pg.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
		if c.Redis.StreamMaxLen < 0 {
			add("redis: stream_max_len must be >= 0")
		}
	} else {
		if calc.UseLock {
			add("calculator: use_lock requires redis.enabled")
		}
		if calc.Trigger == "signal" || (al.Enabled && al.Trigger == "signal") {
			add("signal triggers require redis.enabled")
		}
		if calc.Trigger == "stream" {
			add("calculator: stream trigger requires redis.enabled")
		}
	}

	// S3 and archive
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled {
			add("archive: requires s3.enabled")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			add("archive: cron must not be empty")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
