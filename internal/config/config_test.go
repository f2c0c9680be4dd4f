package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := len(cfg.MarketCodes()); got != 5 {
		t.Errorf("default markets = %d, want 5", got)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "ingest"

[[markets]]
code = "DE"
base_price = 60.0

[[markets]]
code = "FR"
base_price = 80.0
volatility = 1.5

[ingestion]
interval = "30s"

[calculator]
lookback = "2m"
[calculator.transmission_costs]
"DE-FR" = 2.5

[[alerts.thresholds]]
priority = "high"
min_net_opportunity = 15.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "ingest" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if len(cfg.Markets) != 2 || cfg.Markets[0].Volatility != 0 || cfg.Markets[1].Volatility != 1.5 {
		t.Errorf("markets = %+v, want file markets only", cfg.Markets)
	}
	if cfg.Ingestion.Interval.Duration != 30*time.Second {
		t.Errorf("interval = %v", cfg.Ingestion.Interval)
	}
	if cfg.Ingestion.MaxAttempts != 3 {
		t.Errorf("max_attempts default lost: %d", cfg.Ingestion.MaxAttempts)
	}
	if cfg.Calculator.Lookback.Duration != 2*time.Minute || cfg.Calculator.TransmissionCosts["DE-FR"] != 2.5 {
		t.Errorf("calculator = %+v", cfg.Calculator)
	}
	if len(cfg.Alerts.Thresholds) != 1 {
		t.Errorf("thresholds = %+v", cfg.Alerts.Thresholds)
	}
	if len(cfg.Simulator.Correlations) != 1 {
		t.Errorf("default correlations dropped: %+v", cfg.Simulator.Correlations)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INTHEGRID_MODE", "calculate")
	t.Setenv("INTHEGRID_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("INTHEGRID_CALCULATOR_LOOKBACK", "90s")
	t.Setenv("INTHEGRID_NOTIFY_EVENTS", "alert.high, ,alert.low")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "calculate" || cfg.Postgres.Password != "hunter2" {
		t.Errorf("env overrides not applied: mode=%q", cfg.Mode)
	}
	if cfg.Calculator.Lookback.Duration != 90*time.Second {
		t.Errorf("lookback = %v", cfg.Calculator.Lookback)
	}
	if strings.Join(cfg.Notify.Events, "|") != "alert.high|alert.low" {
		t.Errorf("events = %v", cfg.Notify.Events)
	}
}

func TestLoad_BadFile(t *testing.T) {
	if _, err := Load(writeTOML(t, "mode = ")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected missing file error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"no markets", func(c *Config) { c.Markets = nil }, "at least one market"},
		{"duplicate market", func(c *Config) { c.Markets[1].Code = "DE" }, "duplicate code"},
		{"dash in code", func(c *Config) { c.Markets[0].Code = "D-E" }, "must not contain"},
		{"unknown correlation", func(c *Config) { c.Simulator.Correlations[0].Follower = "PL" }, "unknown market"},
		{"weight", func(c *Config) { c.Simulator.Correlations[0].Weight = 1.5 }, "weight"},
		{"hour", func(c *Config) { c.Simulator.PeakEnd = 24 }, "peak_end"},
		{"timezone", func(c *Config) { c.Simulator.Timezone = "Mars/Base" }, "timezone"},
		{"cost key", func(c *Config) { c.Calculator.TransmissionCosts = map[string]float64{"DEFR": 1} }, "not of the form"},
		{"threshold priority", func(c *Config) { c.Alerts.Thresholds[0].Priority = "urgent" }, "unknown priority"},
		{"lock needs redis", func(c *Config) { c.Calculator.UseLock = true }, "use_lock requires"},
		{"signal needs redis", func(c *Config) { c.Alerts.Trigger = "signal" }, "signal triggers"},
		{"stream needs redis", func(c *Config) { c.Calculator.Trigger = "stream" }, "stream trigger requires"},
		{"alerts have no stream", func(c *Config) { c.Redis.Enabled = true; c.Alerts.Trigger = "stream" }, "alerts: unknown trigger"},
		{"archive needs s3", func(c *Config) { c.Archive.Enabled = true }, "archive: requires s3"},
		{"price bounds", func(c *Config) { c.Ingestion.MinPrice = 10; c.Ingestion.MaxPrice = 5 }, "max_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate_PostgresDisabledSkipsConnection(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Enabled = false
	cfg.Postgres.Host = ""
	cfg.Postgres.PoolMaxConns = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled postgres should not be validated: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.S3.SecretKey = "s3"
	cfg.Calculator.TransmissionCosts = map[string]float64{"DE-FR": 2.5}

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != redacted || red.S3.SecretKey != redacted {
		t.Error("secrets not redacted")
	}
	if red.S3.AccessKey != "" {
		t.Error("empty secret should stay empty")
	}
	if cfg.Postgres.Password != "secret" {
		t.Error("original mutated")
	}
	red.Calculator.TransmissionCosts["DE-FR"] = 9
	red.Markets[0].Code = "XX"
	if cfg.Calculator.TransmissionCosts["DE-FR"] != 2.5 || cfg.Markets[0].Code != "DE" {
		t.Error("redacted copy aliases original")
	}
}

func TestLoad_RedisEnablesCalculatorLock(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"redis off", "[redis]\nenabled = false\n", false},
		{"redis on", "[redis]\nenabled = true\n", true},
		{"explicitly off", "[redis]\nenabled = true\n[calculator]\nuse_lock = false\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTOML(t, tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Calculator.UseLock != tt.want {
				t.Errorf("use_lock = %v, want %v", cfg.Calculator.UseLock, tt.want)
			}
		})
	}
}
