package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env when present,
// then applies INTHEGRID_* overrides. An empty path skips the file. The
// result is not validated; call Config.Validate.
//
// With Redis enabled the calculator lock defaults to on unless use_lock is
// set explicitly, because the alert cursor assumes spreads commit in id order.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	lockSet := false

	if path != "" {
		// Arrays in the file replace the defaults instead of being merged
		// element by element.
		var raw map[string]any
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, err
		}
		if _, ok := raw["markets"]; ok {
			cfg.Markets = nil
		}
		if has(raw, "simulator", "correlations") {
			cfg.Simulator.Correlations = nil
		}
		if has(raw, "alerts", "thresholds") {
			cfg.Alerts.Thresholds = nil
		}
		if has(raw, "notify", "events") {
			cfg.Notify.Events = nil
		}
		lockSet = has(raw, "calculator", "use_lock")

		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if os.Getenv("INTHEGRID_CALCULATOR_USE_LOCK") != "" {
		lockSet = true
	}
	if cfg.Redis.Enabled && !lockSet {
		cfg.Calculator.UseLock = true
	}

	return &cfg, nil
}

func has(raw map[string]any, table, key string) bool {
	t, ok := raw[table].(map[string]any)
	if !ok {
		return false
	}
	_, ok = t[key]
	return ok
}

// applyEnvOverrides lets operators inject secrets and toggles at deploy time.
func applyEnvOverrides(cfg *Config) {
	// Simulator
	setInt64(&cfg.Simulator.Seed, "INTHEGRID_SIMULATOR_SEED")
	setStr(&cfg.Simulator.Timezone, "INTHEGRID_SIMULATOR_TIMEZONE")
	setInt(&cfg.Simulator.BackfillHours, "INTHEGRID_SIMULATOR_BACKFILL_HOURS")
	setDuration(&cfg.Simulator.BackfillStep, "INTHEGRID_SIMULATOR_BACKFILL_STEP")

	// Ingestion
	setDuration(&cfg.Ingestion.Interval, "INTHEGRID_INGESTION_INTERVAL")
	setDuration(&cfg.Ingestion.CommitTimeout, "INTHEGRID_INGESTION_COMMIT_TIMEOUT")
	setInt(&cfg.Ingestion.MaxAttempts, "INTHEGRID_INGESTION_MAX_ATTEMPTS")
	setFloat64(&cfg.Ingestion.MinPrice, "INTHEGRID_INGESTION_MIN_PRICE")
	setFloat64(&cfg.Ingestion.MaxPrice, "INTHEGRID_INGESTION_MAX_PRICE")

	// Calculator
	setDuration(&cfg.Calculator.Interval, "INTHEGRID_CALCULATOR_INTERVAL")
	setStr(&cfg.Calculator.Trigger, "INTHEGRID_CALCULATOR_TRIGGER")
	setDuration(&cfg.Calculator.Lookback, "INTHEGRID_CALCULATOR_LOOKBACK")
	setDuration(&cfg.Calculator.Bucket, "INTHEGRID_CALCULATOR_BUCKET")
	setFloat64(&cfg.Calculator.DefaultTransmissionCost, "INTHEGRID_CALCULATOR_DEFAULT_TRANSMISSION_COST")
	setBool(&cfg.Calculator.UseLock, "INTHEGRID_CALCULATOR_USE_LOCK")

	// Alerts
	setBool(&cfg.Alerts.Enabled, "INTHEGRID_ALERTS_ENABLED")
	setDuration(&cfg.Alerts.Interval, "INTHEGRID_ALERTS_INTERVAL")
	setStr(&cfg.Alerts.Trigger, "INTHEGRID_ALERTS_TRIGGER")
	setDuration(&cfg.Alerts.SuppressionWindow, "INTHEGRID_ALERTS_SUPPRESSION_WINDOW")

	// Postgres
	setBool(&cfg.Postgres.Enabled, "INTHEGRID_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "INTHEGRID_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // conventional alias
	setStr(&cfg.Postgres.Host, "INTHEGRID_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "INTHEGRID_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "INTHEGRID_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "INTHEGRID_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "INTHEGRID_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "INTHEGRID_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "INTHEGRID_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "INTHEGRID_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "INTHEGRID_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "INTHEGRID_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "INTHEGRID_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "INTHEGRID_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "INTHEGRID_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "INTHEGRID_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "INTHEGRID_REDIS_TLS_ENABLED")

	// S3
	setBool(&cfg.S3.Enabled, "INTHEGRID_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "INTHEGRID_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "INTHEGRID_S3_REGION")
	setStr(&cfg.S3.Bucket, "INTHEGRID_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "INTHEGRID_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "INTHEGRID_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "INTHEGRID_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "INTHEGRID_S3_FORCE_PATH_STYLE")

	// Archive
	setBool(&cfg.Archive.Enabled, "INTHEGRID_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "INTHEGRID_ARCHIVE_CRON")

	// Server
	setBool(&cfg.Server.Enabled, "INTHEGRID_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "INTHEGRID_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "INTHEGRID_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "INTHEGRID_SERVER_CORS_ORIGINS")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "INTHEGRID_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "INTHEGRID_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "INTHEGRID_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "INTHEGRID_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "INTHEGRID_MODE")
	setStr(&cfg.LogLevel, "INTHEGRID_LOG_LEVEL")
}

// Each setter only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
