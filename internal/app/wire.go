package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/inthegrid/internal/blob/s3"
	"github.com/alanyoungcy/inthegrid/internal/cache/redis"
	"github.com/alanyoungcy/inthegrid/internal/config"
	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/notify"
	"github.com/alanyoungcy/inthegrid/internal/store/memory"
	"github.com/alanyoungcy/inthegrid/internal/store/postgres"
)

// Dependencies bundles the backends the modes run on. Optional backends are
// left nil when disabled.
type Dependencies struct {
	// Stores: Postgres, or in-memory when postgres.enabled is false.
	Prices  domain.PriceStore
	Spreads domain.SpreadStore
	Alerts  domain.AlertStore
	Audit   domain.AuditStore

	// Redis
	SignalBus   domain.SignalBus
	LockManager domain.LockManager

	// S3
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Health lists every remote backend by name for /api/health.
	Health map[string]domain.Pinger
}

// Wire builds the concrete backends from cfg. The returned cleanup closes
// them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: make(map[string]domain.Pinger)}

	// --- Stores ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Health["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Prices = postgres.NewPriceStore(pool)
		deps.Spreads = postgres.NewSpreadStore(pool)
		deps.Alerts = postgres.NewAlertStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	} else {
		logger.WarnContext(ctx, "postgres disabled, using in-memory stores; nothing survives a restart")
		deps.Prices = memory.NewPriceStore()
		deps.Spreads = memory.NewSpreadStore()
		deps.Alerts = memory.NewAlertStore()
		deps.Audit = memory.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			TLSEnabled:  cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Health["redis"] = redisClient

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Health["s3"] = s3Client

		deps.Archiver = s3blob.NewExporter(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Prices,
			deps.Spreads,
			deps.Alerts,
			deps.Audit,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
