package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/perptools/perprecap/internal/blob/s3"
	"github.com/perptools/perprecap/internal/cache/redis"
	"github.com/perptools/perprecap/internal/config"
	"github.com/perptools/perprecap/internal/domain"
	"github.com/perptools/perprecap/internal/notify"
	"github.com/perptools/perprecap/internal/pipeline"
	"github.com/perptools/perprecap/internal/platform/pacifica"
	"github.com/perptools/perprecap/internal/ratelimit"
	"github.com/perptools/perprecap/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
// Optional sinks stay nil when their backend is disabled in configuration.
type Dependencies struct {
	Client *pacifica.Client
	Stream *pacifica.WSClient

	TradeStore    domain.TradeStore
	PositionStore domain.PositionStore

	SnapshotCache domain.SnapshotCache
	LockManager   domain.LockManager

	Exporter *pipeline.Exporter

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange client (always) ---
	limiter := ratelimit.New(
		cfg.Fetch.RateLimit,
		cfg.Fetch.RateWindow.Duration,
		cfg.Fetch.MinDelay.Duration,
	)
	deps.Client = pacifica.NewClient(pacifica.ClientConfig{
		BaseURL:     cfg.Pacifica.BaseURL,
		PageLimit:   cfg.Fetch.PageLimit,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		RetryBase:   cfg.Fetch.RetryBase.Duration,
		Timeout:     cfg.Pacifica.Timeout.Duration,
	}, limiter, logger)

	// --- WebSocket stream (watch mode only) ---
	if cfg.Mode == "watch" {
		deps.Stream = pacifica.NewWSClient(cfg.Pacifica.WsURL)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage ---
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

		deps.Exporter = pipeline.NewExporter(s3blob.NewWriter(s3Client), logger)
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
