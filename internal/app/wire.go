package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/futuresbot/internal/blob/s3"
	"github.com/alanyoungcy/futuresbot/internal/cache/redis"
	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/notify"
	"github.com/alanyoungcy/futuresbot/internal/observability"
	"github.com/alanyoungcy/futuresbot/internal/store/clickhouse"
	"github.com/alanyoungcy/futuresbot/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure the modes use. Every
// backend is off unless enabled in config; a nil field means "not
// configured" and callers degrade to the in-memory journal.
type Dependencies struct {
	// Stores
	TradeStore    domain.TradeStore
	DecisionStore domain.DecisionStore
	AuditStore    domain.AuditStore
	RiskStore     domain.RiskStateStore
	SnapshotStore domain.SnapshotStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	Locks       *redis.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archives domain.ObjectReader
	Archiver domain.Archiver

	Notifier *notify.Notifier
	Metrics  *observability.Metrics
}

// Wire constructs every enabled backend and returns a cleanup function that
// releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Metrics: observability.NewMetrics("futuresbot")}

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
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.Migrate(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.DecisionStore = postgres.NewDecisionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.RiskStore = postgres.NewRiskStateStore(pool)
	}

	// --- ClickHouse ---
	if cfg.ClickHouse.Enabled {
		chConn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fail("clickhouse", err)
		}
		closers = append(closers, func() { _ = chConn.Close() })
		if err := chConn.Migrate(ctx); err != nil {
			return fail("clickhouse migrate", err)
		}
		deps.SnapshotStore = clickhouse.NewSnapshotStore(chConn)
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
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
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
			return fail("s3", err)
		}
		if cfg.S3.CreateBucket {
			if err := s3Client.EnsureBucket(ctx); err != nil {
				return fail("s3 bucket", err)
			}
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archiving may fail",
				slog.String("error", err.Error()),
			)
		}
		deps.Archives = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.AuditStore, cfg.S3.Prefix)
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

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("clickhouse", cfg.ClickHouse.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Int("notify_senders", len(senders)),
	)
	return deps, cleanup, nil
}
