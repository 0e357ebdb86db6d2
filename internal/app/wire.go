package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/kektech/marketd/internal/blob/s3"
	"github.com/kektech/marketd/internal/cache/redis"
	"github.com/kektech/marketd/internal/config"
	"github.com/kektech/marketd/internal/curve"
	"github.com/kektech/marketd/internal/domain"
	"github.com/kektech/marketd/internal/engine"
	"github.com/kektech/marketd/internal/notify"
	"github.com/kektech/marketd/internal/roles"
	"github.com/kektech/marketd/internal/service"
	"github.com/kektech/marketd/internal/store/postgres"
)

// wallClock is the production clock wired at the outermost boundary.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Dependencies bundles every collaborator the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	PositionStore domain.PositionStore
	BondStore     domain.BondStore
	DisputeStore  domain.DisputeStore
	CurveStore    domain.CurveStore
	ParamStore    domain.ParamStore
	Ledger        domain.Ledger
	AuditStore    domain.AuditStore

	// Caches and messaging
	MarketCache domain.MarketCache
	OddsCache   domain.OddsCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Engine
	Roles    domain.RoleDirectory
	Registry *curve.Registry
	Engine   *engine.Engine
	Factory  *engine.Factory
	Manager  *engine.ResolutionManager

	// Services
	Markets    *service.MarketService
	FactorySvc *service.FactoryService
	Resolution *service.ResolutionService
	Curves     *service.CurveService
	Params     *service.ParamService
	Sweeper    *service.Sweeper

	// Notifications
	Notifier *notify.Notifier

	Clock domain.Clock
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Clock: wallClock{}}

	// --- PostgreSQL ---
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
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.BondStore = postgres.NewBondStore(pool)
	deps.DisputeStore = postgres.NewDisputeStore(pool)
	deps.CurveStore = postgres.NewCurveStore(pool)
	deps.Ledger = postgres.NewLedgerStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// Parameter defaults: built-ins overlaid with config seeds.
	paramDefaults := postgres.DefaultParams()
	for k, v := range cfg.Engine.Params {
		paramDefaults[k] = v
	}
	deps.ParamStore = postgres.NewParamStore(pool, paramDefaults)

	// --- Redis ---
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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.OddsCache = redis.NewOddsCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Roles ---
	deps.Roles = roles.NewStaticDirectory(map[string][]string{
		domain.RoleAdmin:    cfg.Roles.Admins,
		domain.RoleOperator: cfg.Roles.Operators,
		domain.RoleResolver: cfg.Roles.Resolvers,
		domain.RolePauser:   cfg.Roles.Pausers,
		domain.RoleBackend:  cfg.Roles.Backends,
	})

	// --- Curve registry ---
	deps.Registry = curve.NewRegistry(deps.Roles, deps.CurveStore, deps.Clock, logger)
	if err := deps.Registry.Bootstrap(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: curve registry: %w", err)
	}

	// --- Engine ---
	treasury := common.HexToAddress(cfg.Engine.Treasury)
	deps.Engine = engine.New(deps.Registry, deps.Roles, deps.ParamStore, deps.Ledger, treasury, logger)
	deps.Factory = engine.NewFactory(deps.Registry, deps.Roles, deps.ParamStore, deps.Ledger, deps.BondStore, logger)

	multiple, err := deps.ParamStore.GetInt(ctx, domain.ParamEscalationBondMultiple)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: escalation policy: %w", err)
	}
	policy := engine.BondWeightedPolicy{Multiple: multiple}
	deps.Manager = engine.NewResolutionManager(deps.Engine, deps.ParamStore, deps.Ledger, deps.DisputeStore, policy, treasury, logger)

	// --- S3 settlement archive (optional) ---
	var archiver service.SettlementArchiver
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

		archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.AuditStore)
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
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Markets = service.NewMarketService(
		deps.Engine, deps.MarketStore, deps.PositionStore, deps.LockManager,
		deps.MarketCache, deps.OddsCache, deps.SignalBus, deps.Clock, logger,
	)
	deps.FactorySvc = service.NewFactoryService(
		deps.Factory, deps.Engine, deps.MarketStore, deps.LockManager,
		deps.MarketCache, deps.SignalBus, deps.AuditStore, deps.Clock, logger,
	)
	deps.Resolution = service.NewResolutionService(
		deps.Manager, deps.Engine, deps.MarketStore, deps.PositionStore,
		deps.DisputeStore, deps.LockManager, deps.MarketCache, deps.SignalBus,
		deps.AuditStore, archiver, deps.Notifier, deps.Clock, logger,
	)
	deps.Curves = service.NewCurveService(deps.Registry, deps.SignalBus, deps.AuditStore, deps.Clock, logger)
	deps.Params = service.NewParamService(deps.ParamStore, deps.Roles, deps.AuditStore, logger)
	deps.Sweeper = service.NewSweeper(
		deps.MarketStore, deps.Resolution, deps.ParamStore, deps.Clock,
		cfg.Engine.SweepInterval.Duration, logger,
	)

	return deps, cleanup, nil
}
