// Package app assembles the ledger services from configuration. Both
// binaries build on it.
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/gateway"
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/handler"
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/memory"
	pgStorage "github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/postgres"
	redisStorage "github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/redis"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const notifyTimeout = 10 * time.Second

// App holds the wired services of one process.
type App struct {
	Config     *config.Config
	Store      ports.Store
	Ledger     *service.LedgerServiceImpl
	Payouts    *service.PayoutServiceImpl
	Accounts   *service.BankAccountServiceImpl
	Reconciler *service.ReconciliationServiceImpl
	Sweeper    *service.Sweeper
	TokenSvc   ports.TokenService
	AuditSvc   ports.AuditService

	rateLimits *redisStorage.RateLimitStore
	health     []ports.HealthChecker
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	log        zerolog.Logger
}

// New connects storage and Redis and builds every service. Redis is skipped
// when disabled; the memory driver needs no database.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	switch cfg.Database.Driver {
	case "memory":
		a.Store = memory.NewStore(cfg.Database.LockTimeout)
		log.Warn().Msg("Using in-memory storage, data is lost on exit")
	case "postgres", "":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.Store = pgStorage.NewStore(pool, cfg.Database)
		a.health = append(a.health, pgStorage.NewHealthCheck(pool))
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	var (
		idempCache ports.IdempotencyCache
		deduper    ports.EventDeduper
		lease      ports.Lease
	)
	if !cfg.Redis.Disabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		idempCache = redisStorage.NewPostingCache(rdb)
		deduper = redisStorage.NewEventStore(rdb)
		lease = redisStorage.NewLeaseStore(rdb)
		a.rateLimits = redisStorage.NewRateLimitStore(rdb)
		a.health = append(a.health, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("Redis disabled, running without rate limits, webhook dedup or sweep lease")
	}

	encSvc, err := service.NewDerivedEncryptionService(cfg.Crypto.MasterKey, service.KeyPurposeBankAccount)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing encryption service: %w", err)
	}
	sigSvc := service.NewHMACSignatureService()

	gateways, err := gateway.FromConfig(cfg.Gateway, sigSvc, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info().Interface("providers", gateways.Providers()).Str("default", string(gateways.Default())).Msg("Payment gateways registered")

	notifyCfg := cfg.Notify
	if notifyCfg.URL != "" && notifyCfg.Secret == "" {
		key, err := service.DeriveKey(cfg.Crypto.MasterKey, service.KeyPurposeNotify)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("deriving notify secret: %w", err)
		}
		notifyCfg.Secret = hex.EncodeToString(key)
	}
	notifier := service.NewPayoutNotifier(notifyCfg, sigSvc, &http.Client{Timeout: notifyTimeout}, log)

	a.Ledger = service.NewLedgerService(a.Store, idempCache, cfg.Ledger, log)
	a.Payouts = service.NewPayoutService(a.Store, a.Ledger, gateways, encSvc, notifier, cfg.Payout, cfg.Ledger, log)
	a.Accounts = service.NewBankAccountService(a.Store, encSvc, cfg.Ledger, log)
	a.Reconciler = service.NewReconciliationService(gateways, a.Payouts, a.Store.Payouts, deduper, cfg.Payout.EventDedupTTL, log)
	a.Sweeper = service.NewSweeper(a.Payouts, lease, cfg.Payout, log)
	a.AuditSvc = service.NewAuditService(a.Store.Audit, log)
	a.TokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	return a, nil
}

// RouterDeps returns the HTTP layer's dependencies.
func (a *App) RouterDeps() handler.RouterDeps {
	deps := handler.RouterDeps{
		Ledger:         a.Ledger,
		Payouts:        a.Payouts,
		Accounts:       a.Accounts,
		Reconciler:     a.Reconciler,
		TokenSvc:       a.TokenSvc,
		AuditSvc:       a.AuditSvc,
		HealthCheckers: a.health,
		Logger:         a.log,
	}
	if a.rateLimits != nil {
		deps.RateLimitStore = a.rateLimits
	}
	return deps
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
