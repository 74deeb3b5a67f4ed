// Package redis keeps the ledger's short-lived state: the posting cache,
// webhook dedup markers, the sweep lease and rate-limit counters.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	idempotencyPrefix = "ledger:idem:"
	eventPrefix       = "ledger:event:"
	leasePrefix       = "ledger:lease:"
	rateLimitPrefix   = "ledger:rl:"
	healthKey         = "ledger:health"
)

// NewClient dials Redis and fails fast when the server does not answer.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr(), err)
	}

	log.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("Redis connected")
	return client, nil
}

// HealthCheck reports whether Redis accepts writes. Dedup markers and the
// sweep lease are written, so a read-only replica counts as down.
type HealthCheck struct {
	client *goredis.Client
}

func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthKey, time.Now().Unix(), time.Minute).Err(); err != nil {
		return fmt.Errorf("redis write check: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string { return "redis" }
