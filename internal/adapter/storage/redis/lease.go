package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseStore implements ports.Lease with a per-process owner token.
type LeaseStore struct {
	client *goredis.Client
	owner  string
}

// NewLeaseStore creates a lease store owned by a fresh token.
func NewLeaseStore(client *goredis.Client) *LeaseStore {
	return &LeaseStore{client: client, owner: uuid.NewString()}
}

// Acquire takes the named lease for ttl. Returns false if another holder has it.
// Re-acquiring a lease this store already holds extends it.
func (l *LeaseStore) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := leasePrefix + name

	ok, err := l.client.SetArgs(ctx, key, l.owner, goredis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("redis lease acquire: %w", err)
	}
	if ok == "OK" {
		return true, nil
	}

	holder, err := l.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lease holder: %w", err)
	}
	if holder != l.owner {
		return false, nil
	}
	if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("redis lease extend: %w", err)
	}
	return true, nil
}

// Release gives up the named lease if this store holds it.
func (l *LeaseStore) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.client, []string{leasePrefix + name}, l.owner).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
