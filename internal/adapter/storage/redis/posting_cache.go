package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PostingCache holds the JSON of ledger entries already posted, keyed by
// wallet ID and idempotency key. The first entry cached for a key stays
// until its TTL lapses.
type PostingCache struct {
	client *goredis.Client
}

func NewPostingCache(client *goredis.Client) *PostingCache {
	return &PostingCache{client: client}
}

// Get returns nil, nil on a miss.
func (c *PostingCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, postingKey(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("posting cache get %s: %w", key, err)
	}
	return val, nil
}

// Set records value unless the key already holds an entry.
func (c *PostingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, postingKey(key), value, goredis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("posting cache set %s: %w", key, err)
	}
	return nil
}

func postingKey(key string) string {
	return idempotencyPrefix + key
}
