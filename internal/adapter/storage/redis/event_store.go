package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventStore implements ports.EventDeduper using Redis SET NX.
type EventStore struct {
	client *goredis.Client
}

// NewEventStore creates a new Redis-backed webhook event store.
func NewEventStore(client *goredis.Client) *EventStore {
	return &EventStore{client: client}
}

// MarkSeen atomically records an event key.
// Returns true if the event is new, false if it was already recorded.
func (s *EventStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, eventPrefix+key, time.Now().UTC().Unix(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis event mark: %w", err)
	}
	return result == "OK", nil
}

// Forget removes an event key so the provider's redelivery is processed.
func (s *EventStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, eventPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis event forget: %w", err)
	}
	return nil
}
