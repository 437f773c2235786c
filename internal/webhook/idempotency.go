package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers (source, external id) pairs for the retention
// window. MarkIfNew must be atomic: under concurrent delivery of the same
// event, exactly one caller sees fresh=true.
type IdempotencyStore interface {
	MarkIfNew(ctx context.Context, source, externalID string) (fresh bool, err error)
}

// RedisIdempotency implements IdempotencyStore on a single SET NX EX, which
// checks and inserts in one round trip.
type RedisIdempotency struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotency(client redis.UniversalClient, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (s *RedisIdempotency) MarkIfNew(ctx context.Context, source, externalID string) (bool, error) {
	key := idempotencyKey(source, externalID)
	fresh, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency mark %s: %w", key, err)
	}
	return fresh, nil
}

func idempotencyKey(source, externalID string) string {
	return "webhook:idem:" + source + ":" + externalID
}
