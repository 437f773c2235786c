package webhook

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestIdempotency(t *testing.T, ttl time.Duration) (*RedisIdempotency, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotency(client, ttl), mr
}

func TestRedisIdempotency_FirstIsFreshRestAreNot(t *testing.T) {
	store, _ := newTestIdempotency(t, time.Hour)
	ctx := context.Background()

	fresh, err := store.MarkIfNew(ctx, "meta", "lead-123")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !fresh {
		t.Fatal("first mark must be fresh")
	}

	for i := 0; i < 3; i++ {
		fresh, err = store.MarkIfNew(ctx, "meta", "lead-123")
		if err != nil {
			t.Fatalf("mark: %v", err)
		}
		if fresh {
			t.Fatal("replay must not be fresh")
		}
	}
}

func TestRedisIdempotency_SourcesAreIsolated(t *testing.T) {
	store, _ := newTestIdempotency(t, time.Hour)
	ctx := context.Background()

	if fresh, _ := store.MarkIfNew(ctx, "meta", "evt-1"); !fresh {
		t.Fatal("meta event must be fresh")
	}
	if fresh, _ := store.MarkIfNew(ctx, "messaging", "evt-1"); !fresh {
		t.Fatal("same id from a different source must be fresh")
	}
}

func TestRedisIdempotency_ExpiryReopensTheKey(t *testing.T) {
	store, mr := newTestIdempotency(t, time.Minute)
	ctx := context.Background()

	if fresh, _ := store.MarkIfNew(ctx, "meta", "evt-2"); !fresh {
		t.Fatal("first mark must be fresh")
	}
	mr.FastForward(2 * time.Minute)
	if fresh, _ := store.MarkIfNew(ctx, "meta", "evt-2"); !fresh {
		t.Fatal("after TTL expiry the event must be treated as new")
	}
}

func TestRedisIdempotency_ConcurrentMarksElectOneWinner(t *testing.T) {
	store, _ := newTestIdempotency(t, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	var freshCount atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := store.MarkIfNew(ctx, "payments", "pay-9")
			if err != nil {
				t.Errorf("mark: %v", err)
				return
			}
			if fresh {
				freshCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := freshCount.Load(); got != 1 {
		t.Fatalf("exactly one concurrent mark must be fresh, got %d", got)
	}
}
