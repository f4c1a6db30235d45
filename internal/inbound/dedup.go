package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupWindow bounds how long a (message, response) pair is remembered.
// Gateways redeliver callbacks on timeout; anything inside the window is the
// same callback, anything beyond it is treated as new.
const DedupWindow = 5 * time.Minute

// Deduper answers whether a callback has been seen inside the window.
// FirstSeen must be atomic: exactly one caller per key gets true.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// RedisDeduper implements the window with SET NX EX, so dedup state is
// shared across instances and expires without a sweeper.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, "callback:dedup:"+key, 1, DedupWindow).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// MemoryDeduper is the single-instance fallback when Redis is not configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time

	now func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < DedupWindow {
		return false, nil
	}
	d.seen[key] = now
	for k, at := range d.seen {
		if now.Sub(at) >= DedupWindow {
			delete(d.seen, k)
		}
	}
	return true, nil
}
