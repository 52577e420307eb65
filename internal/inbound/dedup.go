package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Deduper remembers event ids so redelivered events are processed once.
type Deduper interface {
	// FirstSeen marks id as seen and reports whether it was new.
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// MemoryDeduper is a process-local Deduper with per-entry expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper keeping ids for ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// FirstSeen implements Deduper.
func (d *MemoryDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	d.seen[id] = now.Add(d.ttl)
	return true, nil
}

// setNXer is the slice of the redis client used for de-duplication.
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisDeduper shares seen event ids across replicas.
type RedisDeduper struct {
	client setNXer
	ttl    time.Duration
	prefix string
}

// NewRedisDeduper connects to the redis instance at url.
func NewRedisDeduper(url string, ttl time.Duration) (*RedisDeduper, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("inbound: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisDeduper{client: client, ttl: ttl, prefix: "dealwhisperer:event:"}, client, nil
}

// FirstSeen implements Deduper.
func (d *RedisDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inbound: mark event %s: %w", id, err)
	}
	return ok, nil
}
