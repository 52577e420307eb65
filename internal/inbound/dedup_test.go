package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Unix(1700000000, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := d.FirstSeen(ctx, "Ev1"); !ok {
		t.Fatal("first delivery reported as seen")
	}
	if ok, _ := d.FirstSeen(ctx, "Ev1"); ok {
		t.Fatal("redelivery reported as new")
	}
	if ok, _ := d.FirstSeen(ctx, "Ev2"); !ok {
		t.Fatal("different id reported as seen")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := d.FirstSeen(ctx, "Ev1"); !ok {
		t.Error("expired id still reported as seen")
	}
	if len(d.seen) != 1 {
		t.Errorf("expired entries not pruned: %d left", len(d.seen))
	}
}

func TestMemoryDeduper_EmptyID(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	for i := 0; i < 2; i++ {
		if ok, _ := d.FirstSeen(context.Background(), ""); !ok {
			t.Fatal("empty id should always be processed")
		}
	}
}

type fakeRedis struct {
	keys map[string]bool
	ttl  time.Duration
	err  error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	f.ttl = expiration
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestRedisDeduper(t *testing.T) {
	fake := &fakeRedis{keys: map[string]bool{}}
	d := &RedisDeduper{client: fake, ttl: time.Hour, prefix: "dw:"}
	ctx := context.Background()

	if ok, err := d.FirstSeen(ctx, "Ev1"); err != nil || !ok {
		t.Fatalf("first = %v, %v", ok, err)
	}
	if ok, _ := d.FirstSeen(ctx, "Ev1"); ok {
		t.Error("redelivery reported as new")
	}
	if !fake.keys["dw:Ev1"] {
		t.Errorf("keys = %v, want prefixed key", fake.keys)
	}
	if fake.ttl != time.Hour {
		t.Errorf("ttl = %v", fake.ttl)
	}

	fake.err = errors.New("connection refused")
	if _, err := d.FirstSeen(ctx, "Ev2"); err == nil {
		t.Error("expected error from redis failure")
	}
}

func TestNewRedisDeduper_BadURL(t *testing.T) {
	if _, _, err := NewRedisDeduper("not a url", time.Minute); err == nil {
		t.Error("expected parse error")
	}
}

func TestNewRedisDeduper(t *testing.T) {
	d, client, err := NewRedisDeduper("redis://localhost:6379/2", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if client.Options().DB != 2 {
		t.Errorf("DB = %d, want 2", client.Options().DB)
	}
	if d.ttl != time.Minute {
		t.Errorf("ttl = %v", d.ttl)
	}
}
