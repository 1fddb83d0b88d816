package cache

import (
	"context"
	"testing"
	"time"
)

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(opts ...MemoryOption) (*MemoryCache, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	mc := NewMemoryCache(opts...)
	mc.now = c.now
	return mc, c
}

func TestMemoryTryLockWindow(t *testing.T) {
	mc, clk := newTestCache()
	defer mc.Close()
	ctx := context.Background()

	if ok, err := mc.TryLock(ctx, "dedup:abc", 30*time.Second); err != nil || !ok {
		t.Fatalf("first lock: %v %v", ok, err)
	}
	clk.advance(29 * time.Second)
	if ok, _ := mc.TryLock(ctx, "dedup:abc", 30*time.Second); ok {
		t.Fatalf("second lock inside the window should fail")
	}
	clk.advance(time.Second)
	if ok, _ := mc.TryLock(ctx, "dedup:abc", 30*time.Second); !ok {
		t.Fatalf("lock should be free after ttl")
	}
}

func TestMemoryUnlockReleases(t *testing.T) {
	mc, _ := newTestCache()
	defer mc.Close()
	ctx := context.Background()

	_, _ = mc.TryLock(ctx, "k", time.Minute)
	if err := mc.Unlock(ctx, "k"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := mc.Unlock(ctx, "absent"); err != nil {
		t.Fatalf("unlocking an absent key: %v", err)
	}
	if ok, _ := mc.TryLock(ctx, "k", time.Minute); !ok {
		t.Fatalf("released key should be claimable")
	}
}

func TestMemoryEvictsLeastRecentlyTouched(t *testing.T) {
	mc, _ := newTestCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_, _ = mc.TryLock(ctx, "a", time.Minute)
	_, _ = mc.TryLock(ctx, "b", time.Minute)
	_, _ = mc.TryLock(ctx, "a", time.Minute) // touch a
	_, _ = mc.TryLock(ctx, "c", time.Minute) // evicts b

	if mc.Len() != 2 {
		t.Fatalf("max size not enforced: %d", mc.Len())
	}
	if ok, _ := mc.TryLock(ctx, "a", time.Minute); ok {
		t.Fatalf("a was touched and should have survived")
	}
	if ok, _ := mc.TryLock(ctx, "b", time.Minute); !ok {
		t.Fatalf("b should have been evicted")
	}
}

func TestMemorySweepDropsExpired(t *testing.T) {
	mc, clk := newTestCache()
	defer mc.Close()
	ctx := context.Background()

	_, _ = mc.TryLock(ctx, "short", time.Second)
	_, _ = mc.TryLock(ctx, "long", time.Hour)
	clk.advance(2 * time.Second)
	mc.sweep()

	if mc.Len() != 1 {
		t.Fatalf("expected only the long key to remain, got %d", mc.Len())
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	if got := NewRedisCacheFromClient(nil, "signalrelay").wrapKey("dedup:x"); got != "signalrelay:dedup:x" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := NewRedisCacheFromClient(nil, "").wrapKey("dedup:x"); got != "dedup:x" {
		t.Fatalf("unexpected key %q", got)
	}
}
