package ratelimit

import (
	"testing"
	"time"
)

func TestAllowDrainsAndRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewWithIdle(time.Hour)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4", 3, 1) {
			t.Fatalf("request %d should pass", i)
		}
	}
	if l.Allow("1.2.3.4", 3, 1) {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("5.6.7.8", 3, 1) {
		t.Fatalf("keys must not share a bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("1.2.3.4", 3, 1) {
		t.Fatalf("one token should have refilled")
	}
	if l.Allow("1.2.3.4", 3, 1) {
		t.Fatalf("only one token should have refilled")
	}
}

func TestIdleBucketsAreSwept(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewWithIdle(time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a", 1, 1)
	l.Allow("b", 1, 1)
	if l.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", l.Len())
	}

	now = now.Add(2 * time.Minute)
	l.Allow("c", 1, 1)
	if l.Len() != 1 {
		t.Fatalf("idle buckets should be dropped, got %d", l.Len())
	}
}
