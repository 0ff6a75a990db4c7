package cache

import (
	"testing"
	"time"
)

func frozen[V any](c *Cache[V], at *time.Time) {
	c.now = func() time.Time { return *at }
}

func TestSetGetExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := New[string](time.Minute)
	frozen(c, &now)

	c.Set("k", "v", 0)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if v, ok := c.Get("k"); ok || v != "" {
		t.Fatalf("expected expiry with zero value, got %q %v", v, ok)
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read, len=%d", c.Len())
	}
}

func TestSetNX(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := New[int](time.Minute)
	frozen(c, &now)

	if !c.SetNX("k", 1, time.Minute) {
		t.Fatalf("first SetNX should win")
	}
	if c.SetNX("k", 2, time.Minute) {
		t.Fatalf("second SetNX should lose while the entry is live")
	}

	now = now.Add(61 * time.Second)
	if !c.SetNX("k", 3, time.Minute) {
		t.Fatalf("SetNX should win once the entry expired")
	}
	if v, _ := c.Get("k"); v != 3 {
		t.Fatalf("got %d, want 3", v)
	}
}

func TestSweepAndDelete(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := New[int](0)
	frozen(c, &now)

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	c.Set("gone", 3, time.Hour)
	c.Delete("gone")

	now = now.Add(time.Minute)
	if n := c.Sweep(); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if _, ok := c.Get("long"); !ok || c.Len() != 1 {
		t.Fatalf("long-lived entry should survive, len=%d", c.Len())
	}
}
