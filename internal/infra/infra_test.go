package infra

import (
	"testing"
	"time"
)

// ── Cache Tests ──

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("key1", "value1")

	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if val.(string) != "value1" {
		t.Errorf("got %v, want value1", val)
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(time.Minute)
	if _, ok := c.Get("nonexistent"); ok {
		t.Error("expected cache miss for nonexistent key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("key1", "value1")

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("key1"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCacheSetWithTTL(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.SetWithTTL("key1", "value1", time.Minute)

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("key1"); !ok {
		t.Error("entry with long custom TTL should survive default TTL")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("key1", "value1")
	c.Invalidate("key1")

	if _, ok := c.Get("key1"); ok {
		t.Error("invalidated key should miss")
	}
}

func TestCacheFlush(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Flush()

	if _, ok := c.Get("key1"); ok {
		t.Error("flushed cache should miss key1")
	}
	if _, ok := c.Get("key2"); ok {
		t.Error("flushed cache should miss key2")
	}
}

func TestCacheCleanup(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("old", "value")
	c.SetWithTTL("fresh", "value", time.Minute)

	time.Sleep(20 * time.Millisecond)
	c.Cleanup()

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("after cleanup Entries = %d, want 1", stats.Entries)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestCacheStats(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("key1", "value1")

	c.Get("key1")
	c.Get("key1")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}
}
