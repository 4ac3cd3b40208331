package classify

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheHit(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "starbucks gangnam", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	id, ok, err := c.Get(ctx, "starbucks gangnam")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || id != 1 {
		t.Errorf("Get = (%d, %v), want (1, true)", id, ok)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	if _, ok, err := c.Get(context.Background(), "unknown"); err != nil || ok {
		t.Errorf("Get on empty cache = (ok=%v, err=%v), want miss", ok, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(6 * time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "key", 3); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Just inside the TTL.
	now = now.Add(6*time.Hour - time.Second)
	if _, ok, _ := c.Get(ctx, "key"); !ok {
		t.Error("entry expired before its TTL")
	}

	// Past the TTL: miss, and the entry is evicted.
	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(ctx, "key"); ok {
		t.Error("entry survived past its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestMemoryCacheOverwrite(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	_ = c.Set(ctx, "key", 1)
	_ = c.Set(ctx, "key", 2)

	id, ok, _ := c.Get(ctx, "key")
	if !ok || id != 2 {
		t.Errorf("Get after overwrite = (%d, %v), want (2, true)", id, ok)
	}
}
