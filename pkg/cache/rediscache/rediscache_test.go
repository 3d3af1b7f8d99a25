package rediscache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/asakaida/junban/pkg/cache"
)

// setupTestCache connects to REDIS_ADDR (default localhost:6379) under a unique prefix.
// The test is skipped when Redis is unreachable.
func setupTestCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := New(ctx, Config{Addr: addr, KeyPrefix: fmt.Sprintf("junban-test:%s:", uuid.New())})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = c.Close()
	})
	return c
}

func TestCache_Key(t *testing.T) {
	c := &Cache{prefix: "junban:"}
	if got := c.key("default/post:1#tags"); got != "junban:default/post:1#tags" {
		t.Errorf("key() = %q", got)
	}
}

func TestCache_SetGetDelete(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("Get() on empty cache error = %v, want ErrMiss", err)
	}

	if err := c.Set(ctx, "k", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %s, want payload", got)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrMiss", err)
	}

	m := c.Metrics()
	if m.Hits != 1 || m.Misses != 2 || m.KeysAdded != 1 {
		t.Errorf("Metrics() = %+v, want 1 hit 2 misses 1 added", m)
	}
}

func TestCache_Clear(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, fmt.Sprintf("k%d", i)); !errors.Is(err, cache.ErrMiss) {
			t.Errorf("k%d survived Clear: %v", i, err)
		}
	}
}
