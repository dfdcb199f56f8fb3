package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemory_SetGetDelete(t *testing.T) {
	c := NewMemory("test", time.Minute)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("Get missing err = %v, want ErrNotFound", err)
	}

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	v, err := c.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("Get = %q, %v; want v, nil", v, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, err := c.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("Get after Delete err = %v, want ErrNotFound", err)
	}

	// Delete idempotente
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete err: %v", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory("", time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); err != ErrNotFound {
		t.Fatalf("Get after TTL err = %v, want ErrNotFound", err)
	}
}

func TestRedis_SetGetDelete(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedis(Config{Addr: mr.Addr(), Prefix: "authgate", DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedis err: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("Get missing err = %v, want ErrNotFound", err)
	}

	if err := c.Set(ctx, "sid:abc", `{"user":"alice"}`, time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	v, err := c.Get(ctx, "sid:abc")
	if err != nil || v != `{"user":"alice"}` {
		t.Fatalf("Get = %q, %v", v, err)
	}

	// TTL real en el server
	mr.FastForward(2 * time.Minute)
	if _, err := c.Get(ctx, "sid:abc"); err != ErrNotFound {
		t.Fatalf("Get after TTL err = %v, want ErrNotFound", err)
	}
}

func TestNew_FactoryKinds(t *testing.T) {
	c, err := New(Config{Kind: "memory"})
	if err != nil || c == nil {
		t.Fatalf("New(memory) = %v, %v", c, err)
	}

	mr := miniredis.RunT(t)
	c2, err := New(Config{Kind: "redis", Addr: mr.Addr()})
	if err != nil || c2 == nil {
		t.Fatalf("New(redis) = %v, %v", c2, err)
	}
	_ = c2.Close()
}
