// Package cachetest provides a behavioral suite for cache.Cache
// implementations.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/cache"
)

// Run exercises the contract every cache adapter must honor.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	key := cache.ToolKey("web", "  Latest Solar Panel Efficiency ")

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, key, []byte("findings"), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != "findings" {
			t.Fatalf("expected findings, got %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, cache.ToolKey("deep", "never asked"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for unknown key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		k := cache.ToolKey("web", "delete me")
		_ = c.Set(ctx, k, []byte("x"), time.Minute)
		if err := c.Delete(ctx, k); err != nil {
			t.Fatal(err)
		}
		_, found, err := c.Get(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := c.Delete(ctx, cache.ToolKey("web", "never existed")); err != nil {
			t.Fatalf("Delete of unknown key should not error: %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		k := cache.ToolKey("deep", "overwrite")
		_ = c.Set(ctx, k, []byte("v1"), time.Minute)
		_ = c.Set(ctx, k, []byte("v2"), time.Minute)
		val, found, err := c.Get(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %q found=%v", val, found)
		}
	})
}
