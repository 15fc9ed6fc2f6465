package drivers_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/driftcache/driftcache/internal/cache"
	"github.com/driftcache/driftcache/internal/config"
	"github.com/driftcache/driftcache/pkg/driver"
	"github.com/driftcache/driftcache/pkg/drivers"
)

func TestListContainsBuiltins(t *testing.T) {
	registered := make(map[string]bool)
	for _, name := range drivers.List() {
		registered[name] = true
	}

	for _, name := range []string{"memory", "local", "sqlite", "s3", "rclone", "writeback"} {
		if !registered[name] {
			t.Errorf("Expected driver %q to be registered, have %v", name, drivers.List())
		}
	}
}

// The whole point of the registry is that a cache stack assembles from
// configuration alone.
func TestOpenWritebackStackFromConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Instance = "app"
	cfg.Store = "kv"
	// Memory media are named by path; the two tiers must not share one.
	cfg.Local = config.StoreConfig{Driver: "memory", Path: "stack-test-local"}
	cfg.Remote = config.StoreConfig{Driver: "memory", Path: "stack-test-remote"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx := context.Background()
	store, err := driver.Open(ctx, cfg.ToDriverConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	engine, ok := store.(*cache.Engine)
	if !ok {
		t.Fatalf("Expected a cache engine, got %T", store)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if err := engine.Set(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, found, err := engine.Get(ctx, "greeting")
	if err != nil || !found || v != "hello" {
		t.Fatalf("Get = %v, %v, %v", v, found, err)
	}

	// The value survives its migration to the remote tier.
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	v, found, err = engine.Get(ctx, "greeting")
	if err != nil || !found || v != "hello" {
		t.Fatalf("Get after drain = %v, %v, %v", v, found, err)
	}

	stats := engine.Stats()
	if stats.Migrations != 1 {
		t.Errorf("Expected 1 migration, got %+v", stats)
	}
	if stats.Latched {
		t.Errorf("Expected a healthy engine, got %+v", stats)
	}
}

func TestOpenMixedStackFromConfig(t *testing.T) {
	dir := t.TempDir()

	cfg := config.NewDefault()
	cfg.Instance = "app"
	cfg.Store = "kv"
	cfg.Local = config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "cache.db")}
	cfg.Remote = config.StoreConfig{Driver: "local", Path: filepath.Join(dir, "remote")}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx := context.Background()
	store, err := driver.Open(ctx, cfg.ToDriverConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	engine := store.(*cache.Engine)
	defer func() {
		if err := engine.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if err := engine.Set(ctx, "k", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	v, found, err := engine.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get = %v, %v, %v", v, found, err)
	}
	b, ok := v.([]byte)
	if !ok || len(b) != 2 || b[0] != 0x01 || b[1] != 0x02 {
		t.Errorf("Expected the byte payload back, got %#v", v)
	}
}
