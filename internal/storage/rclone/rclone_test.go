package rclone_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/rclone/rclone/backend/local"

	"github.com/driftcache/driftcache/internal/storage/rclone"
	"github.com/driftcache/driftcache/internal/storage/storagetest"
	"github.com/driftcache/driftcache/pkg/driver"
	pkgerrors "github.com/driftcache/driftcache/pkg/errors"
	"github.com/driftcache/driftcache/pkg/types"
)

func TestNewRequiresRemotePath(t *testing.T) {
	t.Parallel()

	_, err := rclone.New(context.Background(), "", types.Layout{})
	if err == nil {
		t.Fatal("expected error for empty remote path")
	}
	if code := pkgerrors.CodeOf(err); code != pkgerrors.ErrCodeMissingConfig {
		t.Fatalf("CodeOf(err) = %v, want %v", code, pkgerrors.ErrCodeMissingConfig)
	}
}

// TestConformance runs the shared store contract against rclone's local
// backend, which needs no credentials or network.
func TestConformance(t *testing.T) {
	storagetest.TestStore(t, func(t *testing.T) types.Store {
		store, err := rclone.New(context.Background(), t.TempDir(), types.Layout{Instance: "app", Store: "kv"})
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		return store
	})
}

func TestValuesLandUnderLayoutPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()

	store, err := rclone.New(ctx, root, types.Layout{Instance: "app", Store: "kv"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := store.Set(ctx, "user/7", "alice"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	want := filepath.Join(root, "driftcache", "app", "kv", "user%2f7")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("value file not found at %s: %v", want, err)
	}
}

func TestDropInstanceTargetsSiblingInstance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()

	alpha, err := rclone.New(ctx, root, types.Layout{Instance: "alpha", Store: "kv"})
	if err != nil {
		t.Fatalf("New(alpha) error: %v", err)
	}
	beta, err := rclone.New(ctx, root, types.Layout{Instance: "beta", Store: "kv"})
	if err != nil {
		t.Fatalf("New(beta) error: %v", err)
	}

	if err := alpha.Set(ctx, "k", "alpha-value"); err != nil {
		t.Fatalf("Set(alpha) error: %v", err)
	}
	if err := beta.Set(ctx, "k", "beta-value"); err != nil {
		t.Fatalf("Set(beta) error: %v", err)
	}

	if err := alpha.DropInstance(ctx, types.DropOptions{Instance: "beta"}); err != nil {
		t.Fatalf("DropInstance(beta) error: %v", err)
	}

	keys, err := beta.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys(beta) error: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("beta keys = %v, want none", keys)
	}
	if _, found, err := alpha.Get(ctx, "k"); err != nil || !found {
		t.Fatalf("Get(alpha) = found %v, err %v; want intact value", found, err)
	}
}

func TestDropInstanceRejectsTraversal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := rclone.New(ctx, t.TempDir(), types.Layout{Instance: "app", Store: "kv"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, opts := range []types.DropOptions{
		{Instance: ".."},
		{Store: "kv/../.."},
	} {
		if err := store.DropInstance(ctx, opts); err == nil {
			t.Fatalf("DropInstance(%+v) succeeded, want rejection", opts)
		}
	}
}

func TestQuotaReportsBackendUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := rclone.New(ctx, t.TempDir(), types.Layout{Instance: "app", Store: "kv"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	quota, err := store.Quota(ctx)
	if err != nil {
		t.Fatalf("Quota() error: %v", err)
	}
	if quota.Used <= 0 && quota.Total <= 0 {
		t.Fatalf("Quota() = %+v, want usage numbers from the backend", quota)
	}
}

func TestDriverOpensStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := driver.Open(ctx, &driver.Config{
		Type:   rclone.DriverName,
		Path:   t.TempDir(),
		Layout: types.Layout{Instance: "app", Store: "kv"},
	})
	if err != nil {
		t.Fatalf("driver.Open() error: %v", err)
	}

	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	value, found, err := store.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if value != "v" {
		t.Fatalf("Get() = %v, want %q", value, "v")
	}
}

// TestConformanceRemote runs the contract against a real rclone remote.
// Set DRIFTCACHE_TEST_RCLONE_REMOTE (e.g. "gdrive:driftcache-test") to
// enable it.
func TestConformanceRemote(t *testing.T) {
	remote := os.Getenv("DRIFTCACHE_TEST_RCLONE_REMOTE")
	if remote == "" {
		t.Skip("Skipping rclone remote tests - DRIFTCACHE_TEST_RCLONE_REMOTE not set")
	}

	storagetest.TestStore(t, func(t *testing.T) types.Store {
		ctx := context.Background()
		layout := types.Layout{
			Instance: fmt.Sprintf("conformance-%d", time.Now().UnixNano()),
			Store:    "kv",
		}
		store, err := rclone.New(ctx, remote, layout)
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		t.Cleanup(func() {
			_ = store.DropInstance(context.Background(), types.DropOptions{})
		})
		return store
	})
}
