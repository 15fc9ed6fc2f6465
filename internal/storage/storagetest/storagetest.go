// Package storagetest exercises the types.Store contract. Every adapter
// runs the suite from its own tests:
//
//	func TestConformance(t *testing.T) {
//		storagetest.TestStore(t, func(t *testing.T) types.Store {
//			return newAdapterForTest(t)
//		})
//	}
package storagetest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/types"
)

// Factory returns a fresh, empty store for one subtest. Implementations
// should register cleanup on t.
type Factory func(t *testing.T) types.Store

// roundTripValues are values every adapter must store and return
// unchanged. They are chosen to survive the value codec exactly, so the
// same table works for stores that hold values natively and stores that
// serialize them.
var roundTripValues = []struct {
	name  string
	value any
}{
	{"string", "hello world"},
	{"empty-string", ""},
	{"float", 3.25},
	{"bool", true},
	{"map", map[string]any{"a": 1.0, "b": []any{"x", 2.0}}},
	{"slice", []any{1.0, "two", false}},
	{"bytes", []byte{0, 1, 2, 0xff}},
	{"raw-buffer", codec.RawBuffer{9, 8, 7}},
	{"int16-slice", []int16{-1, 0, 258}},
	{"float64-slice", []float64{0, -1.5, 6.02e23}},
}

// TestStore runs the Store contract against the adapter behind open.
func TestStore(t *testing.T, open Factory) { //nolint:gocyclo
	t.Helper()
	ctx := context.Background()

	t.Run("GetAbsent", func(t *testing.T) {
		store := open(t)
		v, found, err := store.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if found || v != nil {
			t.Errorf("Get = %v, %v, want nil, false", v, found)
		}
	})

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		store := open(t)
		for _, tt := range roundTripValues {
			key := "value-" + tt.name
			if err := store.Set(ctx, key, tt.value); err != nil {
				t.Fatalf("Set %s: %v", tt.name, err)
			}
			got, found, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get %s: %v", tt.name, err)
			}
			if !found {
				t.Fatalf("Get %s: not found", tt.name)
			}
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("Get %s = %#v, want %#v", tt.name, got, tt.value)
			}
		}
	})

	t.Run("NilValueIsStored", func(t *testing.T) {
		store := open(t)
		if err := store.Set(ctx, "k", nil); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, found, err := store.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !found {
			t.Error("a key holding nil exists; only a missing key reports found=false")
		}
		if v != nil {
			t.Errorf("Get = %#v, want nil", v)
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 1 || keys[0] != "k" {
			t.Errorf("Keys = %v, want [k]", keys)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		store := open(t)
		if err := store.Set(ctx, "k", "first"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Set(ctx, "k", "second"); err != nil {
			t.Fatalf("Set again: %v", err)
		}
		v, _, err := store.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != "second" {
			t.Errorf("Get = %v, want second", v)
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 1 {
			t.Errorf("Keys = %v, want one entry", keys)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		store := open(t)
		if err := store.Remove(ctx, "never-set"); err != nil {
			t.Errorf("Remove of an absent key should be a no-op, got %v", err)
		}
		if err := store.Set(ctx, "k", "v"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Remove(ctx, "k"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		_, found, err := store.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if found {
			t.Error("key still present after Remove")
		}
	})

	t.Run("KeysSurviveSanitization", func(t *testing.T) {
		store := open(t)
		keys := []string{"plain", "Hello", "user/7:name", "with space", "café", "日本", "emoji-\U0001F600"}
		for i, key := range keys {
			if err := store.Set(ctx, key, float64(i)); err != nil {
				t.Fatalf("Set %q: %v", key, err)
			}
		}
		listed, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if !sameKeySet(listed, keys) {
			t.Errorf("Keys = %v, want %v in any order", listed, keys)
		}
		for i, key := range keys {
			v, found, err := store.Get(ctx, key)
			if err != nil || !found {
				t.Fatalf("Get %q: %v, %v", key, found, err)
			}
			if v != float64(i) {
				t.Errorf("Get %q = %v, want %v", key, v, float64(i))
			}
		}
	})

	t.Run("Iterate", func(t *testing.T) {
		store := open(t)
		want := []string{"a", "b", "c"}
		for _, key := range want {
			if err := store.Set(ctx, key, key); err != nil {
				t.Fatalf("Set %q: %v", key, err)
			}
		}
		var visited []string
		result, err := store.Iterate(ctx, func(key string) (any, error) {
			visited = append(visited, key)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if result != nil {
			t.Errorf("result = %v, want nil", result)
		}
		if !sameKeySet(visited, want) {
			t.Errorf("visited %v, want %v in any order", visited, want)
		}
	})

	t.Run("IterateStopsEarly", func(t *testing.T) {
		store := open(t)
		for _, key := range []string{"a", "b", "c"} {
			if err := store.Set(ctx, key, key); err != nil {
				t.Fatalf("Set %q: %v", key, err)
			}
		}
		visits := 0
		result, err := store.Iterate(ctx, func(key string) (any, error) {
			visits++
			return "stop", nil
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if result != "stop" {
			t.Errorf("result = %v, want stop", result)
		}
		if visits != 1 {
			t.Errorf("visits = %d, want 1", visits)
		}
	})

	t.Run("IterateVisitErrorPropagates", func(t *testing.T) {
		store := open(t)
		if err := store.Set(ctx, "k", "v"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		wantErr := fmt.Errorf("visit refused")
		_, err := store.Iterate(ctx, func(key string) (any, error) {
			return nil, wantErr
		})
		if err == nil {
			t.Fatal("Iterate should propagate the visit error")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := open(t)
		if err := store.Clear(ctx); err != nil {
			t.Errorf("Clear of an empty store should succeed, got %v", err)
		}
		for _, key := range []string{"a", "b"} {
			if err := store.Set(ctx, key, key); err != nil {
				t.Fatalf("Set %q: %v", key, err)
			}
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("Keys after Clear = %v, want none", keys)
		}
		if err := store.Set(ctx, "again", "v"); err != nil {
			t.Errorf("Set after Clear: %v", err)
		}
	})

	t.Run("DropOwnNamespace", func(t *testing.T) {
		store := open(t)
		for _, key := range []string{"a", "b"} {
			if err := store.Set(ctx, key, key); err != nil {
				t.Fatalf("Set %q: %v", key, err)
			}
		}
		if err := store.DropInstance(ctx, types.DropOptions{}); err != nil {
			t.Fatalf("DropInstance: %v", err)
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("Keys after drop = %v, want none", keys)
		}
		// Dropping an already-absent namespace is a no-op.
		if err := store.DropInstance(ctx, types.DropOptions{}); err != nil {
			t.Errorf("second DropInstance: %v", err)
		}
	})

	t.Run("MediumValue", func(t *testing.T) {
		store := open(t)
		big := make([]byte, 64<<10)
		for i := range big {
			big[i] = byte(i)
		}
		if err := store.Set(ctx, "big", big); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, found, err := store.Get(ctx, "big")
		if err != nil || !found {
			t.Fatalf("Get: %v, %v", found, err)
		}
		if !reflect.DeepEqual(got, big) {
			t.Error("large payload did not round-trip")
		}
	})
}

func sameKeySet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	g := append([]string(nil), got...)
	w := append([]string(nil), want...)
	sort.Strings(g)
	sort.Strings(w)
	return reflect.DeepEqual(g, w)
}
