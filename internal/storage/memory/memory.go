// Package memory provides an in-memory Store. It backs tests and serves
// as an ephemeral local tier for engines that do not need the cache to
// survive a restart.
//
// The config Path names the backing medium, exactly as it does for the
// file-shaped adapters: stores opened through the driver registry with
// the same path share one process-wide namespace collection, so equal
// layouts see the same data and DropInstance can address sibling
// namespaces, while distinct paths are fully independent media. A
// write-back stack with two memory tiers therefore needs two paths. New
// returns a store with a private medium for isolated tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/driver"
	"github.com/driftcache/driftcache/pkg/types"
)

// DriverName is the registry name of the in-memory driver.
const DriverName = "memory"

func init() {
	driver.Register(driver.Descriptor{
		Name:      DriverName,
		Available: func(*driver.Config) bool { return true },
		Open: func(ctx context.Context, cfg *driver.Config) (types.Store, error) {
			return newStore(sharedMedium(cfg.Path), cfg.Layout), nil
		},
	})
}

// registry is one medium: a collection of namespaces addressable by
// their layout directory.
type registry struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
}

// namespace holds one instance/store pair's values in insertion order.
type namespace struct {
	values map[string]any
	order  []string
}

// media holds the process-wide named media handed out by the driver.
var (
	mediaMu sync.Mutex
	media   = make(map[string]*registry)
)

func sharedMedium(path string) *registry {
	mediaMu.Lock()
	defer mediaMu.Unlock()
	reg, ok := media[path]
	if !ok {
		reg = &registry{namespaces: make(map[string]*namespace)}
		media[path] = reg
	}
	return reg
}

// Store implements types.Store over a namespace in a registry. Values
// are held by reference, not copied; callers must treat stored values
// as immutable.
type Store struct {
	layout types.Layout
	reg    *registry
	dir    string
}

// New returns a memory store with a private medium, isolated from
// stores opened through the driver registry.
func New(layout types.Layout) *Store {
	return newStore(&registry{namespaces: make(map[string]*namespace)}, layout)
}

func newStore(reg *registry, layout types.Layout) *Store {
	return &Store{layout: layout, reg: reg, dir: layout.Dir()}
}

func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	ns, ok := s.reg.namespaces[s.dir]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns.values[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	ns, ok := s.reg.namespaces[s.dir]
	if !ok {
		ns = &namespace{values: make(map[string]any)}
		s.reg.namespaces[s.dir] = ns
	}
	if _, exists := ns.values[key]; !exists {
		ns.order = append(ns.order, key)
	}
	ns.values[key] = value
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	ns, ok := s.reg.namespaces[s.dir]
	if !ok {
		return nil
	}
	if _, exists := ns.values[key]; !exists {
		return nil
	}
	delete(ns.values, key)
	for i, k := range ns.order {
		if k == key {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	delete(s.reg.namespaces, s.dir)
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	ns, ok := s.reg.namespaces[s.dir]
	if !ok {
		return nil, nil
	}
	keys := make([]string, len(ns.order))
	copy(keys, ns.order)
	return keys, nil
}

// Iterate visits keys in insertion order. The visit callback runs
// outside the store's lock, so it may call back into the store.
func (s *Store) Iterate(ctx context.Context, visit types.IterateFunc) (any, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		result, err := visit(key)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

// DropInstance removes every namespace under the directory the options
// select: the store's own namespace by default, or a named sibling
// instance (optionally narrowed to one of its stores).
func (s *Store) DropInstance(ctx context.Context, opts types.DropOptions) error {
	target := s.layout.DropDir(opts)
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	for dir := range s.reg.namespaces {
		if dir == target || strings.HasPrefix(dir, target+"/") {
			delete(s.reg.namespaces, dir)
		}
	}
	return nil
}

// Quota reports the estimated bytes held in the store's namespace.
// Total is zero: memory is bounded only by the process.
func (s *Store) Quota(ctx context.Context) (types.QuotaInfo, error) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	var used int64
	if ns, ok := s.reg.namespaces[s.dir]; ok {
		for _, v := range ns.values {
			used += codec.ApproxSize(v)
		}
	}
	return types.QuotaInfo{Used: used}, nil
}

// Compile-time interface checks.
var (
	_ types.Store          = (*Store)(nil)
	_ types.QuotaEstimator = (*Store)(nil)
)
