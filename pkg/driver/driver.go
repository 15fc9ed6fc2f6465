// Package driver maintains the registry of storage drivers.
//
// Drivers register themselves from their package init, usually pulled in
// through a blank import:
//
//	import _ "github.com/driftcache/driftcache/internal/storage/memory"
//
// Applications then open stores by name:
//
//	store, err := driver.Open(ctx, &driver.Config{Type: "memory"})
//
// The write-back engine registers itself under the name "writeback", so a
// full cache stack is just a Config with Local and Remote sub-configs.
package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/driftcache/driftcache/pkg/errors"
	"github.com/driftcache/driftcache/pkg/types"
)

// Config describes one store to open. Exactly which fields matter depends
// on the driver named by Type.
type Config struct {
	// Type names a registered driver.
	Type string `yaml:"type" json:"type"`

	// Path locates the backing medium: a directory for file drivers, a
	// database file for sqlite, a bucket name for s3, or a remote spec
	// such as "gdrive:backup" for rclone.
	Path string `yaml:"path" json:"path"`

	// Layout places this store's namespace inside the backing medium.
	Layout types.Layout `yaml:"layout" json:"layout"`

	// Options carries driver-specific settings such as endpoints or
	// credentials profiles.
	Options map[string]string `yaml:"options" json:"options"`

	// Local and Remote configure the two tiers of a composite driver and
	// are ignored by plain storage drivers.
	Local  *Config `yaml:"local" json:"local,omitempty"`
	Remote *Config `yaml:"remote" json:"remote,omitempty"`
}

// Option returns a named option or fallback when it is unset.
func (c *Config) Option(name, fallback string) string {
	if v, ok := c.Options[name]; ok {
		return v
	}
	return fallback
}

// Descriptor describes a driver to the registry.
type Descriptor struct {
	// Name is the identifier used in Config.Type.
	Name string

	// Available reports whether the driver can run with the given config
	// in this environment. A nil probe means always available.
	Available func(cfg *Config) bool

	// Open initializes a store from the config.
	Open func(ctx context.Context, cfg *Config) (types.Store, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Descriptor)
)

// Register makes a driver available under its name. It panics when the
// name is empty, the descriptor has no Open function, or the name is
// already taken, since all of those are programmer errors in an init
// function.
func Register(d Descriptor) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d.Name == "" {
		panic("driftcache: Register called with empty driver name")
	}
	if d.Open == nil {
		panic("driftcache: Register called with nil Open for driver " + d.Name)
	}
	if _, dup := drivers[d.Name]; dup {
		panic("driftcache: Register called twice for driver " + d.Name)
	}
	drivers[d.Name] = d
}

// Open initializes the store described by cfg.
func Open(ctx context.Context, cfg *Config) (types.Store, error) {
	if cfg == nil || cfg.Type == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "store config has no driver type").
			WithComponent("driver")
	}

	driversMu.RLock()
	d, ok := drivers[cfg.Type]
	driversMu.RUnlock()
	if !ok {
		return nil, errors.NewError(errors.ErrCodeUnknownDriver,
			fmt.Sprintf("unknown driver %q (forgotten import?)", cfg.Type)).
			WithComponent("driver")
	}
	if d.Available != nil && !d.Available(cfg) {
		return nil, errors.NewError(errors.ErrCodeDriverUnavailable,
			fmt.Sprintf("driver %q is not available with this config", cfg.Type)).
			WithComponent("driver")
	}
	return d.Open(ctx, cfg)
}

// Drivers returns the sorted names of all registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
