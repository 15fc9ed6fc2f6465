package cache

import (
	"context"

	"github.com/driftcache/driftcache/pkg/driver"
	"github.com/driftcache/driftcache/pkg/errors"
	"github.com/driftcache/driftcache/pkg/types"
)

// DriverName is the registry name of the write-back engine.
const DriverName = "writeback"

func init() {
	driver.Register(driver.Descriptor{
		Name:      DriverName,
		Available: func(cfg *driver.Config) bool { return cfg.Local != nil && cfg.Remote != nil },
		Open:      openDriver,
	})
}

// openDriver opens the two tier configs through the registry and stacks
// the engine on top. The engine owns the tiers it opened, so closing it
// closes them.
func openDriver(ctx context.Context, cfg *driver.Config) (types.Store, error) {
	if cfg.Local == nil || cfg.Remote == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig,
			"writeback driver needs local and remote store configs").
			WithComponent("cache")
	}

	local, err := driver.Open(ctx, cfg.Local)
	if err != nil {
		return nil, err
	}
	remote, err := driver.Open(ctx, cfg.Remote)
	if err != nil {
		closeStore(local)
		return nil, err
	}

	engine, err := New(Config{Local: local, Remote: remote, CloseStores: true})
	if err != nil {
		closeStore(local)
		closeStore(remote)
		return nil, err
	}
	return engine, nil
}

func closeStore(s types.Store) {
	if closer, ok := s.(types.Closer); ok {
		_ = closer.Close()
	}
}
