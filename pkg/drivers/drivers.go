// Package drivers is a convenience package that registers all built-in
// storage drivers. Import it with a blank identifier to make all drivers
// available:
//
//	import _ "github.com/driftcache/driftcache/pkg/drivers"
package drivers

import (
	"github.com/driftcache/driftcache/pkg/driver"

	_ "github.com/driftcache/driftcache/internal/cache"
	_ "github.com/driftcache/driftcache/internal/storage/local"
	_ "github.com/driftcache/driftcache/internal/storage/memory"
	_ "github.com/driftcache/driftcache/internal/storage/rclone"
	_ "github.com/driftcache/driftcache/internal/storage/s3"
	_ "github.com/driftcache/driftcache/internal/storage/sqlite"
)

// Init ensures all built-in drivers are registered.
// This is called automatically by importing the package.
func Init() {}

// List returns the names of all registered storage drivers.
func List() []string {
	return driver.Drivers()
}
