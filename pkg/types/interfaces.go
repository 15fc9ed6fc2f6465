package types

import (
	"context"
	"time"
)

// Store is the file-oriented key/value contract shared by every storage
// backend and by the write-back engine itself. A Store holds the values of
// one namespace (one instance/store pair); keys are arbitrary strings and
// values are arbitrary serializable Go values.
//
// Absence is not an error: Get reports a missing key through its found
// result, Remove of a missing key is a no-op, and an empty namespace lists
// zero keys. Errors are reserved for real backend failures.
type Store interface {
	// Get returns the value stored under key. found is false when the key
	// is absent; err is non-nil only on backend failure.
	Get(ctx context.Context, key string) (value any, found bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value any) error

	// Remove deletes the value stored under key. Removing an absent key
	// succeeds silently.
	Remove(ctx context.Context, key string) error

	// Clear deletes every value in the namespace.
	Clear(ctx context.Context) error

	// Keys returns every key currently present, in the store's listing
	// order.
	Keys(ctx context.Context) ([]string, error)

	// Iterate calls visit for each key in listing order. Iteration stops
	// early when visit returns a non-nil result (which becomes Iterate's
	// result) or an error.
	Iterate(ctx context.Context, visit IterateFunc) (any, error)

	// DropInstance deletes a whole namespace. Zero-value options target the
	// store's own namespace; see DropOptions for wider scopes.
	DropInstance(ctx context.Context, opts DropOptions) error
}

// IterateFunc visits one key during Store.Iterate. Returning a non-nil
// result stops the iteration and surfaces the result to the caller;
// returning an error aborts the iteration with that error.
type IterateFunc func(key string) (result any, err error)

// DropOptions selects which namespace DropInstance removes.
type DropOptions struct {
	// Instance overrides the store's own instance name. Empty means the
	// store's own instance.
	Instance string

	// Store overrides the store's own store name. Empty together with a
	// non-empty Instance means every store under that instance.
	Store string
}

// QuotaEstimator is implemented by stores that can report capacity usage
// for their backing medium. Callers must feature-test with a type
// assertion; most backends have no meaningful quota.
type QuotaEstimator interface {
	Quota(ctx context.Context) (QuotaInfo, error)
}

// Closer is implemented by stores that hold releasable resources such as
// database handles or connection pools.
type Closer interface {
	Close() error
}

// MetricsRecorder receives operation telemetry from the engine. The
// engine calls it on its own goroutines; implementations must be safe for
// concurrent use. A nil recorder disables telemetry.
type MetricsRecorder interface {
	RecordOperation(operation string, duration time.Duration, err error)
	RecordRead(tier string)
	RecordMiss()
	RecordMigration(duration time.Duration, bytes int64, err error)

	// RecordMigrationSkipped marks a migration step that found its key
	// already gone, usually because a later write's step moved the newer
	// value first.
	RecordMigrationSkipped()

	RecordLatchTrip(operation string)
	SetCachedBytes(bytes int64)
}
