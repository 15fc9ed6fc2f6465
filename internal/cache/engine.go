package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftcache/driftcache/internal/keylock"
	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/errors"
	"github.com/driftcache/driftcache/pkg/types"
)

// Config assembles a write-back engine from its two tiers.
type Config struct {
	// Local is the fast store that absorbs writes and serves hot reads.
	Local types.Store

	// Remote is the slow, durable store values migrate to.
	Remote types.Store

	// Logger receives engine events. Nil uses slog.Default.
	Logger *slog.Logger

	// Metrics receives operation telemetry. Nil disables it.
	Metrics types.MetricsRecorder

	// CloseStores makes Close also close the two tiers when they
	// implement types.Closer. Set when the engine owns stores it opened
	// itself.
	CloseStores bool
}

// Engine is a write-back cache that presents two stores as one. Writes
// commit to the local tier and return; a background step then migrates
// each value to the remote tier and evicts the local copy. Reads check
// local first and fall back to remote.
//
// All local-tier operations run in enqueue order on one stream, all
// remote-tier operations on another, so the engine never reorders two
// operations against the same tier. When any store call fails, the engine
// latches: the failed operation's caller sees the error, and every
// operation after that fails fast with ENGINE_LATCHED without touching
// either store. A latched engine never recovers; callers open a fresh one.
type Engine struct {
	local  types.Store
	remote types.Store

	localStream  *chain
	remoteStream *chain
	locks        *keylock.Locker

	logger  *slog.Logger
	metrics types.MetricsRecorder

	// bg detaches background migration from caller request contexts.
	bg context.Context

	closeStores bool

	mu    sync.Mutex
	fatal error // latch cause; set once, never cleared

	stats struct {
		mu          sync.Mutex
		localHits   uint64
		remoteHits  uint64
		misses      uint64
		migrations  uint64
		cachedBytes int64
	}
}

// New assembles an engine over the given tiers. Both chains start
// resolved, the latch is clear, and the cached-size counter is zero.
func New(cfg Config) (*Engine, error) {
	if cfg.Local == nil || cfg.Remote == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig,
			"write-back engine needs both a local and a remote store").
			WithComponent("cache")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Engine{
		local:        cfg.Local,
		remote:       cfg.Remote,
		localStream:  newChain(),
		remoteStream: newChain(),
		locks:        keylock.New(),
		logger:       logger.With("component", "writeback"),
		metrics:      metrics,
		bg:           context.Background(),
		closeStores:  cfg.CloseStores,
	}, nil
}

// Get returns the value under key, reading the local tier first and
// falling back to the remote tier. A key absent from both is reported
// through found, not an error.
func (e *Engine) Get(ctx context.Context, key string) (value any, found bool, err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("get", time.Since(start), err) }()

	if err = e.failFast("get"); err != nil {
		return nil, false, err
	}

	err = e.runLocal("get", key, func() error {
		var stepErr error
		value, found, stepErr = e.local.Get(ctx, key)
		return stepErr
	})
	if err != nil {
		return nil, false, err
	}
	if found {
		e.bumpLocalHit()
		return value, true, nil
	}

	err = e.runRemote("get", key, func() error {
		var stepErr error
		value, found, stepErr = e.remote.Get(ctx, key)
		return stepErr
	})
	if err != nil {
		return nil, false, err
	}
	if found {
		e.bumpRemoteHit()
		return value, true, nil
	}
	e.bumpMiss()
	return nil, false, nil
}

// Set commits value to the local tier and returns. Migration to the
// remote tier happens afterwards on the remote stream; its failures
// surface through the latch, not through Set's error.
func (e *Engine) Set(ctx context.Context, key string, value any) (err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("set", time.Since(start), err) }()

	if err = e.failFast("set"); err != nil {
		return err
	}

	estimate := codec.ApproxSize(value)
	e.addCachedBytes(estimate)

	err = e.runLocal("set", key, func() error {
		release := e.locks.Acquire(key)
		defer release()
		return e.local.Set(ctx, key, value)
	})
	if err != nil {
		return err
	}

	e.remoteStream.enqueue(func() { e.migrate(key, estimate) })
	return nil
}

// migrate moves one key's current local value to the remote tier. It
// re-reads under the per-key lock rather than using the value the
// triggering Set saw, so a burst of writes to one key migrates whatever
// is newest and later migration steps find nothing left to do.
//
// The step subtracts the estimate its Set added even when the key is
// already gone, keeping the cached-size counter paired add-for-subtract
// so it drains to zero with the queue.
func (e *Engine) migrate(key string, estimate int64) {
	start := time.Now()

	release := e.locks.Acquire(key)
	defer release()

	value, found, err := protectStep("migrate", func() (any, bool, error) {
		return e.local.Get(e.bg, key)
	})
	if err != nil {
		e.latch("migrate", err)
		e.metrics.RecordMigration(time.Since(start), 0, err)
		return
	}

	if found {
		if err := protect("migrate", func() error { return e.remote.Set(e.bg, key, value) }); err != nil {
			e.latch("migrate", err)
			e.metrics.RecordMigration(time.Since(start), 0, err)
			return
		}
		if err := protect("migrate", func() error { return e.local.Remove(e.bg, key) }); err != nil {
			e.latch("migrate", err)
			e.metrics.RecordMigration(time.Since(start), 0, err)
			return
		}
		moved := codec.ApproxSize(value)
		e.bumpMigration()
		e.metrics.RecordMigration(time.Since(start), moved, nil)
		e.logger.Debug("migrated value to remote tier", "key", key, "bytes", moved)
	} else {
		e.metrics.RecordMigrationSkipped()
	}

	e.addCachedBytes(-estimate)
}

// Remove deletes key from both tiers. The deletes run on their streams
// concurrently and both are attempted even when one fails.
func (e *Engine) Remove(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("remove", time.Since(start), err) }()

	if err = e.failFast("remove"); err != nil {
		return err
	}

	var localErr, remoteErr error
	localDone := e.localStream.enqueue(func() {
		localErr = protect("remove", func() error {
			release := e.locks.Acquire(key)
			defer release()
			return e.local.Remove(ctx, key)
		})
	})
	remoteDone := e.remoteStream.enqueue(func() {
		remoteErr = protect("remove", func() error {
			return e.remote.Remove(ctx, key)
		})
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		<-localDone
		if localErr != nil {
			e.latch("remove", localErr)
			return e.storeErr("remove", "local", localErr)
		}
		return nil
	})
	g.Go(func() error {
		<-remoteDone
		if remoteErr != nil {
			e.latch("remove", remoteErr)
			return e.storeErr("remove", "remote", remoteErr)
		}
		return nil
	})
	return g.Wait()
}

// Clear empties both tiers concurrently. The cached-size counter is not
// touched; the pending migration steps of cleared keys each subtract
// their own estimate as they drain.
func (e *Engine) Clear(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("clear", time.Since(start), err) }()

	if err = e.failFast("clear"); err != nil {
		return err
	}

	var localErr, remoteErr error
	localDone := e.localStream.enqueue(func() {
		localErr = protect("clear", func() error { return e.local.Clear(ctx) })
	})
	remoteDone := e.remoteStream.enqueue(func() {
		remoteErr = protect("clear", func() error { return e.remote.Clear(ctx) })
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		<-localDone
		if localErr != nil {
			e.latch("clear", localErr)
			return e.storeErr("clear", "local", localErr)
		}
		return nil
	})
	g.Go(func() error {
		<-remoteDone
		if remoteErr != nil {
			e.latch("clear", remoteErr)
			return e.storeErr("clear", "remote", remoteErr)
		}
		return nil
	})
	return g.Wait()
}

// Keys lists the local tier's keys followed by the remote tier's keys.
// A value caught mid-migration can appear in both lists; callers that
// need a set must dedupe.
func (e *Engine) Keys(ctx context.Context) (keys []string, err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("keys", time.Since(start), err) }()

	if err = e.failFast("keys"); err != nil {
		return nil, err
	}

	var localKeys, remoteKeys []string
	var localErr, remoteErr error
	localDone := e.localStream.enqueue(func() {
		localErr = protect("keys", func() error {
			var stepErr error
			localKeys, stepErr = e.local.Keys(ctx)
			return stepErr
		})
	})
	remoteDone := e.remoteStream.enqueue(func() {
		remoteErr = protect("keys", func() error {
			var stepErr error
			remoteKeys, stepErr = e.remote.Keys(ctx)
			return stepErr
		})
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		<-localDone
		if localErr != nil {
			e.latch("keys", localErr)
			return e.storeErr("keys", "local", localErr)
		}
		return nil
	})
	g.Go(func() error {
		<-remoteDone
		if remoteErr != nil {
			e.latch("keys", remoteErr)
			return e.storeErr("keys", "remote", remoteErr)
		}
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	keys = make([]string, 0, len(localKeys)+len(remoteKeys))
	keys = append(keys, localKeys...)
	keys = append(keys, remoteKeys...)
	return keys, nil
}

// Length reports how many keys Keys would list.
func (e *Engine) Length(ctx context.Context) (int, error) {
	keys, err := e.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// KeyAt returns the key at position index in Keys order. Indexing past
// the end fails with KEY_NOT_FOUND.
func (e *Engine) KeyAt(ctx context.Context, index int) (string, error) {
	keys, err := e.Keys(ctx)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(keys) {
		return "", errors.NewError(errors.ErrCodeKeyNotFound,
			fmt.Sprintf("key index %d out of range, store has %d keys", index, len(keys))).
			WithComponent("cache").
			WithOperation("keyAt")
	}
	return keys[index], nil
}

// Iterate visits every local key, then every remote key. A non-nil visit
// result stops the walk early and becomes Iterate's result. Keys caught
// mid-migration can be visited twice.
func (e *Engine) Iterate(ctx context.Context, visit types.IterateFunc) (result any, err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("iterate", time.Since(start), err) }()

	if err = e.failFast("iterate"); err != nil {
		return nil, err
	}

	err = e.runLocal("iterate", "", func() error {
		var stepErr error
		result, stepErr = e.local.Iterate(ctx, visit)
		return stepErr
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	err = e.runRemote("iterate", "", func() error {
		var stepErr error
		result, stepErr = e.remote.Iterate(ctx, visit)
		return stepErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DropInstance removes a whole namespace from both tiers concurrently.
func (e *Engine) DropInstance(ctx context.Context, opts types.DropOptions) (err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("drop_instance", time.Since(start), err) }()

	if err = e.failFast("dropInstance"); err != nil {
		return err
	}

	var localErr, remoteErr error
	localDone := e.localStream.enqueue(func() {
		localErr = protect("dropInstance", func() error { return e.local.DropInstance(ctx, opts) })
	})
	remoteDone := e.remoteStream.enqueue(func() {
		remoteErr = protect("dropInstance", func() error { return e.remote.DropInstance(ctx, opts) })
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		<-localDone
		if localErr != nil {
			e.latch("dropInstance", localErr)
			return e.storeErr("dropInstance", "local", localErr)
		}
		return nil
	})
	g.Go(func() error {
		<-remoteDone
		if remoteErr != nil {
			e.latch("dropInstance", remoteErr)
			return e.storeErr("dropInstance", "remote", remoteErr)
		}
		return nil
	})
	return g.Wait()
}

// Quota reports the remote tier's capacity usage. Remote stores without
// quota support fail with QUOTA_UNSUPPORTED.
func (e *Engine) Quota(ctx context.Context) (info types.QuotaInfo, err error) {
	start := time.Now()
	defer func() { e.metrics.RecordOperation("quota", time.Since(start), err) }()

	if err = e.failFast("quota"); err != nil {
		return types.QuotaInfo{}, err
	}

	estimator, ok := e.remote.(types.QuotaEstimator)
	if !ok {
		return types.QuotaInfo{}, errors.NewError(errors.ErrCodeQuotaUnsupported,
			"remote store cannot report capacity usage").
			WithComponent("cache").
			WithOperation("quota")
	}

	err = e.runRemote("quota", "", func() error {
		var stepErr error
		info, stepErr = estimator.Quota(ctx)
		return stepErr
	})
	if err != nil {
		return types.QuotaInfo{}, err
	}
	return info, nil
}

// CachedSize reports the running estimate of bytes written locally and
// not yet migrated. It reads a counter, not the stores, so it is
// synchronous and inexact: sizes are codec estimates, and an overwritten
// key counts once per pending write until those migration steps drain.
// The counter returns to zero whenever the migration queue is empty.
func (e *Engine) CachedSize() int64 {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	return e.stats.cachedBytes
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() types.CacheStats {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	return types.CacheStats{
		LocalHits:   e.stats.localHits,
		RemoteHits:  e.stats.remoteHits,
		Misses:      e.stats.misses,
		Migrations:  e.stats.migrations,
		CachedBytes: e.stats.cachedBytes,
		Latched:     e.latchCause() != nil,
	}
}

// Latched reports whether a background failure has latched the engine,
// and its cause.
func (e *Engine) Latched() (bool, error) {
	cause := e.latchCause()
	return cause != nil, cause
}

// Drain waits until every operation enqueued on either stream before the
// call has finished, including pending migrations. New operations may
// keep arriving; Drain does not wait for those.
func (e *Engine) Drain(ctx context.Context) error {
	for _, tail := range []<-chan struct{}{e.localStream.current(), e.remoteStream.current()} {
		select {
		case <-tail:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close drains both streams and, when the engine owns its tiers, closes
// them.
func (e *Engine) Close() error {
	if err := e.Drain(context.Background()); err != nil {
		return err
	}
	if !e.closeStores {
		return nil
	}
	var firstErr error
	for _, store := range []types.Store{e.local, e.remote} {
		if closer, ok := store.(types.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Helper methods

// runLocal enqueues fn on the local stream, waits for it, and latches on
// failure. The caller receives the failure wrapped as a backing-store
// error.
func (e *Engine) runLocal(op, key string, fn func() error) error {
	var stepErr error
	<-e.localStream.enqueue(func() {
		stepErr = protect(op, fn)
	})
	if stepErr != nil {
		e.latch(op, stepErr)
		return e.storeErr(op, "local", stepErr).WithKey(key)
	}
	return nil
}

// runRemote is runLocal against the remote stream.
func (e *Engine) runRemote(op, key string, fn func() error) error {
	var stepErr error
	<-e.remoteStream.enqueue(func() {
		stepErr = protect(op, fn)
	})
	if stepErr != nil {
		e.latch(op, stepErr)
		return e.storeErr(op, "remote", stepErr).WithKey(key)
	}
	return nil
}

// failFast returns the latched error every operation reports once the
// engine has shut.
func (e *Engine) failFast(op string) error {
	cause := e.latchCause()
	if cause == nil {
		return nil
	}
	return errors.NewError(errors.ErrCodeEngineLatched,
		"cache handle is latched after a background store failure").
		WithComponent("cache").
		WithOperation(op).
		WithCause(cause)
}

// latch records the first fatal error. Later failures keep the original
// cause.
func (e *Engine) latch(op string, cause error) {
	e.mu.Lock()
	first := e.fatal == nil
	if first {
		e.fatal = cause
	}
	e.mu.Unlock()

	if first {
		e.logger.Error("store failure latched the cache handle",
			"operation", op, "error", cause)
		e.metrics.RecordLatchTrip(op)
	}
}

func (e *Engine) latchCause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

func (e *Engine) storeErr(op, tier string, cause error) *errors.DriftCacheError {
	return errors.NewError(errors.ErrCodeBackingStore,
		fmt.Sprintf("%s store failed during %s", tier, op)).
		WithComponent("cache").
		WithOperation(op).
		WithCause(cause)
}

func (e *Engine) addCachedBytes(delta int64) {
	e.stats.mu.Lock()
	e.stats.cachedBytes += delta
	total := e.stats.cachedBytes
	e.stats.mu.Unlock()
	e.metrics.SetCachedBytes(total)
}

func (e *Engine) bumpLocalHit() {
	e.stats.mu.Lock()
	e.stats.localHits++
	e.stats.mu.Unlock()
	e.metrics.RecordRead("local")
}

func (e *Engine) bumpRemoteHit() {
	e.stats.mu.Lock()
	e.stats.remoteHits++
	e.stats.mu.Unlock()
	e.metrics.RecordRead("remote")
}

func (e *Engine) bumpMiss() {
	e.stats.mu.Lock()
	e.stats.misses++
	e.stats.mu.Unlock()
	e.metrics.RecordMiss()
}

func (e *Engine) bumpMigration() {
	e.stats.mu.Lock()
	e.stats.migrations++
	e.stats.mu.Unlock()
}

// protect converts a panicking step into an error so one bad callback or
// adapter cannot take the process down; the latch reports it instead.
func protect(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrCodePanicRecovered,
				fmt.Sprintf("panic during %s: %v", op, r)).
				WithComponent("cache").
				WithOperation(op).
				WithStack()
		}
	}()
	return fn()
}

// protectStep is protect for the three-valued read inside migrate.
func protectStep(op string, fn func() (any, bool, error)) (value any, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrCodePanicRecovered,
				fmt.Sprintf("panic during %s: %v", op, r)).
				WithComponent("cache").
				WithOperation(op).
				WithStack()
		}
	}()
	return fn()
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, time.Duration, error) {}
func (noopMetrics) RecordRead(string)                            {}
func (noopMetrics) RecordMiss()                                  {}
func (noopMetrics) RecordMigration(time.Duration, int64, error)  {}
func (noopMetrics) RecordMigrationSkipped()                      {}
func (noopMetrics) RecordLatchTrip(string)                       {}
func (noopMetrics) SetCachedBytes(int64)                         {}

// interface checks

var (
	_ types.Store          = (*Engine)(nil)
	_ types.QuotaEstimator = (*Engine)(nil)
	_ types.Closer         = (*Engine)(nil)
)
