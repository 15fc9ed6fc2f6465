// Package rclone provides a remote Store over any rclone-supported
// backend. The remote spec is anything rclone understands: a named
// remote from the user's config file ("gdrive:backup"), a connection
// string (":webdav,url='http://host':"), or a plain local path.
//
// One value is one object under the namespace layout, so a cache
// written through this store can be inspected and synced with the
// rclone CLI.
package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configfile"
	"github.com/rclone/rclone/fs/operations"

	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/driver"
	pkgerrors "github.com/driftcache/driftcache/pkg/errors"
	"github.com/driftcache/driftcache/pkg/retry"
	"github.com/driftcache/driftcache/pkg/sanitize"
	"github.com/driftcache/driftcache/pkg/types"
	"github.com/driftcache/driftcache/pkg/utils"
)

// DriverName is the registry name of the rclone driver.
const DriverName = "rclone"

func init() {
	driver.Register(driver.Descriptor{
		Name:      DriverName,
		Available: func(cfg *driver.Config) bool { return cfg.Path != "" },
		Open: func(ctx context.Context, cfg *driver.Config) (types.Store, error) {
			return New(ctx, cfg.Path, cfg.Layout)
		},
	})
}

// installConfig loads the user's rclone config file once per process.
// Named remotes resolve through it; connection strings and plain paths
// work without it.
var installConfig = sync.OnceFunc(configfile.Install)

// Store implements types.Store over an rclone remote.
type Store struct {
	remote  fs.Fs
	layout  types.Layout
	logger  *slog.Logger
	retrier *retry.Retryer
}

// New opens the rclone remote named by remotePath.
func New(ctx context.Context, remotePath string, layout types.Layout) (*Store, error) {
	if remotePath == "" {
		return nil, pkgerrors.NewError(pkgerrors.ErrCodeMissingConfig, "remote path is required").
			WithComponent("rclone-store")
	}
	installConfig()

	remote, err := fs.NewFs(ctx, remotePath)
	if err != nil {
		return nil, pkgerrors.NewError(pkgerrors.ErrCodeConnectionFailed,
			fmt.Sprintf("failed to open remote %q", remotePath)).
			WithComponent("rclone-store").WithCause(err)
	}

	return &Store{
		remote:  remote,
		layout:  layout,
		logger:  slog.Default().With("component", "rclone-store", "remote", remote.Name()),
		retrier: retry.New(retry.Config{}),
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	var data []byte
	found := true
	err := s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		obj, err := s.remote.NewObject(ctx, s.keyPath(key))
		if err != nil {
			if isNotFound(err) {
				found = false
				return nil
			}
			return s.wrapError(err, "NewObject", key)
		}
		rc, err := obj.Open(ctx)
		if err != nil {
			return s.wrapError(err, "Open", key)
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		if err != nil {
			return pkgerrors.NewError(pkgerrors.ErrCodeNetworkError, "failed to read object body").
				WithKey(key).WithCause(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	value, err := codec.Deserialize(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := codec.Serialize(value)
	if err != nil {
		return err
	}
	objectPath := s.keyPath(key)

	return s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		rc := io.NopCloser(bytes.NewReader(data))
		if _, err := operations.Rcat(ctx, s.remote, objectPath, rc, time.Now(), nil); err != nil {
			return s.wrapError(err, "Rcat", key)
		}
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		obj, err := s.remote.NewObject(ctx, s.keyPath(key))
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return s.wrapError(err, "NewObject", key)
		}
		if err := obj.Remove(ctx); err != nil {
			return s.wrapError(err, "Remove", key)
		}
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.purge(ctx, s.layout.Dir())
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		entries, err := s.remote.List(ctx, s.layout.Dir())
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return s.wrapError(err, "List", s.layout.Dir())
		}
		keys = keys[:0]
		for _, entry := range entries {
			if _, ok := entry.(fs.Object); !ok {
				continue
			}
			keys = append(keys, sanitize.Unsanitize(path.Base(entry.Remote())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

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

// DropInstance purges the directory the options select. The selectors
// become remote directory names, so they are validated before any path
// is formed.
func (s *Store) DropInstance(ctx context.Context, opts types.DropOptions) error {
	for _, seg := range []string{opts.Instance, opts.Store} {
		if err := utils.ValidateSegment(seg); err != nil {
			return fmt.Errorf("invalid drop target: %w", err)
		}
	}
	target := s.layout.DropDir(opts)
	if err := s.purge(ctx, target); err != nil {
		return err
	}
	s.logger.Debug("dropped namespace", "dir", target)
	return nil
}

// Quota reports the remote's capacity usage. Backends without usage
// reporting return a QUOTA_UNSUPPORTED error, which callers should
// treat the same as the Store not implementing the interface.
func (s *Store) Quota(ctx context.Context) (types.QuotaInfo, error) {
	about := s.remote.Features().About
	if about == nil {
		return types.QuotaInfo{}, pkgerrors.NewError(pkgerrors.ErrCodeQuotaUnsupported,
			fmt.Sprintf("remote %q does not report usage", s.remote.Name())).
			WithComponent("rclone-store")
	}
	usage, err := about(ctx)
	if err != nil {
		return types.QuotaInfo{}, s.wrapError(err, "About", s.remote.Name())
	}
	info := types.QuotaInfo{}
	if usage.Used != nil {
		info.Used = *usage.Used
	}
	if usage.Total != nil {
		info.Total = *usage.Total
	}
	return info, nil
}

func (s *Store) purge(ctx context.Context, dir string) error {
	return s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		if err := operations.Purge(ctx, s.remote, dir); err != nil {
			if isNotFound(err) {
				return nil
			}
			return s.wrapError(err, "Purge", dir)
		}
		return nil
	})
}

func (s *Store) keyPath(key string) string {
	return s.layout.KeyPath(sanitize.Sanitize(key))
}

// wrapError maps rclone failures onto the structured error system so
// the retryer can tell transient faults from permanent ones.
func (s *Store) wrapError(err error, operation, subject string) error {
	if isTimeout(err) {
		return pkgerrors.NewError(pkgerrors.ErrCodeConnectionTimeout,
			fmt.Sprintf("%s timed out for %s", operation, subject)).
			WithComponent("rclone-store").WithOperation(operation).WithCause(err)
	}
	return pkgerrors.NewError(pkgerrors.ErrCodeBackingStore,
		fmt.Sprintf("%s failed for %s", operation, subject)).
		WithComponent("rclone-store").WithOperation(operation).WithCause(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound)
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Compile-time interface checks.
var (
	_ types.Store          = (*Store)(nil)
	_ types.QuotaEstimator = (*Store)(nil)
)
