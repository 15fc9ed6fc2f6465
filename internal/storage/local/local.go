// Package local provides a Store over a directory tree. Each value is
// one file: the namespace layout supplies the directory, the sanitized
// key supplies the file name, and the value codec supplies the bytes.
//
// The store is backed by an afero filesystem, so tests can run it
// against an in-memory filesystem and production uses the real disk
// rooted at a base path.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/driver"
	"github.com/driftcache/driftcache/pkg/sanitize"
	"github.com/driftcache/driftcache/pkg/types"
	"github.com/driftcache/driftcache/pkg/utils"
)

// DriverName is the registry name of the directory-backed driver.
const DriverName = "local"

// partialSuffix marks files still being written. Sanitized key names
// never contain a dot, so the suffix cannot collide with a real key.
const partialSuffix = ".partial"

func init() {
	driver.Register(driver.Descriptor{
		Name:      DriverName,
		Available: func(cfg *driver.Config) bool { return cfg.Path != "" },
		Open: func(ctx context.Context, cfg *driver.Config) (types.Store, error) {
			return New(cfg.Path, cfg.Layout)
		},
	})
}

// Store implements types.Store over an afero filesystem.
type Store struct {
	fs     afero.Fs
	layout types.Layout
	logger *slog.Logger
}

// New creates a directory-backed store rooted at root on the real
// filesystem. The root directory is created if missing.
func New(root string, layout types.Layout) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create root %q: %w", absRoot, err)
	}
	s := NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), absRoot), layout)
	s.logger = s.logger.With("root", absRoot)
	return s, nil
}

// NewWithFs creates a store over a custom afero filesystem. Tests use
// this with afero.NewMemMapFs.
func NewWithFs(fs afero.Fs, layout types.Layout) *Store {
	return &Store{
		fs:     fs,
		layout: layout,
		logger: slog.Default().With("component", "local-store"),
	}
}

func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := afero.ReadFile(s.fs, s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read value file for %q: %w", key, err)
	}
	value, err := codec.Deserialize(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes the encoded value to a partial file and renames it into
// place, so a reader never observes a torn write.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := codec.Serialize(value)
	if err != nil {
		return err
	}
	path := s.keyPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create namespace directory: %w", err)
	}
	partial := path + partialSuffix
	if err := afero.WriteFile(s.fs, partial, data, 0o640); err != nil {
		return fmt.Errorf("failed to write value file for %q: %w", key, err)
	}
	if err := s.fs.Rename(partial, path); err != nil {
		_ = s.fs.Remove(partial)
		return fmt.Errorf("failed to commit value file for %q: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.fs.Remove(s.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete value file for %q: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.fs.RemoveAll(s.layout.Dir()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.layout.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list namespace: %w", err)
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || strings.HasSuffix(info.Name(), partialSuffix) {
			continue
		}
		keys = append(keys, sanitize.Unsanitize(info.Name()))
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

// DropInstance deletes the directory subtree the options select. The
// selectors become directory names, so they are validated before any
// path is formed.
func (s *Store) DropInstance(ctx context.Context, opts types.DropOptions) error {
	for _, seg := range []string{opts.Instance, opts.Store} {
		if err := utils.ValidateSegment(seg); err != nil {
			return fmt.Errorf("invalid drop target: %w", err)
		}
	}
	target := s.layout.DropDir(opts)
	if err := s.fs.RemoveAll(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to drop %q: %w", target, err)
	}
	s.logger.Debug("dropped namespace", "dir", target)
	return nil
}

func (s *Store) keyPath(key string) string {
	return s.layout.KeyPath(sanitize.Sanitize(key))
}

// Compile-time interface check.
var _ types.Store = (*Store)(nil)
