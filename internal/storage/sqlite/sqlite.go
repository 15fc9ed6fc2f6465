// Package sqlite provides a Store persisted in a single SQLite file.
// It suits local tiers that must survive restarts without bringing a
// directory tree: every namespace shares one database, values are
// codec-encoded blobs, and writes ride on WAL journaling.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/driver"
	"github.com/driftcache/driftcache/pkg/types"
)

// DriverName is the registry name of the SQLite driver.
const DriverName = "sqlite"

func init() {
	driver.Register(driver.Descriptor{
		Name:      DriverName,
		Available: func(cfg *driver.Config) bool { return cfg.Path != "" },
		Open: func(ctx context.Context, cfg *driver.Config) (types.Store, error) {
			return Open(cfg.Path, cfg.Layout)
		},
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      BLOB NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (namespace, key)
)`

// Store implements types.Store over a SQLite database. Keys are stored
// verbatim in their own column, so no filename sanitization applies;
// the namespace column carries the layout directory, which keeps
// DropInstance's subtree semantics as a prefix match.
type Store struct {
	db        *sql.DB
	namespace string
	layout    types.Layout
}

// Open opens or creates the database at path and prepares the cache
// table. The DSN enables WAL journaling and a busy timeout so several
// stores can share one file.
func Open(path string, layout types.Layout) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare cache table: %w", err)
	}
	return &Store{db: db, namespace: layout.Dir(), layout: layout}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	value, err := codec.Deserialize(blob)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := codec.Serialize(value)
	if err != nil {
		return err
	}
	// The upsert keeps the original rowid, so Keys preserves first-insertion
	// order across overwrites.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.namespace, key, blob, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ?`, s.namespace,
	)
	if err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE namespace = ? ORDER BY rowid`,
		s.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to list keys: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
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

// DropInstance deletes the namespace the options select and every
// namespace nested under it.
func (s *Store) DropInstance(ctx context.Context, opts types.DropOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.layout.DropDir(opts)
	prefix := target + "/"
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries
		  WHERE namespace = ?1 OR substr(namespace, 1, length(?2)) = ?2`,
		target, prefix,
	)
	if err != nil {
		return fmt.Errorf("failed to drop %q: %w", target, err)
	}
	return nil
}

// Quota reports the bytes of encoded values held in the store's
// namespace. Total is zero: the database grows with the disk.
func (s *Store) Quota(ctx context.Context) (types.QuotaInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.QuotaInfo{}, err
	}
	var used int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM cache_entries WHERE namespace = ?`,
		s.namespace,
	).Scan(&used)
	if err != nil {
		return types.QuotaInfo{}, fmt.Errorf("failed to measure namespace: %w", err)
	}
	return types.QuotaInfo{Used: used}, nil
}

// Compile-time interface checks.
var (
	_ types.Store          = (*Store)(nil)
	_ types.QuotaEstimator = (*Store)(nil)
	_ types.Closer         = (*Store)(nil)
)
