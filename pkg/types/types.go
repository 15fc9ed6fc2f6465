package types

import (
	"path"
)

// DefaultRoot is the directory segment that namespaces every value a
// backend writes when no explicit root is configured. Keeping all data
// under one well-known folder lets several applications share a remote
// account without colliding.
const DefaultRoot = "driftcache"

// Layout describes where one namespace lives inside a backend's path
// space. Backends join its segments with "/" to form directories and
// object prefixes, so the same layout works for real filesystems, object
// stores and remote-drive paths.
type Layout struct {
	// Root is the top-level folder. Empty means DefaultRoot unless
	// OmitRoot is set.
	Root string `json:"root" yaml:"root"`

	// Instance is the middle path segment, usually the application name.
	Instance string `json:"instance" yaml:"instance"`

	// Store is the innermost path segment, one logical table of values.
	Store string `json:"store" yaml:"store"`

	// OmitRoot drops the root segment entirely. Data then lives directly
	// under the backend's base path.
	OmitRoot bool `json:"omit_root" yaml:"omit_root"`

	// OmitInstance drops the instance segment.
	OmitInstance bool `json:"omit_instance" yaml:"omit_instance"`

	// OmitStore drops the store segment.
	OmitStore bool `json:"omit_store" yaml:"omit_store"`
}

// Dir returns the directory that holds this namespace's value files,
// relative to the backend's base path. Omitted segments are skipped, so
// the result ranges from "" (everything omitted) to "root/instance/store".
func (l Layout) Dir() string {
	return l.dirFor(l.Instance, l.Store, l.OmitInstance, l.OmitStore)
}

// KeyPath returns the path of the value file for an already-sanitized
// key name.
func (l Layout) KeyPath(sanitized string) string {
	return path.Join(l.Dir(), sanitized)
}

// DropDir resolves the directory targeted by a DropInstance call. Empty
// option fields fall back to the layout's own segments, so the zero value
// targets this namespace and {Instance: "other"} targets every store of
// the "other" instance.
func (l Layout) DropDir(opts DropOptions) string {
	instance := opts.Instance
	store := opts.Store
	if instance == "" && store == "" {
		return l.Dir()
	}
	if instance == "" {
		instance = l.Instance
	}
	// A named instance with no store targets the whole instance subtree.
	return l.dirFor(instance, store, l.OmitInstance, store == "" || l.OmitStore)
}

func (l Layout) dirFor(instance, store string, omitInstance, omitStore bool) string {
	segs := make([]string, 0, 3)
	if !l.OmitRoot {
		root := l.Root
		if root == "" {
			root = DefaultRoot
		}
		segs = append(segs, root)
	}
	if !omitInstance && instance != "" {
		segs = append(segs, instance)
	}
	if !omitStore && store != "" {
		segs = append(segs, store)
	}
	return path.Join(segs...)
}

// CacheStats is a point-in-time snapshot of engine counters, suitable for
// JSON status endpoints.
type CacheStats struct {
	LocalHits   uint64 `json:"local_hits"`
	RemoteHits  uint64 `json:"remote_hits"`
	Misses      uint64 `json:"misses"`
	Migrations  uint64 `json:"migrations"`
	CachedBytes int64  `json:"cached_bytes"`
	Latched     bool   `json:"latched"`
}

// QuotaInfo reports backend capacity usage in bytes. Total is zero when
// the backend imposes no limit.
type QuotaInfo struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}
