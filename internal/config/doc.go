/*
Package config provides configuration management for the driftcache stack
with multi-source support.

This package implements a layered configuration system: compiled-in
defaults, a YAML file, and environment variable overrides, applied in that
order. The resulting Configuration converts directly into the driver
config that opens a full write-back store.

# Configuration Structure

A configuration names the namespace both tiers share (instance and store,
placed by the layout section), describes each tier (driver name, path,
driver-specific options), and carries the ambient settings (logging,
status endpoint, metrics).

Configuration file format:

	instance: photos
	store: thumbnails

	layout:
	  root: driftcache

	local:
	  driver: local
	  path: /var/cache/driftcache

	remote:
	  driver: s3
	  path: media-archive
	  options:
	    region: us-west-2

	global:
	  log_level: INFO
	  log_format: json
	  status_port: 8080

	metrics:
	  enabled: true
	  namespace: driftcache

# Environment Variable Mapping

Every load-bearing field has a DRIFTCACHE_* override, preferred for
secrets and per-host paths:

	DRIFTCACHE_INSTANCE="photos"
	DRIFTCACHE_STORE="thumbnails"
	DRIFTCACHE_LOCAL_PATH="/mnt/fast/cache"
	DRIFTCACHE_REMOTE_DRIVER="s3"
	DRIFTCACHE_REMOTE_PATH="media-archive"
	DRIFTCACHE_LOG_LEVEL="DEBUG"
	DRIFTCACHE_STATUS_PORT="9090"

Malformed numeric overrides are ignored rather than fatal; Validate
reports the effective values afterwards.

# Usage

Loading and opening a stack:

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/driftcache/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	store, err := driver.Open(ctx, cfg.ToDriverConfig())

Validation checks that both tiers name a driver, that namespace segments
are free of path separators (they become directories on every backend),
and that logging and port settings are in range. It does not probe the
backends themselves; driver.Open does that.
*/
package config
