/*
Package types provides the core interfaces, data structures, and type definitions for DriftCache.

This package serves as the foundation for the entire DriftCache system, defining the contracts
between different components and establishing the data structures used throughout the codebase.

# Architecture Overview

DriftCache follows a layered architecture with one interface at its center: every storage
backend, and the write-back engine that composes two of them, presents the same Store
contract:

	┌─────────────────────────────────────────────┐
	│              Application                    │
	│      (opens a Store via pkg/driver)         │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Write-Back Engine                 │
	│           (internal/cache)                  │
	└─────────────────────────────────────────────┘
	          │                       │
	┌─────────┴─────────┐   ┌─────────┴─────────┐
	│    Local Store    │   │   Remote Store    │
	│ (memory, sqlite,  │   │ (s3, rclone,      │
	│  local files)     │   │  local files)     │
	└───────────────────┘   └───────────────────┘

# Core Interfaces

Store Interface:
The file-oriented key/value contract. Get reports absence through a found
flag rather than an error, Remove of an absent key is a no-op, and Keys
lists the namespace in backend order. Because the engine implements Store
itself, a write-back cache can be stacked on top of any other Store,
including another engine.

QuotaEstimator Interface:
An optional extension for backends whose medium has a meaningful capacity,
such as remote drive accounts. Callers feature-test with a type assertion.

MetricsRecorder Interface:
Receives operation telemetry from the engine for Prometheus integration.
Implementations must be safe for concurrent use.

# Data Structures

Layout:
Describes where a namespace lives inside a backend's path space as up to
three path segments (root/instance/store), each independently omissible.
All path-shaped backends derive their directories and object prefixes from
a Layout, so data written through one backend can be read through another
that shares the same layout.

DropOptions:
Selects the namespace a DropInstance call removes, defaulting to the
store's own.

CacheStats:
A point-in-time snapshot of engine counters with JSON tags for status
endpoints.

# Design Principles

1. Absence is not an error: missing keys flow through found flags, keeping
error returns meaningful.

2. Contexts everywhere: every operation that may touch a slow medium takes
a context.Context, even when a particular backend ignores it.

3. Values, not bytes: Store carries arbitrary Go values. Backends that
need a byte representation apply the pkg/codec serialization at their own
boundary, so purely in-memory backends can skip it entirely.
*/
package types
