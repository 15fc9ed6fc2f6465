/*
Package cache implements the write-back engine that fronts a slow remote
store with a fast local one.

The engine presents the ordinary Store contract while splitting every
write into a fast foreground half and a slow background half. Writes
commit to the local tier and return immediately; a background migration
then copies each value to the remote tier and evicts the local copy.
Reads try the local tier first and fall back to the remote tier, so a
value is visible from the moment its Set returns, wherever it currently
lives.

# Engine Architecture

Two serialized operation streams, one per tier:

	          Set/Get/Remove/...
	                  │
	┌─────────────────────────────────────────────┐
	│                 Engine                      │
	│                                             │
	│   local stream            remote stream     │
	│   ┌──────────┐            ┌──────────┐      │
	│   │ step n   │            │ step n   │      │
	│   │ step n+1 │            │ step n+1 │      │
	│   │   ...    │──migrate──▶│   ...    │      │
	│   └──────────┘            └──────────┘      │
	│        │                        │           │
	└────────┼────────────────────────┼───────────┘
	         ▼                        ▼
	   ┌──────────┐             ┌──────────┐
	   │  Local   │             │  Remote  │
	   │  Store   │             │  Store   │
	   └──────────┘             └──────────┘

Every operation against one tier is enqueued on that tier's stream and
runs strictly in enqueue order, one at a time. Operations that touch both
tiers (Remove, Clear, Keys, DropInstance) enqueue one step per stream and
let the two run concurrently. Nothing reorders two operations aimed at
the same tier, which is what makes read-your-writes hold without any
cross-tier coordination.

# Migration

Each Set enqueues one migration step on the remote stream. The step does
not carry the written value. It re-reads the key from the local tier
under the per-key lock at the moment it runs, so:

  - A burst of writes to one key migrates whatever value is newest; the
    earlier migration steps find the key already gone and do nothing.
  - A Remove that beat the migration step wins; the migration finds
    nothing and does not resurrect the value.

The per-key lock (internal/keylock) serializes local-tier mutations of a
key against its migration, covering the gap between the migration's
re-read and its local eviction.

# Failure Latch

Background steps have no caller to report to, so the first failing store
call anywhere latches the engine: the cause is recorded once, and every
subsequent operation fails fast with ENGINE_LATCHED without touching
either store. Steps already enqueued still run (their callers are still
waiting), but no new work is accepted. The latch is one-way. There is no
recovery path, because after a half-applied failure the relationship
between the two tiers is unknown; callers inspect the cause, fix the
backing store, and open a fresh engine.

A failed foreground step both latches the engine and returns its error
to the caller, so the first failure is never silent.

# Size Accounting

The engine keeps a running estimate of bytes written locally and not yet
migrated. Each Set adds the codec estimate of its value synchronously,
and that Set's migration step subtracts the same estimate when it runs,
whether or not it still found anything to move. Adds and subtracts are
always paired, so the counter drains to exactly zero with the migration
queue, and in between it overstates rather than loses track when writes,
removes, and clears race. The counter is diagnostic; nothing in the
engine branches on it.

# Relation to Other Packages

The engine registers itself as the "writeback" driver, so pkg/driver can
assemble a full cache stack from one Config with Local and Remote
sub-configs. The tiers themselves are plain Stores from
internal/storage; the engine never looks behind that interface.
*/
package cache
