/*
Package cleanup implements the distributed cleanup coordination protocol.

When a cache volume is deleted, its data may exist on many nodes: every node
that ever ran a workload with the volume holds an independent local copy.
This package coordinates the deletion of all those copies without a leader,
without locks, and without any storage beyond the shared record store. The
only synchronization primitive is the store's compare-and-swap on a record's
version token.

# Architecture

Every volume has exactly one state record. All participants mutate it
through the same read-mutate-write cycle:

	┌──────────────┐    ┌──────────────┐    ┌──────────────┐
	│  Controller   │    │   Node A      │    │   Node B      │
	│  (delete)     │    │  (publish,    │    │  (publish,    │
	│               │    │   report)     │    │   report)     │
	└──────┬───────┘    └──────┬───────┘    └──────┬───────┘
	       │                   │                   │
	       │   Apply(mutate)   │   Apply(mutate)   │
	       ▼                   ▼                   ▼
	┌───────────────────────────────────────────────────────┐
	│                    Update Engine                       │
	│   read record → mutate copy → CAS write               │
	│   conflict? → backoff with jitter → fresh read         │
	└──────────────────────────┬────────────────────────────┘
	                           │
	                           ▼
	              ┌─────────────────────────┐
	              │   Shared Record Store    │
	              │   one record per volume  │
	              │   version token per write│
	              └─────────────────────────┘

Writers never coordinate with each other. Two nodes updating the same record
at the same time both read version N; the first write wins and bumps the
version, the second write fails with a conflict and retries against the
winner's data. Every mutation is idempotent, so replays and retries are
harmless.

# Volume Lifecycle

A record moves through two phases:

	active:   created on first publish; the membership set
	          (nodes_with_volume) grows as nodes publish the volume
	cleanup:  entered when deletion is requested; membership is frozen
	          and nodes report their local deletion outcomes

The record is deleted by the reconciler once every member node has reported
completed, failed, or decommissioned. A failed report is still a report:
a node with a broken disk must not block convergence for everyone else.

# Update Engine

Engine.Apply is the single write path for state records. A cycle:

 1. Read the record (or start fresh if createIfMissing)
 2. Apply the caller's Mutation to the in-memory state
 3. Write back under the version token from step 1
 4. On conflict, sleep with jittered exponential backoff and restart
    from step 1 with a fresh read

Backoff starts at 10ms, doubles per attempt, caps at 1s, and draws each
delay uniformly from [0, cap] (full jitter). After 15 attempts the engine
gives up with ErrConflictNotResolved; callers treat that as a transient
failure and rely on their control loop's next tick.

Mutations must be pure functions of the state. The engine may invoke a
mutation several times against different reads before one write lands, so
a mutation that performed I/O would repeat it.

# Coordinator

Coordinator wraps the engine with the two lifecycle entry points:

	coordinator := cleanup.NewCoordinator(store, recorder)

	// Node publishes a volume: join the membership set, creating the
	// record if this is the first publish anywhere
	err := coordinator.RegisterPublish(ctx, volumeID, nodeName)

	// Controller deletes the volume: freeze membership, flip the record
	// into the cleanup phase
	err = coordinator.RequestCleanup(ctx, volumeID)

RegisterPublish after cleanup has been requested is a no-op: the membership
set is frozen, and the publish that raced the deletion loses its tracking
entry. RequestCleanup for a volume with no record succeeds without creating
one; a volume that was never published has nothing to clean.

# Concurrency Properties

  - First report wins: a node appears in exactly one of the completed,
    failed, or decommissioned sets, whichever write landed first
  - First cleanup request wins: repeated deletion requests keep the
    original timestamp
  - No lost updates: every write is conditioned on the version it read
  - Convergence: once cleanup is requested, the pending set only shrinks

# See Also

  - pkg/recordstore - the CAS record store implementations
  - pkg/worker - the per-node loop that acts on cleanup records
  - pkg/reconciler - the controller loop that resolves and prunes records
*/
package cleanup
