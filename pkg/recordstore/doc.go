/*
Package recordstore provides versioned record storage with compare-and-swap
semantics over pluggable backends.

The cleanup protocol needs exactly four things from its storage: read a
record with a version token, write it back conditioned on that token, list
records by label, and enumerate the cluster's nodes. The Store interface
captures those, and three implementations cover the deployment modes:

	KubeStore   production: records are ConfigMaps, the version token is
	            the object's resourceVersion, members come from the Nodes
	            API, events become corev1 Events on the record
	BoltStore   standalone mode: a local bbolt file with a monotonic
	            version counter per record and a fixed member list
	MemStore    tests: full CAS contract in memory, plus injection hooks
	            for conflicts and transport errors

# Record Layout

One record per volume, named by RecordName:

	nlc-vol-<volume_id>

Each record carries the volume's serialized state, an opaque version token,
and a phase label for list discovery:

	nlcache.csi.io/phase: active | cleanup

The worker and reconciler loops select on the label rather than reading
every record; only volumes in the cleanup phase cost anything per tick.

# CAS Contract

Replace writes rec.State under rec.Version. If the stored version differs,
the write fails with ErrConflict and nothing changes. Create fails with
ErrAlreadyExists if the key exists. All sentinel errors are wrapped, so
callers test with errors.Is:

	rec, err := store.Get(ctx, key)
	...
	rec.State.MarkCompleted(node)
	if _, err := store.Replace(ctx, rec); errors.Is(err, recordstore.ErrConflict) {
		// somebody else wrote first; re-read and retry
	}

Callers outside of tests never use this raw loop; pkg/cleanup's Engine owns
retries and backoff.

# Events

EmitEvent attaches an audit event to a record. Delivery is fire-and-forget:
event sinks are diagnostics, and a store that cannot write an event logs
and moves on rather than failing the operation that produced it. KubeStore
writes corev1 Events; BoltStore keeps a capped trail in a bucket; MemStore
collects them for test assertions.

# Malformed Records

List skips records whose payload fails to decode, logging a warning with
the record name. A single corrupted record (a hand-edited ConfigMap, a
version skew) must not take down every control loop that lists the phase.

# See Also

  - pkg/cleanup - the optimistic update engine built on this interface
  - pkg/types - the VolumeState payload stored in each record
*/
package recordstore
