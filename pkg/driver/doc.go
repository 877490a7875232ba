/*
Package driver implements the CSI services for node-local cache volumes.

The plugin presents ephemeral, node-local scratch space to the orchestrator
as ordinary CSI volumes. Unlike network storage there is no single backing
device: each node that mounts a volume gets its own independent directory,
and the interesting work is making sure all of those directories are found
and deleted when the volume goes away.

# Services

The binary serves different CSI service sets depending on its role:

	controller mode:  Identity + Controller  (one deployment per cluster)
	node mode:        Identity + Node        (daemonset, one per node)

Both listen on a unix socket for the orchestrator's sidecars.

	┌────────────────────────┐        ┌────────────────────────────┐
	│  provisioner sidecar    │        │  kubelet / registrar       │
	└──────────┬─────────────┘        └──────────┬─────────────────┘
	           │ unix socket                     │ unix socket
	           ▼                                 ▼
	┌────────────────────────┐        ┌────────────────────────────┐
	│  Identity + Controller  │        │  Identity + Node            │
	│  CreateVolume           │        │  NodePublishVolume          │
	│  DeleteVolume ──────────┼──┐     │    ├─ bind mount             │
	└────────────────────────┘  │     │    └─ RegisterPublish        │
	                            │     │  NodeUnpublishVolume         │
	                            │     └──────────┬─────────────────┘
	                            │                │
	                            ▼                ▼
	                   ┌───────────────────────────────┐
	                   │   cleanup protocol (pkg/cleanup)│
	                   └───────────────────────────────┘

# Controller Service

CreateVolume allocates nothing. The volume ID is derived deterministically
from the requested name, so a retried create returns the same ID with no
provisioning state held anywhere. Storage appears lazily, on each node, at
first publish.

DeleteVolume hands the volume to the cleanup protocol and returns success
even if the handoff fails. Failing the RPC would only make the
orchestrator retry against the same unhealthy record store, and the
reconciler's TTL already bounds how long an unresolved cleanup can exist.

Only mount volumes are supported; block capabilities are rejected. Any
access mode passes validation because sharing is an illusion here anyway:
every node sees its own private copy.

# Node Service

NodePublishVolume creates the volume's directory under the cache root and
bind-mounts it into the workload's target path, read-only via a remount
pass when requested. The publish then registers this node on the volume's
state record. Registration is best-effort by design: the mount is already
live, and a record-store hiccup must not make the workload unschedulable.
The cost of a lost registration is an untracked directory on this node,
which the deletion protocol handles as a leak named in the audit trail.

Volume IDs are validated before touching the filesystem. An ID that is not
of the generated form never reaches a path join, so a malicious ID cannot
direct the later deletion outside the cache root.

NodeUnpublishVolume unmounts the target. The local directory stays: cache
contents survive pod rescheduling onto the same node, and only volume
deletion removes them.

There is no staging. Volumes go straight from the cache root to the target
path, so NodeStage/NodeUnstage are not implemented and
NodeGetCapabilities advertises nothing.

# See Also

  - pkg/volume - directory layout and mount operations
  - pkg/cleanup - the deletion coordination the services feed into
*/
package driver
