/*
Package types defines the volume state model shared by every component.

VolumeState is the payload of a volume's record in the shared store. It
tracks which nodes ever held the volume and what each of them did about
its deletion:

	nodes_with_volume      every node that published the volume;
	                       grows only while the volume is active
	nodes_completed        nodes that deleted their local copy
	nodes_failed           nodes whose deletion failed
	nodes_decommissioned   nodes that left the cluster before reporting

The three reported sets are pairwise exclusive. A node's first report is
terminal: MarkCompleted, MarkFailed, and MarkDecommissioned all refuse to
touch a node that already appears in any set, so whichever write survives
the CAS race stands.

Cleanup is complete when every node in nodes_with_volume appears in some
reported set. A volume that was never published converges the moment
cleanup is requested.

All transition methods are idempotent and mutate only in memory; the CAS
discipline that makes concurrent use safe lives in pkg/cleanup. The
methods report whether they changed anything so callers can tell a fresh
transition from a replay.

Records are discovered by the phase label rather than by reading state:

	nlcache.csi.io/phase = active | cleanup

The label is derived from the state (PhaseActive until cleanup is
requested, PhaseCleanup after) and rewritten with every record update.
*/
package types
