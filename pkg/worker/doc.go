/*
Package worker implements the per-node cleanup loop.

Every node runs one Worker alongside its CSI node service. The worker's job
is local and narrow: find the volumes in the cleanup phase that this node
still owes a report for, delete their local directories, and report the
outcome on the shared record.

# Tick Cycle

	every interval:
	  list records with phase=cleanup
	  for each record:
	    skip if this node never held the volume
	    skip if this node already reported
	    skip if a deletion from an earlier tick is still running
	    spawn: delete directory → report completed/failed

Directory deletion runs in a goroutine per volume, guarded by an in-flight
set. A volume directory on a slow or wedged filesystem must not stall the
scan of other volumes, and a second tick arriving mid-deletion must not
start the same deletion twice.

# Outcome Reporting

The local deletion outcome is decided before the report is written, and a
report that fails to land does not change the outcome: the next tick sees
the record still pending for this node, re-runs the (idempotent) deletion,
and tries the report again. Deleting an already-absent directory counts as
success; "nothing to delete" and "deleted" are the same result as far as
the protocol is concerned.

A deletion error reports failed. The report is terminal for this node:
the cleanup converges with the failure on record rather than retrying a
broken filesystem forever, and the operator sees it in the audit events
and the cleanups_total{result="failed"} counter.

# Crash Safety

The worker keeps no state of its own. A node that restarts mid-cleanup
re-lists on its first tick and picks up exactly the records that still
lack its report. If the crash happened after the directory was removed but
before the report landed, the re-run deletes nothing and reports normally.

# See Also

  - pkg/cleanup - the update engine used to write reports
  - pkg/volume - the local directory driver
  - pkg/reconciler - the controller loop that consumes the reports
*/
package worker
