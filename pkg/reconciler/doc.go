/*
Package reconciler implements the controller-side sweep over cleanup records.

Nodes report their own deletions; somebody still has to notice when a
cleanup has converged, when a node will never report because it left the
cluster, and when a record has been stuck so long that waiting is worse
than leaking. That somebody is the reconciler, which runs next to the CSI
controller service.

# Sweep Cycle

	every interval:
	  list records with phase=cleanup
	  snapshot cluster membership once
	  for each record:
	    mark pending nodes absent from the snapshot as decommissioned
	    if every member node has reported → delete the record
	    else if the record is older than the TTL → delete it anyway

One membership snapshot per cycle keeps the view consistent: every record
in a cycle is judged against the same cluster, and the store is asked for
the node list once rather than once per record.

# Decommissioned Nodes

A pending node that no longer appears in the cluster will never run its
cleanup worker again. The reconciler reports decommissioned on its behalf
so the record can converge. The write goes through the same CAS engine as
everything else, and MarkDecommissioned yields to any report the node
itself managed to land first.

A node that is merely restarting can be briefly absent from the membership
view and get marked decommissioned even though its data survives. The TTL
and phase label keep the damage bounded, and the audit event names the
node so the operator can chase the directory down.

# TTL Pruning

A record whose cleanup has been unresolved for longer than the configured
maximum age is deleted with a warning event listing the nodes that never
reported. Those nodes may still hold data; the operator trades a bounded
leak for not accumulating records forever. The clock starts at the cleanup
request. A maximum age of zero disables pruning entirely.

# Statelessness

The reconciler holds nothing between cycles, so running several controller
replicas is safe: both sweep the same records, both writes go through CAS,
and deleting a record that another replica already deleted is success.

# Metrics

	nlcache_reconcile_cycles_total
	nlcache_reconcile_duration_seconds
	nlcache_records_pruned_total{reason="complete"|"ttl"}
	nlcache_nodes_decommissioned_total
	nlcache_pending_cleanups

# See Also

  - pkg/worker - the node-side loop producing the reports
  - pkg/cleanup - the CAS update engine
*/
package reconciler
