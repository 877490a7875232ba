/*
Package metrics defines the Prometheus metrics exported by the driver.

All metrics are registered at package load and served by the admin API's
/metrics endpoint.

Update engine (CAS contention is the protocol's health signal):

	nlcache_update_conflicts_total           version conflicts hit
	nlcache_update_retries_exhausted_total   mutations abandoned
	nlcache_update_duration_seconds          full cycle incl. retries

Node cleanup worker:

	nlcache_cleanups_total{result}           local deletions by outcome

Controller reconciler:

	nlcache_reconcile_cycles_total
	nlcache_reconcile_duration_seconds
	nlcache_records_pruned_total{reason}     complete vs ttl
	nlcache_nodes_decommissioned_total
	nlcache_pending_cleanups                 gauge of unresolved records

A steadily climbing conflicts counter is normal under bursty deletes; the
jittered backoff absorbs it. Retries-exhausted incrementing, or
pending_cleanups growing without records being pruned, is not normal and
usually means the record store is unhealthy or a node's worker is down.
*/
package metrics
