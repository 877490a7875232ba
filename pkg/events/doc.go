/*
Package events provides the audit trail for the cleanup protocol.

Every notable transition in a volume's lifecycle produces an event: the
publish that added a node, the deletion request, each node's cleanup
outcome, decommissions, convergence, and TTL expiry. Events answer the
operator's question "what happened to this volume's data, and where".

Two sinks receive every event:

	Broker     in-process fan-out to subscribers plus a small ring of
	           recent events served by the admin API's /v1/events
	Store      the record store's event sink: corev1 Events in cluster
	           mode, a capped bucket in standalone mode

Recorder writes to both. All delivery is fire-and-forget: publishing never
blocks a control loop, a subscriber with a full channel misses the event,
and a store that cannot persist one logs and moves on. The record store
itself is the source of truth; events are commentary.

	broker := events.NewBroker()
	recorder := events.NewRecorder(broker, store)

	recorder.Normal(ctx, volumeID, events.ReasonCleanupRequested,
		"Cleanup requested, awaiting nodes: n1, n2")

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		// react to lifecycle transitions
	}
*/
package events
