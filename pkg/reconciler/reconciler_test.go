package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

func newTestReconciler(store *recordstore.MemStore, maxAge time.Duration) *Reconciler {
	return New(store, events.NewRecorder(nil, store), time.Minute, maxAge)
}

func seedRecord(t *testing.T, store *recordstore.MemStore, state *types.VolumeState) {
	t.Helper()
	_, err := store.Create(context.Background(), recordstore.RecordName(state.VolumeID), recordstore.PhaseLabels(state), state)
	require.NoError(t, err)
}

func cleanupState(volumeID string, nodes ...string) *types.VolumeState {
	state := types.NewVolumeState(volumeID, time.Now().UTC())
	for _, n := range nodes {
		state.AddNode(n)
	}
	state.RequestCleanup(time.Now().UTC())
	return state
}

func TestReconcilerDeletesConvergedRecord(t *testing.T) {
	store := recordstore.NewMemStore("n1", "n2")
	r := newTestReconciler(store, DefaultMaxAge)

	state := cleanupState("v1", "n1", "n2")
	state.MarkCompleted("n1")
	state.MarkFailed("n2")
	seedRecord(t, store, state)

	r.tick(context.Background())

	assert.Equal(t, 0, store.Len(), "converged record should be deleted")

	evs := store.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, events.ReasonCleanupComplete, evs[len(evs)-1].Reason)
}

func TestReconcilerLeavesPendingRecord(t *testing.T) {
	store := recordstore.NewMemStore("n1", "n2")
	r := newTestReconciler(store, DefaultMaxAge)

	state := cleanupState("v1", "n1", "n2")
	state.MarkCompleted("n1")
	seedRecord(t, store, state)

	r.tick(context.Background())

	assert.Equal(t, 1, store.Len(), "record with a live pending node must survive")
}

func TestReconcilerDecommissionsDepartedNodes(t *testing.T) {
	// n2 published the volume but has since left the cluster
	store := recordstore.NewMemStore("n1")
	r := newTestReconciler(store, DefaultMaxAge)

	state := cleanupState("v1", "n1", "n2")
	state.MarkCompleted("n1")
	seedRecord(t, store, state)

	r.tick(context.Background())

	// Decommissioning n2 converges the record, so it is deleted in the same
	// cycle
	assert.Equal(t, 0, store.Len())

	var reasons []string
	for _, ev := range store.Events() {
		reasons = append(reasons, ev.Reason)
	}
	assert.Contains(t, reasons, events.ReasonNodeDecommissioned)
	assert.Contains(t, reasons, events.ReasonCleanupComplete)
}

func TestReconcilerDecommissionYieldsToLandedReport(t *testing.T) {
	store := recordstore.NewMemStore("n1")
	r := newTestReconciler(store, DefaultMaxAge)

	state := cleanupState("v1", "n2")
	state.MarkCompleted("n2")
	seedRecord(t, store, state)

	r.tick(context.Background())

	// n2 is gone from the cluster but already reported; the record converges
	// on its own report, not on a decommission
	assert.Equal(t, 0, store.Len())
	for _, ev := range store.Events() {
		assert.NotEqual(t, events.ReasonNodeDecommissioned, ev.Reason)
	}
}

func TestReconcilerTTLPrunesStuckRecord(t *testing.T) {
	store := recordstore.NewMemStore("n1", "n2")
	r := newTestReconciler(store, 24*time.Hour)

	state := cleanupState("v1", "n1", "n2")
	seedRecord(t, store, state)

	// First cycle: record is fresh, both nodes still pending
	r.tick(context.Background())
	assert.Equal(t, 1, store.Len())

	// Jump the clock past the TTL
	r.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	r.tick(context.Background())

	assert.Equal(t, 0, store.Len(), "expired record should be force pruned")

	evs := store.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.ReasonRecordExpired, last.Reason)
	assert.Equal(t, recordstore.SeverityWarning, last.Severity)
	assert.Contains(t, last.Message, "n1")
	assert.Contains(t, last.Message, "n2")
}

func TestReconcilerTTLDisabled(t *testing.T) {
	store := recordstore.NewMemStore("n1")
	r := newTestReconciler(store, 0)

	state := cleanupState("v1", "n1")
	seedRecord(t, store, state)

	r.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	r.tick(context.Background())

	assert.Equal(t, 1, store.Len(), "maxAge 0 must never force-prune")
}

func TestReconcilerDeleteFailureRetriedNextCycle(t *testing.T) {
	store := recordstore.NewMemStore("n1")
	r := newTestReconciler(store, DefaultMaxAge)

	state := cleanupState("v1", "n1")
	state.MarkCompleted("n1")
	seedRecord(t, store, state)

	store.FailDeletesWith(errors.New("connection refused"))
	r.tick(context.Background())
	assert.Equal(t, 1, store.Len(), "record survives a failed delete")

	store.FailDeletesWith(nil)
	r.tick(context.Background())
	assert.Equal(t, 0, store.Len())
}

func TestReconcilerIgnoresActiveRecords(t *testing.T) {
	store := recordstore.NewMemStore("n1")
	r := newTestReconciler(store, DefaultMaxAge)

	state := types.NewVolumeState("v1", time.Now().UTC().Add(-48*time.Hour))
	state.AddNode("n1")
	seedRecord(t, store, state)

	r.tick(context.Background())

	// Active records are outside the cleanup sweep entirely, however old
	assert.Equal(t, 1, store.Len())
}
