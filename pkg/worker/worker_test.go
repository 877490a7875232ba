package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
	"github.com/nlcache/nlcache/pkg/volume"
)

// fakeDriver records Remove calls and can fail on demand
type fakeDriver struct {
	mu      sync.Mutex
	calls   []string
	failErr error
}

func (d *fakeDriver) Remove(volumeID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, volumeID)
	if d.failErr != nil {
		return false, d.failErr
	}
	return true, nil
}

func (d *fakeDriver) removeCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func seedCleanupRecord(t *testing.T, store *recordstore.MemStore, volumeID string, nodes ...string) {
	t.Helper()
	state := types.NewVolumeState(volumeID, time.Now().UTC())
	for _, n := range nodes {
		state.AddNode(n)
	}
	state.RequestCleanup(time.Now().UTC())
	_, err := store.Create(context.Background(), recordstore.RecordName(volumeID), recordstore.PhaseLabels(state), state)
	require.NoError(t, err)
}

func newTestWorker(store *recordstore.MemStore, driver LocalDriver) *Worker {
	return New(store, driver, events.NewRecorder(nil, store), "n1", time.Minute)
}

func runTick(w *Worker) {
	w.tick(context.Background())
	w.wg.Wait()
}

func TestWorkerProcessesCleanupRecord(t *testing.T) {
	store := recordstore.NewMemStore()
	driver := &fakeDriver{}
	w := newTestWorker(store, driver)

	seedCleanupRecord(t, store, "v1", "n1", "n2")
	runTick(w)

	assert.Equal(t, []string{"v1"}, driver.removeCalls())

	rec, err := store.Get(context.Background(), recordstore.RecordName("v1"))
	require.NoError(t, err)
	assert.True(t, rec.State.HasReported("n1"))
	assert.Contains(t, rec.State.NodesCompleted, "n1")
	assert.False(t, rec.State.IsCleanupComplete(), "n2 has not reported yet")
}

func TestWorkerDeletesRealDirectory(t *testing.T) {
	store := recordstore.NewMemStore()
	driver, err := volume.NewLocalDriver(t.TempDir())
	require.NoError(t, err)
	w := newTestWorker(store, driver)

	path, err := driver.Create("v1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+"/cache.bin", []byte("data"), 0644))

	seedCleanupRecord(t, store, "v1", "n1")
	runTick(w)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "volume directory should be gone")

	rec, err := store.Get(context.Background(), recordstore.RecordName("v1"))
	require.NoError(t, err)
	assert.True(t, rec.State.IsCleanupComplete())
}

func TestWorkerSkipsNonMember(t *testing.T) {
	store := recordstore.NewMemStore()
	driver := &fakeDriver{}
	w := newTestWorker(store, driver)

	seedCleanupRecord(t, store, "v1", "other-node")
	runTick(w)

	assert.Empty(t, driver.removeCalls())
}

func TestWorkerSkipsAlreadyReported(t *testing.T) {
	store := recordstore.NewMemStore()
	driver := &fakeDriver{}
	w := newTestWorker(store, driver)

	state := types.NewVolumeState("v1", time.Now().UTC())
	state.AddNode("n1")
	state.RequestCleanup(time.Now().UTC())
	state.MarkCompleted("n1")
	_, err := store.Create(context.Background(), recordstore.RecordName("v1"), recordstore.PhaseLabels(state), state)
	require.NoError(t, err)

	runTick(w)

	assert.Empty(t, driver.removeCalls(), "a reported node must not re-run the deletion")
}

func TestWorkerMarksFailed(t *testing.T) {
	store := recordstore.NewMemStore()
	driver := &fakeDriver{failErr: errors.New("read-only filesystem")}
	w := newTestWorker(store, driver)

	seedCleanupRecord(t, store, "v1", "n1")
	runTick(w)

	rec, err := store.Get(context.Background(), recordstore.RecordName("v1"))
	require.NoError(t, err)
	assert.Contains(t, rec.State.NodesFailed, "n1")

	// A failed node still counts toward convergence
	assert.True(t, rec.State.IsCleanupComplete())

	evs := store.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, events.ReasonNodeCleanupFailed, evs[len(evs)-1].Reason)
	assert.Equal(t, recordstore.SeverityWarning, evs[len(evs)-1].Severity)
}

func TestWorkerStatusUpdateFailureDoesNotUndoCleanup(t *testing.T) {
	store := recordstore.NewMemStore()
	driver := &fakeDriver{}
	w := newTestWorker(store, driver)

	seedCleanupRecord(t, store, "v1", "n1")

	store.FailReplacesWith(errors.New("connection refused"))
	runTick(w)

	rec, err := store.Get(context.Background(), recordstore.RecordName("v1"))
	require.NoError(t, err)
	assert.False(t, rec.State.HasReported("n1"), "report must not have landed")

	// Next tick retries both the (idempotent) deletion and the report
	store.FailReplacesWith(nil)
	runTick(w)

	rec, err = store.Get(context.Background(), recordstore.RecordName("v1"))
	require.NoError(t, err)
	assert.Contains(t, rec.State.NodesCompleted, "n1")
	assert.Equal(t, []string{"v1", "v1"}, driver.removeCalls())
}
