package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

// newTestEngine returns an engine that does not actually sleep between
// conflict retries
func newTestEngine(store recordstore.Store) *Engine {
	e := NewEngine(store)
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestApplyCreatesMissingRecord(t *testing.T) {
	store := recordstore.NewMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	state, err := engine.Apply(ctx, "v1", true, func(s *types.VolumeState) error {
		s.AddNode("node1")
		return nil
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !state.HasNode("node1") {
		t.Error("returned state missing mutation")
	}

	rec, err := store.Get(ctx, recordstore.RecordName("v1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !rec.State.HasNode("node1") {
		t.Error("stored state missing mutation")
	}
	if rec.Labels[types.LabelPhase] != types.PhaseActive {
		t.Errorf("phase label = %q, want active", rec.Labels[types.LabelPhase])
	}
}

func TestApplyMissingWithoutCreate(t *testing.T) {
	engine := newTestEngine(recordstore.NewMemStore())

	_, err := engine.Apply(context.Background(), "v1", false, func(s *types.VolumeState) error {
		return nil
	})
	if !errors.Is(err, recordstore.ErrNotFound) {
		t.Errorf("Apply() error = %v, want ErrNotFound", err)
	}
}

func TestApplyRetriesOnConflict(t *testing.T) {
	store := recordstore.NewMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, "v1", true, func(s *types.VolumeState) error {
		s.AddNode("node1")
		return nil
	}); err != nil {
		t.Fatalf("seed Apply() error = %v", err)
	}

	store.InjectConflicts(3)

	calls := 0
	state, err := engine.Apply(ctx, "v1", false, func(s *types.VolumeState) error {
		calls++
		s.AddNode("node2")
		return nil
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// Each conflict restarts the whole cycle from a fresh read
	if calls != 4 {
		t.Errorf("mutate called %d times, want 4", calls)
	}
	if !state.HasNode("node1") || !state.HasNode("node2") {
		t.Errorf("final state nodes = %v, want both node1 and node2", state.NodesWithVolume)
	}
}

func TestApplyExhaustsRetries(t *testing.T) {
	store := recordstore.NewMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, "v1", true, func(s *types.VolumeState) error {
		return nil
	}); err != nil {
		t.Fatalf("seed Apply() error = %v", err)
	}

	store.InjectConflicts(maxAttempts)

	_, err := engine.Apply(ctx, "v1", false, func(s *types.VolumeState) error {
		s.AddNode("node1")
		return nil
	})
	if !errors.Is(err, ErrConflictNotResolved) {
		t.Errorf("Apply() error = %v, want ErrConflictNotResolved", err)
	}
}

func TestApplyMutationErrorAborts(t *testing.T) {
	store := recordstore.NewMemStore()
	engine := newTestEngine(store)

	boom := errors.New("boom")
	_, err := engine.Apply(context.Background(), "v1", true, func(s *types.VolumeState) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Apply() error = %v, want wrapped mutation error", err)
	}
	if store.Len() != 0 {
		t.Error("failed mutation must not write a record")
	}
}

func TestApplyPhaseLabelFollowsState(t *testing.T) {
	store := recordstore.NewMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, "v1", true, func(s *types.VolumeState) error {
		s.AddNode("node1")
		return nil
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := engine.Apply(ctx, "v1", false, func(s *types.VolumeState) error {
		s.RequestCleanup(time.Now())
		return nil
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, err := store.Get(ctx, recordstore.RecordName("v1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Labels[types.LabelPhase] != types.PhaseCleanup {
		t.Errorf("phase label = %q, want cleanup", rec.Labels[types.LabelPhase])
	}
}

func TestJitteredDelayBounds(t *testing.T) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		for i := 0; i < 50; i++ {
			d := jitteredDelay(attempt)
			if d < 0 || d > maxDelay {
				t.Fatalf("jitteredDelay(%d) = %v, outside [0, %v]", attempt, d, maxDelay)
			}
		}
	}
}

func TestApplyContextCancelledDuringBackoff(t *testing.T) {
	store := recordstore.NewMemStore()
	engine := NewEngine(store)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := engine.Apply(ctx, "v1", true, func(s *types.VolumeState) error {
		return nil
	}); err != nil {
		t.Fatalf("seed Apply() error = %v", err)
	}

	store.InjectConflicts(maxAttempts)
	cancel()

	_, err := engine.Apply(ctx, "v1", false, func(s *types.VolumeState) error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Apply() error = %v, want context.Canceled", err)
	}
}
