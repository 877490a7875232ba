package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nlcache/nlcache/pkg/cleanup"
	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/metrics"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

// Worker is the per-node cleanup loop. Each tick it lists the records in
// the cleanup phase, deletes the local directory for every volume this node
// still owes a report for, and reports the outcome through the update
// engine.
//
// Directory deletion runs in its own goroutine per volume: a slow
// network-backed filesystem must not stall the loop's handling of other
// volumes or its timer.
type Worker struct {
	store    recordstore.Store
	engine   *cleanup.Engine
	driver   LocalDriver
	recorder *events.Recorder
	nodeName string
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// LocalDriver is the slice of pkg/volume the worker needs
type LocalDriver interface {
	Remove(volumeID string) (bool, error)
}

// New creates a cleanup worker bound to this node's name
func New(store recordstore.Store, driver LocalDriver, recorder *events.Recorder, nodeName string, interval time.Duration) *Worker {
	return &Worker{
		store:    store,
		engine:   cleanup.NewEngine(store),
		driver:   driver,
		recorder: recorder,
		nodeName: nodeName,
		interval: interval,
		logger:   log.WithComponent("cleanup-worker").With().Str("node", nodeName).Logger(),
		inflight: make(map[string]struct{}),
	}
}

// Run drives the worker until ctx is cancelled, then waits for in-flight
// deletions to finish
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("Starting cleanup worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping cleanup worker")
			w.wg.Wait()
			return
		}
	}
}

// tick scans for cleanup records that need this node's action. Transport
// errors end the tick; the next one retries naturally.
func (w *Worker) tick(ctx context.Context) {
	records, err := w.store.List(ctx, map[string]string{types.LabelPhase: types.PhaseCleanup})
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list cleanup records")
		return
	}

	for _, rec := range records {
		state := rec.State
		if !state.HasNode(w.nodeName) {
			continue
		}
		if state.HasReported(w.nodeName) {
			// Re-entry after a restart: our report already landed
			continue
		}
		if !w.acquire(state.VolumeID) {
			// Deletion from an earlier tick is still running
			continue
		}

		w.wg.Add(1)
		go w.process(ctx, state.VolumeID)
	}
}

// process deletes the local directory for one volume and reports the
// outcome. A failure to report never retroactively fails the deletion; the
// record keeps the local truth on the next tick.
func (w *Worker) process(ctx context.Context, volumeID string) {
	defer w.wg.Done()
	defer w.release(volumeID)

	removed, err := w.driver.Remove(volumeID)

	var mutate cleanup.Mutation
	if err != nil {
		w.logger.Error().Err(err).Str("volume_id", volumeID).
			Msg("Failed to delete local volume directory")
		metrics.CleanupsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		w.recorder.Warning(ctx, volumeID, events.ReasonNodeCleanupFailed,
			fmt.Sprintf("Node %s failed to delete local data: %v", w.nodeName, err))
		mutate = func(s *types.VolumeState) error {
			s.MarkFailed(w.nodeName)
			return nil
		}
	} else {
		if removed {
			w.logger.Info().Str("volume_id", volumeID).Msg("Deleted local volume directory")
		} else {
			w.logger.Debug().Str("volume_id", volumeID).Msg("No local directory to delete")
		}
		metrics.CleanupsTotal.WithLabelValues(metrics.ResultCompleted).Inc()
		w.recorder.Normal(ctx, volumeID, events.ReasonNodeCleaned,
			fmt.Sprintf("Node %s deleted its local data", w.nodeName))
		mutate = func(s *types.VolumeState) error {
			s.MarkCompleted(w.nodeName)
			return nil
		}
	}

	// Status reporting is best-effort: the local outcome stands even if the
	// report cannot be written this tick
	if _, err := w.engine.Apply(ctx, volumeID, false, mutate); err != nil {
		w.logger.Warn().Err(err).Str("volume_id", volumeID).
			Msg("Failed to report cleanup status, will retry next tick")
	}
}

func (w *Worker) acquire(volumeID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[volumeID]; busy {
		return false
	}
	w.inflight[volumeID] = struct{}{}
	return true
}

func (w *Worker) release(volumeID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, volumeID)
}
