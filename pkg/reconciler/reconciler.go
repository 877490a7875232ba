package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nlcache/nlcache/pkg/cleanup"
	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/metrics"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

// DefaultMaxAge is how long a cleanup record may stay unresolved before the
// reconciler force-prunes it
const DefaultMaxAge = 24 * time.Hour

// Reconciler is the controller-side sweep loop. Each cycle it inspects every
// record in the cleanup phase, marks pending nodes that have left the
// cluster as decommissioned, deletes records whose cleanup has converged,
// and force-prunes records stuck past the TTL.
//
// The loop holds no state between cycles; everything it needs is re-read
// from the record store, so any number of controller replicas can run it
// concurrently without coordination.
type Reconciler struct {
	store    recordstore.Store
	engine   *cleanup.Engine
	recorder *events.Recorder
	interval time.Duration
	maxAge   time.Duration
	logger   zerolog.Logger

	// now is swapped out in TTL tests
	now func() time.Time
}

// New creates a reconciler. A maxAge of zero disables TTL pruning.
func New(store recordstore.Store, recorder *events.Recorder, interval, maxAge time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		engine:   cleanup.NewEngine(store),
		recorder: recorder,
		interval: interval,
		maxAge:   maxAge,
		logger:   log.WithComponent("reconciler"),
		now:      time.Now,
	}
}

// Run drives the reconciler until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Dur("max_age", r.maxAge).
		Msg("Starting reconciler")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ticker.C:
			r.tick(ctx)
		case <-ctx.Done():
			r.logger.Info().Msg("Stopping reconciler")
			return
		}
	}
}

// tick runs one reconciliation cycle. Failures on individual records are
// logged and skipped; the next cycle retries from fresh reads.
func (r *Reconciler) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconcileDuration)
	metrics.ReconcileCyclesTotal.Inc()

	records, err := r.store.List(ctx, map[string]string{types.LabelPhase: types.PhaseCleanup})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list cleanup records")
		return
	}
	metrics.PendingCleanups.Set(float64(len(records)))
	if len(records) == 0 {
		return
	}

	// One membership snapshot per cycle: every record in this cycle is judged
	// against the same view of the cluster
	memberList, err := r.store.ClusterMembers(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list cluster members")
		return
	}
	members := make(map[string]struct{}, len(memberList))
	for _, m := range memberList {
		members[m] = struct{}{}
	}

	for _, rec := range records {
		if err := r.reconcileRecord(ctx, rec.State, members); err != nil {
			r.logger.Error().Err(err).Str("volume_id", rec.State.VolumeID).
				Msg("Failed to reconcile cleanup record")
		}
	}
}

// reconcileRecord advances one cleanup record: decommission departed nodes,
// then delete the record if cleanup has converged or the TTL has passed
func (r *Reconciler) reconcileRecord(ctx context.Context, state *types.VolumeState, members map[string]struct{}) error {
	volumeID := state.VolumeID

	var departed []string
	for _, node := range state.PendingNodes() {
		if _, ok := members[node]; !ok {
			departed = append(departed, node)
		}
	}

	if len(departed) > 0 {
		// The CAS write may observe a state where some of these nodes have
		// reported in the meantime; MarkDecommissioned yields to any report
		// that landed first
		updated, err := r.engine.Apply(ctx, volumeID, false, func(s *types.VolumeState) error {
			for _, node := range departed {
				s.MarkDecommissioned(node)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("decommission nodes: %w", err)
		}
		state = updated

		metrics.NodesDecommissionedTotal.Add(float64(len(departed)))
		r.logger.Warn().Str("volume_id", volumeID).Strs("nodes", departed).
			Msg("Marked departed nodes as decommissioned")
		r.recorder.Warning(ctx, volumeID, events.ReasonNodeDecommissioned,
			fmt.Sprintf("Nodes no longer in the cluster, cleanup waived: %s", strings.Join(departed, ", ")))
	}

	if state.IsCleanupComplete() {
		return r.prune(ctx, state, metrics.PruneComplete)
	}

	if r.maxAge > 0 && state.Age(r.now()) > r.maxAge {
		pending := state.PendingNodes()
		r.logger.Warn().Str("volume_id", volumeID).Strs("pending_nodes", pending).
			Dur("age", state.Age(r.now())).
			Msg("Cleanup record exceeded max age, force pruning")
		r.recorder.Warning(ctx, volumeID, events.ReasonRecordExpired,
			fmt.Sprintf("Cleanup unresolved after %s, record pruned; nodes may hold leaked data: %s",
				r.maxAge, strings.Join(pending, ", ")))
		return r.prune(ctx, state, metrics.PruneTTL)
	}

	return nil
}

// prune deletes a finished or expired record. A failed delete is left for
// the next cycle; deleting an already-deleted record is success.
func (r *Reconciler) prune(ctx context.Context, state *types.VolumeState, reason string) error {
	volumeID := state.VolumeID

	if reason == metrics.PruneComplete {
		r.logger.Info().Str("volume_id", volumeID).
			Int("completed", len(state.NodesCompleted)).
			Int("failed", len(state.NodesFailed)).
			Int("decommissioned", len(state.NodesDecommissioned)).
			Msg("Cleanup complete, deleting record")
		r.recorder.Normal(ctx, volumeID, events.ReasonCleanupComplete,
			fmt.Sprintf("All %d nodes reported, volume cleanup finished", len(state.NodesWithVolume)))
	}

	if err := r.store.Delete(ctx, recordstore.RecordName(volumeID)); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			// Another controller replica pruned it first
			return nil
		}
		return fmt.Errorf("delete record: %w", err)
	}
	metrics.RecordsPrunedTotal.WithLabelValues(reason).Inc()
	return nil
}
