package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

// Coordinator exposes the two entry points the volume lifecycle handlers
// call into the cleanup protocol: membership registration on publish and
// cleanup initiation on delete.
type Coordinator struct {
	store    recordstore.Store
	engine   *Engine
	recorder *events.Recorder
	logger   zerolog.Logger
}

// NewCoordinator creates a coordinator over the given store
func NewCoordinator(store recordstore.Store, recorder *events.Recorder) *Coordinator {
	return &Coordinator{
		store:    store,
		engine:   NewEngine(store),
		recorder: recorder,
		logger:   log.WithComponent("cleanup"),
	}
}

// Engine returns the coordinator's update engine
func (c *Coordinator) Engine() *Engine {
	return c.engine
}

// RegisterPublish records that nodeName holds a local copy of the volume,
// creating the state record on first publish. Once cleanup has been
// requested the membership set is frozen and the call is a no-op.
//
// Callers treat a failure here as a warning, not a publish failure: losing
// a tracking entry must never block a workload mount.
func (c *Coordinator) RegisterPublish(ctx context.Context, volumeID, nodeName string) error {
	state, err := c.engine.Apply(ctx, volumeID, true, func(s *types.VolumeState) error {
		s.AddNode(nodeName)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register publish of %s on %s: %w", volumeID, nodeName, err)
	}

	c.logger.Info().Str("volume_id", volumeID).Str("node", nodeName).
		Int("nodes_with_volume", len(state.NodesWithVolume)).
		Msg("Registered volume publish")
	c.recorder.Normal(ctx, volumeID, events.ReasonVolumePublished,
		fmt.Sprintf("Volume published on node %s", nodeName))
	return nil
}

// RequestCleanup flips the volume's record into the cleanup phase. Repeated
// requests are idempotent. A volume with no record at all was never
// published anywhere, so there is nothing to clean and that case is success.
func (c *Coordinator) RequestCleanup(ctx context.Context, volumeID string) error {
	state, err := c.engine.Apply(ctx, volumeID, false, func(s *types.VolumeState) error {
		s.RequestCleanup(time.Now().UTC())
		return nil
	})
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			c.logger.Debug().Str("volume_id", volumeID).
				Msg("No state record for deleted volume, nothing to clean")
			return nil
		}
		return fmt.Errorf("request cleanup of %s: %w", volumeID, err)
	}

	pending := state.PendingNodes()
	c.logger.Info().Str("volume_id", volumeID).Strs("pending_nodes", pending).
		Msg("Cleanup requested")
	c.recorder.Normal(ctx, volumeID, events.ReasonCleanupRequested,
		fmt.Sprintf("Cleanup requested, awaiting nodes: %s", joinOrNone(pending)))
	return nil
}

func joinOrNone(nodes []string) string {
	if len(nodes) == 0 {
		return "none"
	}
	return strings.Join(nodes, ", ")
}
