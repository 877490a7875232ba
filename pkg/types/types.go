package types

import (
	"time"
)

// LabelPhase is the discovery label carried by every volume state record.
// The worker and reconciler loops select records on it.
const LabelPhase = "nlcache.csi.io/phase"

// Phase values for LabelPhase
const (
	// PhaseActive marks a volume that is published somewhere and not yet deleted
	PhaseActive = "active"
	// PhaseCleanup marks a volume whose deletion has been requested
	PhaseCleanup = "cleanup"
)

// VolumeState tracks the cleanup lifecycle of a single volume. One record
// exists per volume in the shared record store; every mutation goes through
// a compare-and-swap cycle, so all transition methods below are idempotent.
type VolumeState struct {
	VolumeID           string     `json:"volume_id"`
	CreatedAt          time.Time  `json:"created_at"`
	CleanupRequestedAt *time.Time `json:"cleanup_requested_at,omitempty"`

	// NodesWithVolume lists every node that has ever published this volume.
	// It only grows, and only before cleanup is requested.
	NodesWithVolume []string `json:"nodes_with_volume,omitempty"`

	// Reported sets. A node appears in at most one of them; the first report
	// is terminal for that node.
	NodesCompleted      []string `json:"nodes_completed,omitempty"`
	NodesFailed         []string `json:"nodes_failed,omitempty"`
	NodesDecommissioned []string `json:"nodes_decommissioned,omitempty"`
}

// NewVolumeState creates the initial state for a volume
func NewVolumeState(volumeID string, now time.Time) *VolumeState {
	return &VolumeState{
		VolumeID:  volumeID,
		CreatedAt: now,
	}
}

// Phase returns the discovery phase for the current state
func (s *VolumeState) Phase() string {
	if s.CleanupRequested() {
		return PhaseCleanup
	}
	return PhaseActive
}

// CleanupRequested reports whether deletion has been initiated
func (s *VolumeState) CleanupRequested() bool {
	return s.CleanupRequestedAt != nil
}

// RequestCleanup sets the cleanup timestamp if unset (first-writer-wins).
// Returns true if this call performed the transition.
func (s *VolumeState) RequestCleanup(now time.Time) bool {
	if s.CleanupRequested() {
		return false
	}
	t := now
	s.CleanupRequestedAt = &t
	return true
}

// AddNode records that a node published this volume. Adding the same node
// twice is a no-op, and the membership set is frozen once cleanup has been
// requested.
func (s *VolumeState) AddNode(nodeName string) bool {
	if s.CleanupRequested() {
		return false
	}
	if contains(s.NodesWithVolume, nodeName) {
		return false
	}
	s.NodesWithVolume = append(s.NodesWithVolume, nodeName)
	return true
}

// HasNode reports whether a node is in the membership set
func (s *VolumeState) HasNode(nodeName string) bool {
	return contains(s.NodesWithVolume, nodeName)
}

// HasReported reports whether a node already appears in any reported set
func (s *VolumeState) HasReported(nodeName string) bool {
	return contains(s.NodesCompleted, nodeName) ||
		contains(s.NodesFailed, nodeName) ||
		contains(s.NodesDecommissioned, nodeName)
}

// MarkCompleted records a successful local cleanup for a node. The first
// report wins; a node that already reported (in any set) is left untouched.
func (s *VolumeState) MarkCompleted(nodeName string) bool {
	if s.HasReported(nodeName) {
		return false
	}
	s.NodesCompleted = append(s.NodesCompleted, nodeName)
	return true
}

// MarkFailed records a failed local cleanup for a node
func (s *VolumeState) MarkFailed(nodeName string) bool {
	if s.HasReported(nodeName) {
		return false
	}
	s.NodesFailed = append(s.NodesFailed, nodeName)
	return true
}

// MarkDecommissioned records that a node left the cluster before reporting
func (s *VolumeState) MarkDecommissioned(nodeName string) bool {
	if s.HasReported(nodeName) {
		return false
	}
	s.NodesDecommissioned = append(s.NodesDecommissioned, nodeName)
	return true
}

// PendingNodes returns the members of NodesWithVolume that have not yet
// reported completion, failure, or decommission
func (s *VolumeState) PendingNodes() []string {
	var pending []string
	for _, node := range s.NodesWithVolume {
		if !s.HasReported(node) {
			pending = append(pending, node)
		}
	}
	return pending
}

// IsCleanupComplete reports whether every node that ever held the volume has
// reported. A volume that was never published converges immediately once
// cleanup is requested.
func (s *VolumeState) IsCleanupComplete() bool {
	if !s.CleanupRequested() {
		return false
	}
	return len(s.PendingNodes()) == 0
}

// Age returns how long the record has been in its current lifecycle, measured
// from the cleanup request when one exists, otherwise from creation. The
// reconciler uses this for TTL-based forced pruning.
func (s *VolumeState) Age(now time.Time) time.Duration {
	if s.CleanupRequestedAt != nil {
		return now.Sub(*s.CleanupRequestedAt)
	}
	return now.Sub(s.CreatedAt)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
