package recordstore

import (
	"context"
	"errors"

	"github.com/nlcache/nlcache/pkg/types"
)

var (
	// ErrNotFound is returned when no record exists for a key
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by Create when the key is taken
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConflict is returned by Replace when the version token is stale
	ErrConflict = errors.New("record version conflict")
)

// Record is one versioned volume state entry in the store. Version is an
// opaque token; a Replace must present the token from the read it is based
// on or the write is rejected with ErrConflict.
type Record struct {
	Key     string
	State   *types.VolumeState
	Version string
	Labels  map[string]string
}

// EventSeverity classifies audit events
type EventSeverity string

const (
	SeverityNormal  EventSeverity = "Normal"
	SeverityWarning EventSeverity = "Warning"
)

// Store is the capability the cleanup protocol consumes from the cluster's
// shared coordination backend. All mutations are compare-and-swap: there are
// no locks, and concurrent writers resolve conflicts by re-reading.
type Store interface {
	// Get returns the record for key, or ErrNotFound
	Get(ctx context.Context, key string) (*Record, error)

	// Create inserts a new record, or returns ErrAlreadyExists
	Create(ctx context.Context, key string, labels map[string]string, state *types.VolumeState) (*Record, error)

	// Replace overwrites the record using rec.Version as the expected
	// version token. Returns ErrConflict on a stale token, ErrNotFound if
	// the record has been deleted.
	Replace(ctx context.Context, rec *Record) (*Record, error)

	// Delete removes the record, or returns ErrNotFound
	Delete(ctx context.Context, key string) error

	// List returns all records whose labels match the selector
	List(ctx context.Context, selector map[string]string) ([]*Record, error)

	// ClusterMembers returns the names of the nodes currently in the
	// cluster. The result is a snapshot, not a watch.
	ClusterMembers(ctx context.Context) ([]string, error)

	// EmitEvent records a human-visible audit event for a key. Fire and
	// forget: implementations log failures and never return them.
	EmitEvent(ctx context.Context, key, reason, message string, severity EventSeverity)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// RecordName derives the store key for a volume
func RecordName(volumeID string) string {
	return "nlc-vol-" + volumeID
}

// PhaseLabels returns the discovery labels for a state's current phase
func PhaseLabels(state *types.VolumeState) map[string]string {
	return map[string]string{types.LabelPhase: state.Phase()}
}
