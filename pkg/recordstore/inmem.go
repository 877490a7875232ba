package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/nlcache/nlcache/pkg/types"
)

// MemEvent is an audit event captured by the in-memory store
type MemEvent struct {
	Key      string
	Reason   string
	Message  string
	Severity EventSeverity
}

// MemStore is an in-memory Store used by tests and local experiments. It
// honors the full CAS contract, deep-copies state on every read and write
// (so callers see serialization boundaries, not shared pointers), and can
// inject version conflicts and transport errors on demand.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*Record
	members []string
	version uint64
	events  []MemEvent

	conflictsToInject int
	replaceErr        error
	deleteErr         error
}

// NewMemStore creates an empty in-memory store
func NewMemStore(members ...string) *MemStore {
	return &MemStore{
		records: make(map[string]*Record),
		members: members,
	}
}

// InjectConflicts makes the next n Replace calls fail with ErrConflict
// without touching stored data
func (s *MemStore) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictsToInject = n
}

// FailReplacesWith makes every Replace fail with err until reset with nil
func (s *MemStore) FailReplacesWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceErr = err
}

// FailDeletesWith makes every Delete fail with err until reset with nil
func (s *MemStore) FailDeletesWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

// SetMembers replaces the cluster membership snapshot
func (s *MemStore) SetMembers(members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = members
}

// Events returns the audit events emitted so far
func (s *MemStore) Events() []MemEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored records
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record for key, or ErrNotFound
func (s *MemStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return cloneRecord(rec), nil
}

// Create inserts a new record
func (s *MemStore) Create(ctx context.Context, key string, labels map[string]string, state *types.VolumeState) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; ok {
		return nil, fmt.Errorf("create %s: %w", key, ErrAlreadyExists)
	}

	s.version++
	rec := &Record{
		Key:     key,
		State:   cloneState(state),
		Version: strconv.FormatUint(s.version, 10),
		Labels:  cloneLabels(labels),
	}
	s.records[key] = rec
	return cloneRecord(rec), nil
}

// Replace performs a compare-and-swap on the version token
func (s *MemStore) Replace(ctx context.Context, rec *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.replaceErr != nil {
		return nil, s.replaceErr
	}
	if s.conflictsToInject > 0 {
		s.conflictsToInject--
		return nil, fmt.Errorf("replace %s: %w", rec.Key, ErrConflict)
	}

	current, ok := s.records[rec.Key]
	if !ok {
		return nil, fmt.Errorf("replace %s: %w", rec.Key, ErrNotFound)
	}
	if current.Version != rec.Version {
		return nil, fmt.Errorf("replace %s: %w", rec.Key, ErrConflict)
	}

	s.version++
	updated := &Record{
		Key:     rec.Key,
		State:   cloneState(rec.State),
		Version: strconv.FormatUint(s.version, 10),
		Labels:  cloneLabels(rec.Labels),
	}
	s.records[rec.Key] = updated
	return cloneRecord(updated), nil
}

// Delete removes the record
func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	delete(s.records, key)
	return nil
}

// List returns all records matching the label selector
func (s *MemStore) List(ctx context.Context, selector map[string]string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*Record
	for _, rec := range s.records {
		if matchesSelector(rec.Labels, selector) {
			records = append(records, cloneRecord(rec))
		}
	}
	return records, nil
}

// ClusterMembers returns the configured membership snapshot
func (s *MemStore) ClusterMembers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]string, len(s.members))
	copy(members, s.members)
	return members, nil
}

// EmitEvent captures the event for later assertions
func (s *MemStore) EmitEvent(ctx context.Context, key, reason, message string, severity EventSeverity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, MemEvent{Key: key, Reason: reason, Message: message, Severity: severity})
}

// Ping always succeeds
func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemStore) Close() error {
	return nil
}

func cloneRecord(rec *Record) *Record {
	return &Record{
		Key:     rec.Key,
		State:   cloneState(rec.State),
		Version: rec.Version,
		Labels:  cloneLabels(rec.Labels),
	}
}

func cloneState(state *types.VolumeState) *types.VolumeState {
	if state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		panic(fmt.Sprintf("clone state: %v", err))
	}
	var out types.VolumeState
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone state: %v", err))
	}
	return &out
}

func cloneLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
