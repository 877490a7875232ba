package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/types"
)

var (
	bucketRecords = []byte("records")
	bucketEvents  = []byte("events")
)

// maxStoredEvents bounds the standalone audit trail
const maxStoredEvents = 500

// boltRecord is the on-disk envelope for one record
type boltRecord struct {
	Version uint64             `json:"version"`
	Labels  map[string]string  `json:"labels,omitempty"`
	State   *types.VolumeState `json:"state"`
}

// boltEvent is one audit trail entry in standalone mode
type boltEvent struct {
	Time     time.Time `json:"time"`
	Key      string    `json:"key"`
	Reason   string    `json:"reason"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
}

// BoltStore implements Store on a local BoltDB file. It exists for
// standalone single-node deployments and integration tests, where there is
// no API server to coordinate through. The CAS contract is the same as the
// Kubernetes store's: a monotonic per-record counter serves as the version
// token. Cluster membership is the fixed list the store was opened with.
type BoltStore struct {
	db      *bolt.DB
	members []string
	logger  zerolog.Logger
}

// NewBoltStore opens (or creates) the store at dataDir/nlcache.db
func NewBoltStore(dataDir string, members []string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "nlcache.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRecords, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:      db,
		members: members,
		logger:  log.WithComponent("recordstore"),
	}, nil
}

// Get returns the record for key, or ErrNotFound
func (s *BoltStore) Get(ctx context.Context, key string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		var err error
		rec, err = decodeRecord(key, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Create inserts a new record at version 1
func (s *BoltStore) Create(ctx context.Context, key string, labels map[string]string, state *types.VolumeState) (*Record, error) {
	env := boltRecord{Version: 1, Labels: labels, State: state}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(key)) != nil {
			return fmt.Errorf("create %s: %w", key, ErrAlreadyExists)
		}
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return nil, err
	}
	return &Record{Key: key, State: state, Version: "1", Labels: labels}, nil
}

// Replace performs a compare-and-swap on the record's version counter
func (s *BoltStore) Replace(ctx context.Context, rec *Record) (*Record, error) {
	expected, err := strconv.ParseUint(rec.Version, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("replace %s: bad version token %q", rec.Key, rec.Version)
	}

	next := expected + 1
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		data := b.Get([]byte(rec.Key))
		if data == nil {
			return fmt.Errorf("replace %s: %w", rec.Key, ErrNotFound)
		}

		var current boltRecord
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("unmarshal %s: %w", rec.Key, err)
		}
		if current.Version != expected {
			return fmt.Errorf("replace %s: %w", rec.Key, ErrConflict)
		}

		env := boltRecord{Version: next, Labels: rec.Labels, State: rec.State}
		updated, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.Key, err)
		}
		return b.Put([]byte(rec.Key), updated)
	})
	if err != nil {
		return nil, err
	}

	return &Record{
		Key:     rec.Key,
		State:   rec.State,
		Version: strconv.FormatUint(next, 10),
		Labels:  rec.Labels,
	}, nil
}

// Delete removes the record
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("delete %s: %w", key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

// List returns all records matching the label selector
func (s *BoltStore) List(ctx context.Context, selector map[string]string) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(string(k), v)
			if err != nil {
				s.logger.Warn().Err(err).Str("record", string(k)).
					Msg("Skipping malformed volume state record")
				return nil
			}
			if matchesSelector(rec.Labels, selector) {
				records = append(records, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// ClusterMembers returns the fixed membership this store was opened with
func (s *BoltStore) ClusterMembers(ctx context.Context) ([]string, error) {
	members := make([]string, len(s.members))
	copy(members, s.members)
	return members, nil
}

// EmitEvent appends the event to the local audit bucket, trimming the oldest
// entries past the cap. Failures are logged only.
func (s *BoltStore) EmitEvent(ctx context.Context, key, reason, message string, severity EventSeverity) {
	entry := boltEvent{
		Time:     time.Now(),
		Key:      key,
		Reason:   reason,
		Message:  message,
		Severity: string(severity),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(fmt.Sprintf("%020d", seq)), data); err != nil {
			return err
		}

		// Trim oldest entries
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; len(keys)-i > maxStoredEvents; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("record", key).Str("reason", reason).
			Msg("Failed to store audit event")
	}
}

// Ping verifies the database handle is usable
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decodeRecord(key string, data []byte) (*Record, error) {
	var env boltRecord
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	if env.State == nil {
		return nil, fmt.Errorf("record %s has no state body", key)
	}
	return &Record{
		Key:     key,
		State:   env.State,
		Version: strconv.FormatUint(env.Version, 10),
		Labels:  env.Labels,
	}, nil
}

func matchesSelector(labels, selector map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}
