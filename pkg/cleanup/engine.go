package cleanup

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/metrics"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

// Backoff schedule for version conflicts. Sized for thundering-herd bursts
// where dozens of nodes mutate the same record within one scheduling wave:
// full jitter keeps retries from re-colliding in lockstep.
const (
	baseDelay   = 10 * time.Millisecond
	maxDelay    = 1000 * time.Millisecond
	maxAttempts = 15
)

// ErrConflictNotResolved is returned when a mutation loses the CAS race on
// every attempt
var ErrConflictNotResolved = errors.New("conflict not resolved")

// Mutation transforms a volume state in memory. It must be pure: no I/O, no
// side effects, because the engine may call it several times against fresh
// reads before a write lands.
type Mutation func(state *types.VolumeState) error

// Engine performs read-mutate-write cycles against the shared record store,
// resolving version conflicts with jittered exponential backoff. Every
// record mutation in the system goes through here; no caller issues a raw
// Replace.
type Engine struct {
	store  recordstore.Store
	logger zerolog.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an update engine over the given store
func NewEngine(store recordstore.Store) *Engine {
	return &Engine{
		store:  store,
		logger: log.WithComponent("update-engine"),
		sleep:  sleepContext,
	}
}

// Apply reads the volume's record, applies mutate to the in-memory state,
// and writes the result back under the version token of the read. On a
// version conflict the whole cycle restarts from a fresh read, never from
// stale data. If the record is absent and createIfMissing is false, the
// store's not-found error is returned for the caller to interpret; with
// createIfMissing the cycle starts from an empty state and the write is a
// create.
//
// The final state as written is returned on success.
func (e *Engine) Apply(ctx context.Context, volumeID string, createIfMissing bool, mutate Mutation) (*types.VolumeState, error) {
	key := recordstore.RecordName(volumeID)
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UpdateDuration)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.UpdateConflictsTotal.Inc()
			if err := e.sleep(ctx, jitteredDelay(attempt-1)); err != nil {
				return nil, err
			}
		}

		rec, err := e.store.Get(ctx, key)
		switch {
		case errors.Is(err, recordstore.ErrNotFound):
			if !createIfMissing {
				return nil, err
			}
			rec = nil
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", key, err)
		}

		var state *types.VolumeState
		if rec != nil {
			state = rec.State
		} else {
			state = types.NewVolumeState(volumeID, time.Now().UTC())
		}

		if err := mutate(state); err != nil {
			return nil, fmt.Errorf("mutate %s: %w", key, err)
		}

		labels := recordstore.PhaseLabels(state)
		if rec == nil {
			if _, err := e.store.Create(ctx, key, labels, state); err != nil {
				if errors.Is(err, recordstore.ErrAlreadyExists) {
					// Lost the creation race; retry against the winner's record
					e.logger.Debug().Str("record", key).Int("attempt", attempt).
						Msg("Creation race lost, retrying")
					continue
				}
				return nil, fmt.Errorf("create %s: %w", key, err)
			}
			return state, nil
		}

		rec.State = state
		rec.Labels = labels
		if _, err := e.store.Replace(ctx, rec); err != nil {
			if errors.Is(err, recordstore.ErrConflict) {
				e.logger.Debug().Str("record", key).Int("attempt", attempt).
					Msg("Version conflict, retrying with fresh read")
				continue
			}
			return nil, fmt.Errorf("replace %s: %w", key, err)
		}
		return state, nil
	}

	metrics.UpdateRetriesExhaustedTotal.Inc()
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflictNotResolved, key, maxAttempts)
}

// jitteredDelay returns a uniform random duration in [0, min(maxDelay,
// baseDelay * 2^attempt)]
func jitteredDelay(attempt int) time.Duration {
	delay := baseDelay << uint(attempt)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return rand.N(delay + 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
