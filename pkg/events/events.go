package events

import (
	"context"
	"sync"
	"time"

	"github.com/nlcache/nlcache/pkg/recordstore"
)

// Audit event reasons
const (
	ReasonVolumePublished    = "VolumePublished"
	ReasonCleanupRequested   = "CleanupRequested"
	ReasonNodeCleaned        = "NodeCleanupCompleted"
	ReasonNodeCleanupFailed  = "NodeCleanupFailed"
	ReasonNodeDecommissioned = "NodeDecommissioned"
	ReasonCleanupComplete    = "CleanupComplete"
	ReasonRecordExpired      = "RecordExpired"
)

// recentCap bounds the in-process ring of recent events
const recentCap = 100

// Event is one entry in the cleanup audit trail
type Event struct {
	VolumeID  string                    `json:"volume_id"`
	Reason    string                    `json:"reason"`
	Message   string                    `json:"message"`
	Severity  recordstore.EventSeverity `json:"severity"`
	Timestamp time.Time                 `json:"timestamp"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans audit events out to in-process subscribers and keeps a small
// ring of recent events for the admin API
type Broker struct {
	subscribers map[Subscriber]bool
	recent      []*Event
	mu          sync.RWMutex
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
	}
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish delivers an event to all subscribers. Subscribers with full
// buffers are skipped; the broker never blocks a control loop.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, event)
	if len(b.recent) > recentCap {
		b.recent = b.recent[len(b.recent)-recentCap:]
	}

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// Recent returns the most recent events, newest last
func (b *Broker) Recent() []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Event, len(b.recent))
	copy(out, b.recent)
	return out
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Recorder writes audit events both to the in-process broker and to the
// shared record store's event sink. All writes are fire-and-forget.
type Recorder struct {
	broker *Broker
	store  recordstore.Store
}

// NewRecorder creates a recorder. The broker may be nil when no in-process
// consumers exist.
func NewRecorder(broker *Broker, store recordstore.Store) *Recorder {
	return &Recorder{broker: broker, store: store}
}

// Normal records an informational audit event
func (r *Recorder) Normal(ctx context.Context, volumeID, reason, message string) {
	r.record(ctx, volumeID, reason, message, recordstore.SeverityNormal)
}

// Warning records a warning-level audit event
func (r *Recorder) Warning(ctx context.Context, volumeID, reason, message string) {
	r.record(ctx, volumeID, reason, message, recordstore.SeverityWarning)
}

func (r *Recorder) record(ctx context.Context, volumeID, reason, message string, severity recordstore.EventSeverity) {
	if r == nil {
		return
	}
	if r.broker != nil {
		r.broker.Publish(&Event{
			VolumeID: volumeID,
			Reason:   reason,
			Message:  message,
			Severity: severity,
		})
	}
	if r.store != nil {
		r.store.EmitEvent(ctx, recordstore.RecordName(volumeID), reason, message, severity)
	}
}
