// Package events implements the daemon's UI event bus: an in-process
// broadcast of {event_type, user_id, ...} payloads consumed by the HTTP
// control plane's SSE endpoints (/reminder_stream, /ui_events).
//
// Generalizes the teacher's pkg/events.ConnectionManager, which fans
// events out to WebSocket connections over channels backed by
// PostgreSQL LISTEN/NOTIFY for cross-pod delivery. This daemon is a
// single process with no cross-pod concern, so the channel/NOTIFY
// machinery is replaced by plain buffered Go channels; the broadcast,
// per-subscriber buffering, and lagged-subscriber handling are kept.
package events

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls behind by more than this many events is dropped and must
// resubscribe, mirroring the teacher's Connection write-timeout
// disconnect instead of blocking the publisher.
const subscriberBuffer = 256

// Event is one message published to the bus. Tool/Status are populated
// for tool-call events (spec wire format: event_type, user_id, tool,
// status, payload, timestamp); other event kinds leave them empty.
type Event struct {
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// JSON marshals the event for SSE transmission or audit logging.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// FileSink appends each published event as one line-delimited JSON
// record to a configured path, generalizing scheduler.AuditLogger's
// append+create-per-write, swallow-on-error discipline to the UI event
// bus's own append-only audit log (spec.md: "./data/ui_events.log").
type FileSink struct {
	Path string
}

func (s *FileSink) record(event Event) {
	if s == nil || s.Path == "" {
		return
	}

	data, err := event.JSON()
	if err != nil {
		slog.Warn("ui event marshal failed", "error", err)
		return
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("ui event log open failed", "path", s.Path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		slog.Warn("ui event log write failed", "path", s.Path, "error", err)
	}
}

// Bus is a process-wide broadcast of Events to any number of
// subscribers. A Bus is safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
	sink *FileSink
}

// NewBus creates an empty event bus with no file-backed audit log.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// NewBusWithLog creates an event bus that also appends every published
// event to path. An empty path behaves exactly like NewBus.
func NewBusWithLog(path string) *Bus {
	b := NewBus()
	b.sink = &FileSink{Path: path}
	return b
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe func the caller must invoke when done (e.g. on HTTP
// request cancellation). The channel is closed by Unsubscribe, never
// by Publish.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(b.subs, id)
		}
	}
	return sub.ch, unsubscribe
}

// Publish broadcasts an event to every current subscriber. A
// subscriber whose buffer is full is dropped rather than blocking the
// publisher — it must resubscribe to keep receiving events, the same
// lagged-reader handling the teacher's Broadcast applies to slow
// WebSocket writers.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	sink := b.sink
	for id, sub := range b.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.closed = true
			close(sub.ch)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()

	sink.record(event)
}

// SubscriberCount reports the current number of live subscribers, used
// by startup/health logging the way the teacher's ActiveConnections does.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
