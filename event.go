package eventadmin

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable (topic, properties) pair published once by a producer
// (spec §3). It is reference-counted so that the async queue can retain it per
// remaining handler and release it independently as each delivery completes,
// matching the C implementation's celix_event_retain/celix_event_release pair.
//
// Event is never mutated after creation; Properties is cloned at construction time
// so a publisher mutating its own map afterward cannot affect an in-flight event.
type Event struct {
	topic      string
	properties Properties
	traceID    uuid.UUID
	createdAt  time.Time

	refs *atomic.Int64
}

// NewEvent constructs an Event for topic with a defensive copy of props. props may be
// nil, in which case the event carries an empty property map.
func NewEvent(topic string, props Properties) *Event {
	refs := new(atomic.Int64)
	refs.Store(1)
	return &Event{
		topic:      topic,
		properties: props.Clone(),
		traceID:    uuid.New(),
		createdAt:  time.Now(),
		refs:       refs,
	}
}

// Topic returns the event's topic string.
func (e *Event) Topic() string { return e.topic }

// Properties returns the event's property map. Callers must not mutate it; Clone it
// first if a mutable copy is needed.
func (e *Event) Properties() Properties { return e.properties }

// TraceID returns the correlation id stamped on this event at creation, used to tie
// together log lines and any emitted lifecycle CloudEvents for this delivery.
func (e *Event) TraceID() uuid.UUID { return e.traceID }

// CreatedAt returns the event's creation timestamp.
func (e *Event) CreatedAt() time.Time { return e.createdAt }

// retain increments the reference count. Called once per handler id the async queue
// entry plans to deliver to, matching celix_event_retain.
func (e *Event) retain() *Event {
	e.refs.Add(1)
	return e
}

// release decrements the reference count. The event carries no owned OS resources in
// the Go port (the C original frees heap allocations at refcount zero); release exists
// so callers and tests can assert the expected retain/release balance rather than to
// free anything itself.
func (e *Event) release() {
	if e.refs.Add(-1) < 0 {
		panic("eventadmin: event released more times than retained")
	}
}

// refCount reports the current reference count, for tests asserting balanced
// retain/release pairs across the async delivery path.
func (e *Event) refCount() int64 {
	return e.refs.Load()
}
