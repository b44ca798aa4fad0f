package eventadmin

import (
	"strings"
	"sync/atomic"
	"time"
)

// EventHandler is the callback contract a subscriber registers (spec §3:
// "handle_event(event)"). Implementations must not block longer than
// SlowHandlerThreshold or they risk being blacklisted from further async delivery.
type EventHandler interface {
	HandleEvent(event *Event) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(event *Event) error

func (f EventHandlerFunc) HandleEvent(event *Event) error { return f(event) }

// handlerDescriptor is the registry's internal record for one add_handler call (spec
// §4.3: "Handler Descriptor {id, topic pattern, filter, handler ref, delivery mode,
// blacklisted flag, in-flight counter}").
type handlerDescriptor struct {
	id        int64
	serviceID int64
	pattern   string
	kind      topicKind
	prefix    string
	filter    *Filter
	handler   EventHandler
	ordered   bool
	desc      string

	blacklisted atomic.Bool
	inFlight    atomic.Int64
	lastStarted atomic.Int64 // unix nanos of the most recently dispatched call still running

	// admission bounds how many deliveries to this handler may run at once: a
	// 1-slot channel for ordered handlers (spec §4.6 default), MaxParallelPerHandler
	// slots for handlers that opted into unordered delivery.
	admission chan struct{}
}

func newHandlerDescriptor(id int64, props Properties, handler EventHandler) (*handlerDescriptor, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	pattern, ok := props.GetString(PropertyTopics)
	if !ok || pattern == "" {
		return nil, ErrMissingTopics
	}
	kind, prefix, err := parseTopicPattern(pattern)
	if err != nil {
		return nil, err
	}
	serviceID := props.GetAsLong(PropertyServiceID, -1)
	if serviceID < 0 {
		return nil, ErrMissingServiceID
	}

	var filter *Filter
	if expr, ok := props.GetString(PropertyFilter); ok && expr != "" {
		filter, err = CompileFilter(expr)
		if err != nil {
			return nil, err
		}
	}

	delivery, _ := props.GetString(PropertyDelivery)
	ordered := delivery == "" || containsOrdered(delivery)

	slots := MaxParallelPerHandler
	if ordered {
		slots = 1
	}

	d := &handlerDescriptor{
		id:        id,
		serviceID: serviceID,
		pattern:   pattern,
		kind:      kind,
		prefix:    prefix,
		filter:    filter,
		handler:   handler,
		ordered:   ordered,
		desc:      props.GetStringOr(PropertyDescription, ""),
		admission: make(chan struct{}, slots),
	}
	return d, nil
}

func containsOrdered(delivery string) bool {
	return strings.Contains(delivery, DeliveryAsyncOrdered)
}

// matches reports whether this descriptor's topic pattern and filter accept event
// (spec §4.1 topic matching combined with §4.2 filter evaluation).
func (d *handlerDescriptor) matches(event *Event) bool {
	switch d.kind {
	case topicWildcardAll:
		// always topic-eligible
	case topicPrefix:
		if !matchesPrefix(d.prefix, event.Topic()) {
			return false
		}
	case topicExact:
		if d.pattern != event.Topic() {
			return false
		}
	}
	return d.filter.Match(event.Properties())
}

// markStart records the beginning of a delivery, for the blacklist monitor to measure
// elapsed time against SlowHandlerThreshold (spec §4.7).
func (d *handlerDescriptor) markStart(now time.Time) {
	d.inFlight.Add(1)
	d.lastStarted.Store(now.UnixNano())
}

func (d *handlerDescriptor) markDone() {
	d.inFlight.Add(-1)
}

// runningSince returns how long ago the most recently started call on this handler
// began, while at least one call is in flight, or 0 if it isn't currently running
// anything. With several calls in flight, older calls are not measured separately.
func (d *handlerDescriptor) runningSince(now time.Time) time.Duration {
	if d.inFlight.Load() <= 0 {
		return 0
	}
	started := d.lastStarted.Load()
	if started == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, started))
}

func (d *handlerDescriptor) isBlacklisted() bool { return d.blacklisted.Load() }

func (d *handlerDescriptor) blacklist() bool { return d.blacklisted.CompareAndSwap(false, true) }
