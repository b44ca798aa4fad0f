package eventadmin

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// adminState is the engine's lifecycle state machine (spec §4.8: created -> started
// -> stopped -> destroyed).
type adminState int32

const (
	stateCreated adminState = iota
	stateStarted
	stateStopped
	stateDestroyed
)

// Admin is the Event Admin engine: the single object a process constructs to get a
// Topic Matcher, Filter Evaluator, Handler Registry, Dispatch Planner, Sync
// Dispatcher, Async Queue, Worker Pool and Blacklist Monitor wired together (spec
// §1 overview, §3 operations send/post/add_handler/remove_handler/handle_event).
type Admin struct {
	config Config
	logger Logger
	clock  Clock

	registry *registry
	queue    *asyncQueue
	workers  *workerPool
	monitor  *blacklistMonitor

	state   atomic.Int32
	startMu sync.Mutex

	onBlacklistFn      func(d *handlerDescriptor)
	onLifecycleEventFn func(kind string, fields map[string]any)
}

// New constructs an Admin in the "created" state; call Start before send/post/
// add_handler are usable to completion (add_handler itself is legal pre-start,
// matching the C implementation accepting registrations before celix_eventAdmin_start).
func New(cfg Config, logger Logger, clock Clock) (*Admin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if clock == nil {
		clock = SystemClock
	}
	a := &Admin{
		config:   cfg,
		logger:   logger,
		clock:    clock,
		registry: newRegistry(),
		queue:    newAsyncQueue(cfg.QueueCapacity),
	}
	a.workers = newWorkerPool(a, cfg.WorkerCount)
	a.monitor = newBlacklistMonitor(a, cfg.SlowHandlerThreshold/4+1)
	a.onBlacklistFn = func(*handlerDescriptor) {}
	a.onLifecycleEventFn = func(string, map[string]any) {}
	return a, nil
}

// Start transitions created -> started, launching the worker pool and blacklist
// monitor (spec §4.8). Calling Start twice returns ErrAlreadyStarted; calling it
// after Stop or Destroy returns ErrIllegalState.
func (a *Admin) Start() error {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	switch adminState(a.state.Load()) {
	case stateStarted:
		return ErrAlreadyStarted
	case stateStopped, stateDestroyed:
		return ErrEngineDestroyed
	}

	if err := a.workers.start(); err != nil {
		return err
	}
	a.monitor.start()
	a.state.Store(int32(stateStarted))
	a.logger.Info("eventadmin started", "workers", a.config.WorkerCount, "queue_capacity", a.config.QueueCapacity)
	a.emitLifecycle("started", map[string]any{"workers": a.config.WorkerCount})
	return nil
}

// Stop transitions started -> stopped, draining the async queue and shutting down
// workers and the blacklist monitor. Queued-but-undelivered entries are released
// and counted (SPEC_FULL.md §4: "queue entry draining accounting on Stop/Destroy").
func (a *Admin) Stop() (drained int, err error) {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	return a.stopLocked()
}

// stopLocked performs the stop transition; callers must already hold startMu.
func (a *Admin) stopLocked() (drained int, err error) {
	if adminState(a.state.Load()) != stateStarted {
		return 0, ErrNotStarted
	}

	leftover := a.queue.drain()
	for _, e := range leftover {
		e.event.release()
	}
	a.workers.stop()
	a.monitor.stop()
	a.state.Store(int32(stateStopped))
	a.logger.Info("eventadmin stopped", "drained_entries", len(leftover))
	a.emitLifecycle("stopped", map[string]any{"drained_entries": len(leftover)})
	return len(leftover), nil
}

// Destroy releases the engine permanently. It asserts the registry is empty
// (SPEC_FULL.md §4: "destroy-time registry assertion", grounded on the C
// implementation's celix_eventAdmin_destroy precondition that every subscriber has
// already called remove_handler) and returns ErrRegistryNotEmpty rather than
// silently leaking handler descriptors.
func (a *Admin) Destroy() error {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	if adminState(a.state.Load()) == stateDestroyed {
		return nil
	}
	if adminState(a.state.Load()) == stateStarted {
		if _, err := a.stopLocked(); err != nil && err != ErrNotStarted {
			return err
		}
	}
	if n := a.registry.size(); n > 0 {
		return fmt.Errorf("%w: %d handlers still registered", ErrRegistryNotEmpty, n)
	}
	a.state.Store(int32(stateDestroyed))
	a.emitLifecycle("destroyed", nil)
	return nil
}

// AddHandler registers handler under props and returns its handler id (spec §3:
// "add_handler(props, handler) -> handler_id").
func (a *Admin) AddHandler(props Properties, handler EventHandler) (int64, error) {
	if adminState(a.state.Load()) == stateDestroyed {
		return 0, ErrEngineDestroyed
	}
	return a.registry.add(props, handler)
}

// RemoveHandler unregisters handlerID (spec §3: "remove_handler(handler_id)").
func (a *Admin) RemoveHandler(handlerID int64) {
	a.registry.remove(handlerID)
}

// Send dispatches event synchronously to every matching, non-blacklisted handler
// in the calling goroutine, returning only after all of them have run (spec §4.5
// Sync Dispatcher; spec §3 "send(event)"). The order in which the matching handlers
// run is not defined; a handler's own panic is recovered and logged, never
// propagated to the caller or to sibling handlers.
func (a *Admin) Send(event *Event) {
	if event == nil {
		return
	}
	for _, d := range a.registry.matching(event) {
		d.markStart(a.clock.Now())
		if err := invokeHandler(d, event); err != nil {
			a.logger.Error("sync handler returned error", "handler_id", d.id, "topic", event.Topic(), "error", err)
		}
		d.markDone()
	}
}

// Post enqueues event for asynchronous delivery to every matching handler and
// returns immediately (spec §3: "post(event)"). Each matching handler gets its own
// queue entry so per-handler ordering/blacklisting is independent; if the bounded
// queue is full, Post returns ErrQueueFull without blocking (spec §4.6).
func (a *Admin) Post(event *Event) error {
	if event == nil {
		return ErrInvalidArgument
	}
	if adminState(a.state.Load()) != stateStarted {
		return ErrNotStarted
	}

	matched := a.registry.matching(event)
	if len(matched) == 0 {
		return nil
	}

	for i, d := range matched {
		event.retain()
		if err := a.queue.push(queueEntry{handlerID: d.id, event: event}, a.config.QueueCapacity); err != nil {
			event.release()
			a.logger.Warn("post dropped entry: queue full", "handler_id", d.id, "topic", event.Topic(), "remaining_targets", len(matched)-i)
			a.emitLifecycle("queue_full", map[string]any{"topic": event.Topic(), "handler_id": d.id})
			return err
		}
	}
	// release the caller's own reference now that every matched handler holds one.
	event.release()
	return nil
}

// onBlacklist notifies the configured blacklist callback (wired to the CloudEvents
// lifecycle emitter in SPEC_FULL.md §3) that a handler has just been blacklisted.
func (a *Admin) onBlacklist(d *handlerDescriptor) {
	a.onBlacklistFn(d)
	a.emitLifecycle("handler_blacklisted", map[string]any{"handler_id": d.id, "topic_pattern": d.pattern})
}

func (a *Admin) emitLifecycle(kind string, fields map[string]any) {
	a.onLifecycleEventFn(kind, fields)
}

// OnBlacklist installs a callback invoked whenever a handler transitions to
// blacklisted. Used by lifecycle_events.go to emit a CloudEvent without the core
// dispatch path importing the CloudEvents SDK directly.
func (a *Admin) OnBlacklist(fn func(handlerID int64, topicPattern string)) {
	a.onBlacklistFn = func(d *handlerDescriptor) { fn(d.id, d.pattern) }
}

// OnLifecycleEvent installs a callback invoked for start/stop/destroy/queue_full/
// handler_blacklisted transitions.
func (a *Admin) OnLifecycleEvent(fn func(kind string, fields map[string]any)) {
	a.onLifecycleEventFn = fn
}

// Stats is a point-in-time snapshot used by the cron-driven StatsReporter and the
// chi diagnostics endpoint (SPEC_FULL.md §3).
type Stats struct {
	HandlerCount int
	QueueDepth   int
	State        string
}

// Snapshot returns the engine's current Stats.
func (a *Admin) Snapshot() Stats {
	return Stats{
		HandlerCount: a.registry.size(),
		QueueDepth:   a.queue.len(),
		State:        a.stateName(),
	}
}

// DebugHandlerInfo is a diagnostic-only view of one registered handler, exposed so
// an operator surface (e.g. diagnostics.NewRouter's GET /debug/handlers) can report
// blacklist state without reaching into Admin's unexported registry.
type DebugHandlerInfo struct {
	ID            int64
	TopicPattern  string
	Description   string
	Blacklisted   bool
	InFlightCount int64
}

// DebugHandlers returns a snapshot of every registered handler's diagnostic state.
func (a *Admin) DebugHandlers() []DebugHandlerInfo {
	descs := a.registry.snapshot()
	out := make([]DebugHandlerInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, DebugHandlerInfo{
			ID:            d.id,
			TopicPattern:  d.pattern,
			Description:   d.desc,
			Blacklisted:   d.isBlacklisted(),
			InFlightCount: d.inFlight.Load(),
		})
	}
	return out
}

func (a *Admin) stateName() string {
	switch adminState(a.state.Load()) {
	case stateCreated:
		return "created"
	case stateStarted:
		return "started"
	case stateStopped:
		return "stopped"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
