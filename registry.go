package eventadmin

import "sync"

// registry is the Handler Registry (spec §4.3): RWMutex-protected storage of
// handlerDescriptors, split into three channels so dispatch can avoid scanning
// subscriptions that can never match a given event topic — exact-topic handlers
// keyed by their literal topic, prefix handlers keyed by their prefix, and the
// wildcard-all handlers that must be considered for every event.
type registry struct {
	mu sync.RWMutex

	nextID int64

	all     map[int64]*handlerDescriptor
	exact   map[string]map[int64]*handlerDescriptor
	prefix  map[string]map[int64]*handlerDescriptor
	wildAll map[int64]*handlerDescriptor
}

func newRegistry() *registry {
	return &registry{
		all:     make(map[int64]*handlerDescriptor),
		exact:   make(map[string]map[int64]*handlerDescriptor),
		prefix:  make(map[string]map[int64]*handlerDescriptor),
		wildAll: make(map[int64]*handlerDescriptor),
	}
}

// add registers handler under props and returns its assigned handler id (spec §3:
// "add_handler(props, handler) -> handler_id").
func (r *registry) add(props Properties, handler EventHandler) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	d, err := newHandlerDescriptor(id, props, handler)
	if err != nil {
		r.nextID--
		return 0, err
	}

	r.all[id] = d
	switch d.kind {
	case topicWildcardAll:
		r.wildAll[id] = d
	case topicPrefix:
		bucket := r.prefix[d.prefix]
		if bucket == nil {
			bucket = make(map[int64]*handlerDescriptor)
			r.prefix[d.prefix] = bucket
		}
		bucket[id] = d
	case topicExact:
		bucket := r.exact[d.pattern]
		if bucket == nil {
			bucket = make(map[int64]*handlerDescriptor)
			r.exact[d.pattern] = bucket
		}
		bucket[id] = d
	}
	return id, nil
}

// remove unregisters handlerID (spec §3: "remove_handler(handler_id)"). It is
// idempotent: removing an already-removed or unknown id is not an error, matching
// celix_eventAdmin_removeEventHandler's tolerant behavior.
func (r *registry) remove(handlerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.all[handlerID]
	if !ok {
		return
	}
	delete(r.all, handlerID)
	switch d.kind {
	case topicWildcardAll:
		delete(r.wildAll, handlerID)
	case topicPrefix:
		if bucket := r.prefix[d.prefix]; bucket != nil {
			delete(bucket, handlerID)
			if len(bucket) == 0 {
				delete(r.prefix, d.prefix)
			}
		}
	case topicExact:
		if bucket := r.exact[d.pattern]; bucket != nil {
			delete(bucket, handlerID)
			if len(bucket) == 0 {
				delete(r.exact, d.pattern)
			}
		}
	}
}

// lookup returns the descriptor for handlerID, or nil if it is not (or no longer)
// registered — the worker pool treats a nil result as "skip, it was removed while
// queued" rather than an error.
func (r *registry) lookup(handlerID int64) *handlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.all[handlerID]
}

// snapshot returns every currently registered descriptor, for the blacklist
// monitor's periodic scan.
func (r *registry) snapshot() []*handlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*handlerDescriptor, 0, len(r.all))
	for _, d := range r.all {
		out = append(out, d)
	}
	return out
}

// size returns the number of currently registered handlers, used by destroy-time
// assertions (SPEC_FULL.md §4: "destroy-time registry assertion").
func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// matching returns the set of handler descriptors eligible to receive event: every
// non-blacklisted wildcard-all handler, every non-blacklisted exact-topic handler
// keyed to event.Topic(), and every non-blacklisted prefix handler whose prefix
// equals event.Topic() or is an ancestor of it — each filtered by its compiled
// property filter (spec §4.4 Dispatch Planner). Topics longer than MaxPrefixLength
// skip the prefix phase.
func (r *registry) matching(event *Event) []*handlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*handlerDescriptor

	for _, d := range r.wildAll {
		if eligible(d, event) {
			out = append(out, d)
		}
	}
	if bucket, ok := r.exact[event.Topic()]; ok {
		for _, d := range bucket {
			if eligible(d, event) {
				out = append(out, d)
			}
		}
	}
	if topic := event.Topic(); len(topic) <= MaxPrefixLength {
		prefixes := topicPrefixes(topic)
		if topic != "" {
			// "<prefix>/*" also matches a topic equal to its prefix.
			prefixes = append([]string{topic}, prefixes...)
		}
		for _, prefix := range prefixes {
			if bucket, ok := r.prefix[prefix]; ok {
				for _, d := range bucket {
					if eligible(d, event) {
						out = append(out, d)
					}
				}
			}
		}
	}
	return out
}

func eligible(d *handlerDescriptor, event *Event) bool {
	if d.isBlacklisted() {
		return false
	}
	return d.matches(event)
}
