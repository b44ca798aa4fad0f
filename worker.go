package eventadmin

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// workerPool is the fixed set of goroutines draining the async queue (spec §4.6:
// a fixed pool of N worker threads, Config.WorkerCount). Each worker loop mirrors the C
// implementation's eventAdminWorkerThread: pop an entry, acquire the handler's
// admission slot, invoke it, release the event, release the slot.
type workerPool struct {
	admin *Admin
	count int
	wg    sync.WaitGroup

	// spawnHook, if set, lets tests fault-inject a worker launch failure to exercise
	// the partial-start rollback path (SPEC_FULL.md §4, grounded on
	// CelixEventAdminErrorInjectionTestSuite.cc in original_source/).
	spawnHook func(workerIndex int) error
}

func newWorkerPool(a *Admin, count int) *workerPool {
	return &workerPool{admin: a, count: count}
}

// start launches count worker goroutines. If spawnHook returns an error for some
// index, every already-started worker is stopped and the partial start is rolled
// back, returning ErrThreadStartFailed (spec error taxonomy, §6).
func (p *workerPool) start() error {
	started := 0
	for i := 0; i < p.count; i++ {
		if p.spawnHook != nil {
			if err := p.spawnHook(i); err != nil {
				p.rollback(started)
				p.admin.logger.Error("worker pool start rolled back", "workers_started", started, "failed_index", i, "error", err)
				return fmt.Errorf("%w: worker %d: %v", ErrThreadStartFailed, i, err)
			}
		}
		p.wg.Add(1)
		go p.loop(i)
		started++
	}
	return nil
}

// rollback stops the first n already-launched workers after a later one fails to
// start, so the pool never runs with a silently shrunken worker count.
func (p *workerPool) rollback(n int) {
	p.admin.queue.close()
	p.wg.Wait()
	p.admin.queue = newAsyncQueue(p.admin.config.QueueCapacity)
}

func (p *workerPool) stop() {
	p.admin.queue.close()
	p.wg.Wait()
}

func (p *workerPool) loop(index int) {
	defer p.wg.Done()
	for {
		entry, ok := p.admin.queue.pop()
		if !ok {
			return
		}
		p.deliver(entry)
	}
}

func (p *workerPool) deliver(entry queueEntry) {
	a := p.admin
	d := a.registry.lookup(entry.handlerID)
	if d == nil || d.isBlacklisted() {
		entry.event.release()
		return
	}

	d.admission <- struct{}{}
	defer func() { <-d.admission }()

	// Re-check membership now that the admission slot is held: a handler removed
	// while this entry waited behind another in-flight call to the same handler
	// must not run (spec §4.3: remove_handler takes effect for queued entries that
	// have not yet started, not just future posts).
	if a.registry.lookup(entry.handlerID) == nil || d.isBlacklisted() {
		entry.event.release()
		return
	}

	d.markStart(a.clock.Now())
	defer d.markDone()

	start := time.Now()
	err := invokeHandler(d, entry.event)
	elapsed := time.Since(start)

	if elapsed >= a.config.SlowHandlerThreshold {
		if d.blacklist() {
			a.logger.Warn("handler blacklisted for exceeding slow-handler threshold",
				"handler_id", d.id, "elapsed", elapsed.String(), "topic", entry.event.Topic())
			a.onBlacklist(d)
		}
	}
	if err != nil {
		a.logger.Error("async handler returned error",
			"handler_id", d.id, "topic", entry.event.Topic(), "error", err)
	}
	entry.event.release()
}

// invokeHandler calls d.handler.HandleEvent, recovering a panicking handler into an
// error so one misbehaving subscriber cannot take down a worker goroutine (spec
// §4.6 robustness note: dispatch must not let one handler's failure block others).
func invokeHandler(d *handlerDescriptor, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventadmin: handler %d panicked: %v", d.id, r)
		}
	}()
	return d.handler.HandleEvent(event)
}

// blacklistMonitor periodically scans the registry for handlers whose current
// in-flight call has exceeded SlowHandlerThreshold and blacklists them even while
// still running (spec §4.7: blacklisting must not wait for the call to return).
type blacklistMonitor struct {
	admin    *Admin
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func newBlacklistMonitor(a *Admin, interval time.Duration) *blacklistMonitor {
	return &blacklistMonitor{admin: a, interval: interval, done: make(chan struct{})}
}

func (m *blacklistMonitor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.loop(ctx)
}

func (m *blacklistMonitor) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

func (m *blacklistMonitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

func (m *blacklistMonitor) scan() {
	now := m.admin.clock.Now()
	for _, d := range m.admin.registry.snapshot() {
		if d.isBlacklisted() {
			continue
		}
		if d.runningSince(now) >= m.admin.config.SlowHandlerThreshold {
			if d.blacklist() {
				m.admin.logger.Warn("handler blacklisted by monitor while still running",
					"handler_id", d.id, "running_for", d.runningSince(now).String())
				m.admin.onBlacklist(d)
			}
		}
	}
}
