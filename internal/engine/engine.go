// Package engine implements the adaptive worker-pool scheduler of
// spec.md §4.E, generalized from src/worker_pool.go's fixed-size
// WorkerPool: that teacher pool starts N workers up front and drops tasks
// when its buffered channel fills. The spec instead wants demand-driven
// growth (spawn only when every existing worker is busy) and slack-driven
// shrink (retire idle workers above MaxIdleWorkers), with no dropped work —
// so the fixed channel buffer becomes a mutex+slice FIFO with a
// sync.Cond, and Start/Stop's context-cancellation shutdown becomes an
// explicit Shutdown that lets in-flight pumps drain (spec §12.2).
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/odin-labs/signalbus/internal/telemetry"
	"github.com/odin-labs/signalbus/internal/topic"
	"github.com/odin-labs/signalbus/internal/trace"
)

// Pumpable is the subset of *subscription.Subscription the engine needs.
// Defined here (rather than imported from internal/subscription) so the
// engine has no compile-time dependency on the subscription package;
// *subscription.Subscription satisfies this interface structurally.
type Pumpable interface {
	Identity() string
	SetQueued() bool
	UnsetQueued()
	WorkAsync(registry *topic.Registry) error
}

// Config holds the engine's tunables (spec §4.E).
type Config struct {
	MaxWorkers        int
	MaxIdleWorkers    int
	IdleCheckInterval time.Duration
}

// Engine is the bounded FIFO of ready subscriptions plus the adaptive
// worker pool that drains it (spec §4.E).
type Engine struct {
	cfg      Config
	registry *topic.Registry
	telem    telemetry.Sink
	trace    trace.Sink

	queueMu sync.Mutex
	cond    *sync.Cond
	queue   []Pumpable
	closed  bool

	allocated int32
	busy      int32
	checking  int32

	stopTimer chan struct{}
	timerDone chan struct{}
	wg        sync.WaitGroup
}

// New builds an Engine. registry is used by the idle-check timer to
// rediscover every live subscription (spec §4.E "Timer (idle poller)").
func New(cfg Config, registry *topic.Registry, telem telemetry.Sink, tr trace.Sink) *Engine {
	if telem == nil {
		telem = telemetry.NoopSink{}
	}
	if tr == nil {
		tr = trace.Noop{}
	}

	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		telem:     telem,
		trace:     tr,
		stopTimer: make(chan struct{}),
		timerDone: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.queueMu)

	e.wg.Add(1)
	go e.idlePoller()

	return e
}

// AllocatedWorkers returns the number of workers currently alive.
func (e *Engine) AllocatedWorkers() int { return int(atomic.LoadInt32(&e.allocated)) }

// BusyWorkers returns the number of workers currently executing a pump.
func (e *Engine) BusyWorkers() int { return int(atomic.LoadInt32(&e.busy)) }

// Schedule enqueues sub if it isn't already queued, and grows the pool if
// every existing worker is busy (spec §4.E "Schedule").
func (e *Engine) Schedule(sub Pumpable) {
	if !sub.SetQueued() {
		return
	}

	e.queueMu.Lock()
	if e.closed {
		e.queueMu.Unlock()
		return
	}
	e.queue = append(e.queue, sub)
	e.cond.Signal()
	e.queueMu.Unlock()

	e.maybeAddWorker()
}

// maybeAddWorker spawns a new worker iff allocated < MaxWorkers and every
// currently allocated worker is busy (spec §4.E "AddWorker").
func (e *Engine) maybeAddWorker() {
	for {
		allocated := atomic.LoadInt32(&e.allocated)
		busy := atomic.LoadInt32(&e.busy)

		if allocated >= int32(e.cfg.MaxWorkers) || allocated != busy {
			return
		}
		if !atomic.CompareAndSwapInt32(&e.allocated, allocated, allocated+1) {
			continue // lost the race with another spawn decision, retry
		}

		e.telem.GetCounter(telemetry.AllocatedWorkers).SafeSetRaw(float64(allocated + 1))
		e.wg.Add(1)
		go e.worker()
		return
	}
}

// worker is the Pump body of spec §4.E.
func (e *Engine) worker() {
	defer e.wg.Done()

	for {
		idle := atomic.LoadInt32(&e.allocated) - atomic.LoadInt32(&e.busy)
		if idle > int32(e.cfg.MaxIdleWorkers) {
			e.retireSelf()
			return
		}

		e.queueMu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 && e.closed {
			e.queueMu.Unlock()
			e.retireSelf()
			return
		}
		sub := e.queue[0]
		e.queue = e.queue[1:]
		e.queueMu.Unlock()

		atomic.AddInt32(&e.busy, 1)
		e.telem.GetCounter(telemetry.BusyWorkers).SafeSetRaw(float64(atomic.LoadInt32(&e.busy)))

		if err := sub.WorkAsync(e.registry); err != nil {
			e.trace.Infof("subscription %s pump faulted: %v", sub.Identity(), err)
		}

		// This UnsetQueued is the race-free handoff spec §4.E describes:
		// any Publish that observed queued=1 during this pump is
		// coalesced into the run that just finished; anything that
		// arrives after this line re-queues.
		sub.UnsetQueued()

		atomic.AddInt32(&e.busy, -1)
		e.telem.GetCounter(telemetry.BusyWorkers).SafeSetRaw(float64(atomic.LoadInt32(&e.busy)))
	}
}

// retireSelf decrements allocated exactly once, regardless of which branch
// the worker exited from (spec §4.E).
func (e *Engine) retireSelf() {
	allocated := atomic.AddInt32(&e.allocated, -1)
	if allocated < 0 {
		// Programmer-bug guard (spec §7 "internal assertion violation"):
		// clamp and report rather than let the counter go negative.
		atomic.StoreInt32(&e.allocated, 0)
		e.trace.Errorf("engine: allocated worker count went negative")
		allocated = 0
	}
	e.telem.GetCounter(telemetry.AllocatedWorkers).SafeSetRaw(float64(allocated))
}

// idlePoller is the single-flight timer of spec §4.E: every
// IdleCheckInterval, re-Schedule every subscription of every topic, to
// recover from the narrow window where Publish observed queued=1 after the
// running pump had already made its last read, so the new messages were
// neither drained by that pump nor re-queued before UnsetQueued.
func (e *Engine) idlePoller() {
	defer e.wg.Done()
	defer close(e.timerDone)

	ticker := time.NewTicker(e.cfg.IdleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopTimer:
			return
		case <-ticker.C:
			e.runIdleCheck()
		}
	}
}

func (e *Engine) runIdleCheck() {
	if !atomic.CompareAndSwapInt32(&e.checking, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&e.checking, 0)

	for _, t := range e.registry.All() {
		for _, s := range t.Subscribers() {
			if pumpable, ok := s.(Pumpable); ok {
				e.Schedule(pumpable)
			}
		}
	}
}

// Shutdown stops the idle-check timer and wakes every worker so they drain
// and exit (spec §12.2); it does not interrupt an in-flight pump.
func (e *Engine) Shutdown() {
	close(e.stopTimer)
	<-e.timerDone

	e.queueMu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.queueMu.Unlock()

	e.wg.Wait()
}
