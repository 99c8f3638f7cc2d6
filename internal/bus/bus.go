// Package bus assembles internal/store, internal/topic, internal/
// subscription, and internal/engine into the public API surface of
// spec.md §6: Publish, Subscribe, GetCursor, and the allocated/busy worker
// counters.
package bus

import (
	"strconv"
	"sync/atomic"

	"github.com/odin-labs/signalbus/internal/cursor"
	"github.com/odin-labs/signalbus/internal/engine"
	"github.com/odin-labs/signalbus/internal/subscription"
	"github.com/odin-labs/signalbus/internal/telemetry"
	"github.com/odin-labs/signalbus/internal/topic"
	"github.com/odin-labs/signalbus/internal/trace"
)

// Subscriber is the caller-supplied identity and initial interest set for a
// Subscribe call (spec §6 "Subscriber contract"). EventKeys seeds the
// cursor list for any key that has no entry in the resumed cursor string.
//
// §6 also names EventAdded/EventRemoved hooks on the subscriber contract.
// Their call direction is ambiguous in the distilled spec (whether the
// core invokes them or the subscriber fires them), and tracking a
// subscriber's live interest set is adjacent to "higher-level hub
// dispatch," which §1 places out of scope for this core. This package
// resolves that open question by exposing the equivalent capability the
// other way around: Handle.AddTopic/RemoveTopic, which a hub layer calls
// whenever it observes its own EventAdded/EventRemoved firing.
type Subscriber interface {
	Identity() string
	EventKeys() []string
}

// Config configures a Bus. A zero StoreCapacity uses the store's default
// capacity, a zero DefaultMaxMessages uses 256, and nil Telemetry/Trace use
// no-op sinks. Engine is passed to engine.New unchanged: its zero values
// are not replaced by defaults, so callers set them (cmd/busdemo derives
// them from internal/platform).
type Config struct {
	StoreCapacity      int
	Engine             engine.Config
	DefaultMaxMessages int
	Telemetry          telemetry.Sink
	Trace              trace.Sink
}

// Bus is the assembled message bus core (spec §2's five components wired
// together behind the public API of §6).
type Bus struct {
	registry           *topic.Registry
	engine             *engine.Engine
	telem              telemetry.Sink
	trace              trace.Sink
	defaultMaxMessages int
}

// New assembles a Bus from cfg.
func New(cfg Config) *Bus {
	telem := cfg.Telemetry
	if telem == nil {
		telem = telemetry.NoopSink{}
	}
	tr := cfg.Trace
	if tr == nil {
		tr = trace.Noop{}
	}
	defaultMaxMessages := cfg.DefaultMaxMessages
	if defaultMaxMessages <= 0 {
		defaultMaxMessages = 256
	}

	registry := topic.NewRegistry(cfg.StoreCapacity)
	eng := engine.New(cfg.Engine, registry, telem, tr)

	return &Bus{
		registry:           registry,
		engine:             eng,
		telem:              telem,
		trace:              tr,
		defaultMaxMessages: defaultMaxMessages,
	}
}

// Publish appends payload to key's store and schedules every current
// subscriber of that topic onto the engine (spec §2 "Data flow").
// Publish always completes successfully — there is no error kind a
// publisher can observe (spec §7).
func (b *Bus) Publish(key string, payload []byte) {
	tp := b.registry.GetOrAdd(key)
	tp.Store.Add(key, payload)

	b.telem.GetCounter(telemetry.MessagesPublishedTotal).SafeIncrement()

	for _, sub := range tp.Subscribers() {
		if pumpable, ok := sub.(engine.Pumpable); ok {
			b.engine.Schedule(pumpable)
		}
	}
}

// Handle is the unsubscribe/interest-mutation handle returned by Subscribe
// (spec §6 "unsubscribeHandle").
type Handle struct {
	bus          *Bus
	sub          *subscription.Subscription
	unsubscribed int32
}

// Subscribe registers subscriber's callback against the topics named by
// subscriber.EventKeys(), resumed from cursorString if non-empty (spec
// §4.B "Topic linkage during decode": decoded cursors carry no topic
// reference, so Subscribe attaches one for every key it creates or
// resumes). maxMessages <= 0 uses the bus's configured default.
//
// Subscribe schedules the new subscription on the engine before returning,
// so any topic backlog already present is delivered asynchronously by a
// worker; Subscribe does not wait for that first pump.
func (b *Bus) Subscribe(subscriber Subscriber, cursorString string, callback subscription.Callback, maxMessages int) *Handle {
	if maxMessages <= 0 {
		maxMessages = b.defaultMaxMessages
	}

	resumed := make(map[string]uint64)
	for _, c := range cursor.Decode(cursorString) {
		resumed[c.Key] = c.ID
	}

	keys := subscriber.EventKeys()
	seen := make(map[string]struct{}, len(keys)+len(resumed))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for k := range resumed {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
			seen[k] = struct{}{}
		}
	}

	sub := subscription.New(subscriber.Identity(), maxMessages, callback)
	for _, key := range keys {
		tp := b.registry.GetOrAdd(key)
		sub.AddOrUpdateCursor(key, resumed[key], tp)
		tp.AddSubscriber(sub)
	}

	b.telem.GetCounter(telemetry.SubscribersTotal).SafeIncrement()
	b.telem.GetCounter(telemetry.SubscribersCurrent).SafeIncrement()

	b.engine.Schedule(sub)

	return &Handle{bus: b, sub: sub}
}

// AddTopic extends the subscription's interest to key, attaching it to
// key's topic and scheduling an immediate pump so any existing backlog is
// delivered. A key already present is left untouched.
func (h *Handle) AddTopic(key string) {
	tp := h.bus.registry.GetOrAdd(key)
	if h.sub.AddOrUpdateCursor(key, 0, tp) {
		tp.AddSubscriber(h.sub)
		h.bus.engine.Schedule(h.sub)
	}
}

// RemoveTopic drops key from the subscription's interest set. It's a
// no-op if the subscription never held a cursor for key.
func (h *Handle) RemoveTopic(key string) {
	if tp, ok := h.bus.registry.Get(key); ok {
		tp.RemoveSubscriber(h.sub)
	}
	h.sub.RemoveCursor(key)
}

// CursorString returns the subscription's current cursor string, suitable
// for persisting and later passing back into Subscribe.
func (h *Handle) CursorString() string {
	return h.sub.CursorString()
}

// Unsubscribe disposes the subscription and removes it from every topic it
// holds a cursor for (spec §9 "the unsubscribe teardown is responsible for
// removing the subscription from every topic before the subscription's
// storage is reclaimed"). It's safe to call more than once.
func (h *Handle) Unsubscribe() {
	if !atomic.CompareAndSwapInt32(&h.unsubscribed, 0, 1) {
		return
	}
	for _, key := range h.sub.Keys() {
		if tp, ok := h.bus.registry.Get(key); ok {
			tp.RemoveSubscriber(h.sub)
		}
	}
	h.sub.Dispose()
	h.bus.telem.GetCounter(telemetry.SubscribersCurrent).SafeDecrement()
}

// GetCursor returns key's next-id-to-be-written as a decimal string (spec
// §6), usable to anchor a fresh subscription's starting point without
// reading any messages.
func (b *Bus) GetCursor(key string) string {
	tp := b.registry.GetOrAdd(key)
	return strconv.FormatUint(tp.Store.GetMessageCount(), 10)
}

// AllocatedWorkers returns the engine's current worker count (spec §6).
func (b *Bus) AllocatedWorkers() int { return b.engine.AllocatedWorkers() }

// BusyWorkers returns the engine's current busy-worker count (spec §6).
func (b *Bus) BusyWorkers() int { return b.engine.BusyWorkers() }

// Shutdown stops the engine's idle-check timer and lets in-flight pumps
// drain (spec §12.2 of SPEC_FULL.md).
func (b *Bus) Shutdown() {
	b.engine.Shutdown()
}
