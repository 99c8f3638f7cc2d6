// Package subscription implements the subscription state machine and pump
// loop of spec.md §4.D: an ordered cursor list, a delivery callback, and
// the three atomic queued/working/disposed flags.
//
// The pump algorithm is translated from the source design's
// promise/continuation chain (spec §9 "Control-flow-via-goto pump") into a
// single blocking call on the worker goroutine that invoked it: the
// callback is called synchronously and the pump loops or exits based on
// its result. A goroutine blocked on a callback is the idiomatic Go
// equivalent of a continuation "resuming on whatever scheduler thread the
// promise completes on" — the worker simply doesn't return until the
// subscription goes idle, which is exactly what busy/allocated accounting
// in internal/engine expects.
package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/odin-labs/signalbus/internal/cursor"
	"github.com/odin-labs/signalbus/internal/store"
	"github.com/odin-labs/signalbus/internal/topic"
)

// Result is delivered to a subscriber's callback on every pump batch,
// including the terminal, items-less batch sent once after disposal (spec
// §5 "a final synthetic MessageResult carrying just the terminal cursor
// string is delivered").
type Result struct {
	Items      []store.Message
	Cursor     string
	TotalCount int
}

// Callback is the subscriber's delivery function. cont=false disposes the
// subscription after this batch; a non-nil err is a callback fault (spec
// §7): it's reported to the engine's trace sink and processing of other
// subscriptions continues, but this subscription is not auto-disposed.
type Callback func(Result) (cont bool, err error)

type cursorEntry struct {
	key   string
	id    uint64
	topic *topic.Topic
}

// Subscription is one subscriber's read-side state across zero or more
// topics (spec §3, §4.D). Equality and hashing are by Identity.
type Subscription struct {
	identity    string
	maxMessages int
	callback    Callback

	mu      sync.Mutex
	cursors []cursorEntry

	queued       int32
	working      int32
	disposed     int32
	terminalSent int32
}

// New creates a Subscription. maxMessages is not treated as "no cap" when
// it is <= 0: the store's GetMessages returns no messages for a
// non-positive count, so such a subscription never receives a batch.
// Callers pass a positive default — see internal/config's
// DefaultMaxMessages.
func New(identity string, maxMessages int, callback Callback) *Subscription {
	return &Subscription{
		identity:    identity,
		maxMessages: maxMessages,
		callback:    callback,
	}
}

// Identity returns the subscriber's stable identity (spec §3, §6).
func (s *Subscription) Identity() string { return s.identity }

func findCursor(cursors []cursorEntry, key string) int {
	for i := range cursors {
		if cursors[i].key == key {
			return i
		}
	}
	return -1
}

// AddOrUpdateCursor appends {key,id,topic} if no cursor exists for key,
// returning true. If one already exists, it's left untouched and this
// returns false (spec §4.D table).
func (s *Subscription) AddOrUpdateCursor(key string, id uint64, t *topic.Topic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if findCursor(s.cursors, key) >= 0 {
		return false
	}
	s.cursors = append(s.cursors, cursorEntry{key: key, id: id, topic: t})
	return true
}

// UpdateCursor sets the id of an existing cursor for key, returning
// whether one existed.
func (s *Subscription) UpdateCursor(key string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := findCursor(s.cursors, key)
	if i < 0 {
		return false
	}
	s.cursors[i].id = id
	return true
}

// SetCursorTopic attaches a topic reference to an existing cursor for key
// (spec §4.B "Topic linkage during decode"). The pump does not call it: a
// cursor without a topic is resolved through the registry inside WorkAsync.
func (s *Subscription) SetCursorTopic(key string, t *topic.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := findCursor(s.cursors, key); i >= 0 {
		s.cursors[i].topic = t
	}
}

// RemoveCursor drops all cursors for key.
func (s *Subscription) RemoveCursor(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.cursors[:0]
	for _, c := range s.cursors {
		if c.key != key {
			out = append(out, c)
		}
	}
	s.cursors = out
}

// Keys returns the topic keys this subscription currently holds cursors
// for, used by the owner on unsubscribe to remove the subscription from
// each of those topics.
func (s *Subscription) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.cursors))
	for i, c := range s.cursors {
		out[i] = c.key
	}
	return out
}

// CursorString returns the current cursor list encoded via
// internal/cursor, usable to anchor a future resubscribe.
func (s *Subscription) CursorString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encode(s.cursors)
}

func encode(cursors []cursorEntry) string {
	out := make([]cursor.Cursor, len(cursors))
	for i, c := range cursors {
		out[i] = cursor.Cursor{Key: c.key, ID: c.id}
	}
	return cursor.Encode(out)
}

// Dispose is idempotent: after this, no further callbacks are initiated
// beyond the one terminal cursor-only batch (spec §4.D, §5).
func (s *Subscription) Dispose() {
	atomic.StoreInt32(&s.disposed, 1)
}

// Disposed reports whether Dispose has been called.
func (s *Subscription) Disposed() bool {
	return atomic.LoadInt32(&s.disposed) == 1
}

// SetQueued attempts the 0->1 queued transition the engine relies on to
// collapse bursts of schedule requests into a single FIFO entry (spec
// §3 invariant, §4.E "Schedule"). Returns true if this call performed the
// transition.
func (s *Subscription) SetQueued() bool {
	return atomic.CompareAndSwapInt32(&s.queued, 0, 1)
}

// UnsetQueued clears the queued flag. Called by the engine's worker after
// a pump completes, creating the race-free handoff described in spec §4.E.
func (s *Subscription) UnsetQueued() {
	atomic.StoreInt32(&s.queued, 0)
}

// WorkAsync is the engine's entry point into this subscription's pump
// (spec §4.D). If another worker already owns this subscription's pump
// (working was already 1), it returns immediately. Otherwise it drains
// pending messages across all cursors, invokes the callback, and loops
// until idle, disposed, or the callback stops it. A returned error is a
// callback fault (spec §7); it does not imply the pump made no progress.
func (s *Subscription) WorkAsync(registry *topic.Registry) error {
	if !atomic.CompareAndSwapInt32(&s.working, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&s.working, 0)

	for {
		if s.Disposed() {
			return s.deliverTerminal()
		}

		s.mu.Lock()
		clones := make([]cursorEntry, len(s.cursors))
		copy(clones, s.cursors)
		s.mu.Unlock()

		var items []store.Message
		total := 0
		for i := range clones {
			c := &clones[i]
			if c.topic == nil {
				c.topic = registry.GetOrAdd(c.key)
			}
			firstID, msgs := c.topic.Store.GetMessages(c.id, s.maxMessages)
			if len(msgs) > 0 {
				items = append(items, msgs...)
				total += len(msgs)
			}
			// Advance past whatever the store actually had, whether that
			// was a contiguous read from c.id or a resume at the oldest
			// still-retained id after ring wrap (spec §4.A, §4.D step b).
			c.id = firstID + uint64(len(msgs))
		}

		if len(items) == 0 {
			return nil
		}

		nextCursor := encode(clones)

		s.mu.Lock()
		s.cursors = clones
		s.mu.Unlock()

		cont, err := s.callback(Result{Items: items, Cursor: nextCursor, TotalCount: total})
		if err != nil {
			return err
		}
		if !cont {
			s.Dispose()
			continue
		}
	}
}

// deliverTerminal sends the one-time, items-less final batch after
// disposal (spec §5) and is a no-op on subsequent calls.
func (s *Subscription) deliverTerminal() error {
	if !atomic.CompareAndSwapInt32(&s.terminalSent, 0, 1) {
		return nil
	}

	s.mu.Lock()
	finalCursor := encode(s.cursors)
	s.mu.Unlock()

	_, err := s.callback(Result{Cursor: finalCursor})
	return err
}
