// Package topic implements the topic registry and per-topic subscriber
// bookkeeping of spec.md §4.C and §3. Topics are created lazily on first
// publish or subscribe and are never destroyed (spec §3 "Lifecycles").
package topic

import (
	"strings"
	"sync"

	"github.com/odin-labs/signalbus/internal/store"
)

// Subscriber is the minimal shape a Topic needs from a subscription: an
// identity for dedupe (spec §3's "set of subscription identities
// (for dedupe, case-insensitive)"). The concrete type lives in
// internal/subscription; topic only depends on this narrow interface to
// avoid an import cycle (subscriptions hold topic references, so
// internal/subscription imports topic and topic cannot import it).
type Subscriber interface {
	Identity() string
}

// Topic owns one message store and the set of subscriptions currently
// interested in it, guarded by a single reader/writer lock (spec §3, §5):
// publishers take the read lock to snapshot subscribers, subscribe/
// unsubscribe take the write lock.
type Topic struct {
	Key   string
	Store *store.Store

	mu          sync.RWMutex
	subs        []Subscriber
	identitySet map[string]struct{} // lower-cased identity -> present
}

// New creates a Topic with a fresh message store of the given capacity (0
// means store.DefaultCapacity).
func New(key string, capacity int) *Topic {
	return &Topic{
		Key:         key,
		Store:       store.New(capacity),
		identitySet: make(map[string]struct{}),
	}
}

// AddSubscriber registers sub with this topic, deduped case-insensitively
// by identity (spec §3 invariant: "A subscription appears at most once in
// a topic's subscription list"). Returns false if sub was already present.
func (t *Topic) AddSubscriber(sub Subscriber) bool {
	key := strings.ToLower(sub.Identity())

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.identitySet[key]; exists {
		return false
	}

	t.identitySet[key] = struct{}{}
	t.subs = append(t.subs, sub)
	return true
}

// RemoveSubscriber drops sub from this topic's subscriber list. It's a
// no-op (not an error) if sub was never present — spec §7 "Queue underflow,
// map-lookup miss on remove. Silently tolerated (idempotent teardown)."
func (t *Topic) RemoveSubscriber(sub Subscriber) {
	key := strings.ToLower(sub.Identity())

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.identitySet[key]; !exists {
		return
	}
	delete(t.identitySet, key)

	for i, s := range t.subs {
		if strings.EqualFold(s.Identity(), sub.Identity()) {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			break
		}
	}
}

// Subscribers returns a snapshot of the current subscriber list. Publishers
// call this under the topic's read lock to decide who to schedule (spec
// §5: "publishers take the read lock while snapshotting the subscriber
// list to schedule").
func (t *Topic) Subscribers() []Subscriber {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Subscriber, len(t.subs))
	copy(out, t.subs)
	return out
}
