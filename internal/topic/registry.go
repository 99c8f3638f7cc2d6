package topic

import "sync"

// Registry is the key -> *Topic map of spec.md §4.C, backed by sync.Map the
// way the pack's hub/session registries are (e.g.
// go-server-3/internal/session/hub.go's `clients sync.Map`) — spec §5 calls
// this out explicitly: "Topic registry: lock-free concurrent map." It owns
// every topic it creates; there is no removal (spec §9's "Unbounded topic
// map" design note — see DESIGN.md for why this module doesn't add a
// reaper).
type Registry struct {
	storeCapacity int
	topics        sync.Map // string -> *Topic
}

// NewRegistry creates an empty registry whose topics are created with the
// given message-store capacity (0 means store.DefaultCapacity).
func NewRegistry(storeCapacity int) *Registry {
	return &Registry{storeCapacity: storeCapacity}
}

// GetOrAdd returns the topic for key, creating it on first use. Concurrent
// callers on the same key observe the same *Topic (spec §4.C): a loser of
// the LoadOrStore race discards the topic it speculatively built and
// returns the winner's instead.
func (r *Registry) GetOrAdd(key string) *Topic {
	if v, ok := r.topics.Load(key); ok {
		return v.(*Topic)
	}

	t := New(key, r.storeCapacity)
	actual, _ := r.topics.LoadOrStore(key, t)
	return actual.(*Topic)
}

// Get returns the topic for key without creating it, and whether it
// existed.
func (r *Registry) Get(key string) (*Topic, bool) {
	v, ok := r.topics.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Topic), true
}

// All returns a snapshot of every topic currently in the registry. Used by
// the engine's idle-check timer to re-Schedule every subscription (spec
// §4.E "iterate all topics and call Schedule on every subscription").
func (r *Registry) All() []*Topic {
	var out []*Topic
	r.topics.Range(func(_, v interface{}) bool {
		out = append(out, v.(*Topic))
		return true
	})
	return out
}
