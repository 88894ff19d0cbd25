// Package flight is a get-or-load cache for expensive async resources
// (large textures, card art, bulk static data). However many callers ask
// for a key at once, the loader runs once; subscribers see every state
// transition and late subscribers are replayed the current state.
package flight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Update is what subscribers receive: the state of one key plus its
// terminal value or error.
type Update[V any] struct {
	Key   string
	State State
	Value V
	Err   error
}

// LoaderFunc produces the value for a key. It runs at most once per key
// until the entry is Reset.
type LoaderFunc[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	state  State
	value  V
	err    error
	subs   map[int]func(Update[V])
	nextID int
}

type Cache[V any] struct {
	mu      sync.Mutex
	loader  LoaderFunc[V]
	entries map[string]*entry[V]
	group   singleflight.Group
	logger  *slog.Logger
}

func NewCache[V any](loader LoaderFunc[V], logger *slog.Logger) *Cache[V] {
	return &Cache[V]{
		loader:  loader,
		entries: make(map[string]*entry[V]),
		logger:  logger,
	}
}

func (c *Cache[V]) entryLocked(key string) *entry[V] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{subs: make(map[int]func(Update[V]))}
		c.entries[key] = e
	}
	return e
}

// transition flips the entry state and notifies subscribers outside the
// lock, in subscription order not guaranteed (map iteration), but each
// subscriber sees transitions in order because transitions are serialized
// under the cache mutex.
func (c *Cache[V]) transition(key string, st State, v V, err error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.state = st
	e.value = v
	e.err = err
	notify := make([]func(Update[V]), 0, len(e.subs))
	for _, fn := range e.subs {
		notify = append(notify, fn)
	}
	c.mu.Unlock()

	u := Update[V]{Key: key, State: st, Value: v, Err: err}
	for _, fn := range notify {
		fn(u)
	}
}

// GetOrLoad returns the cached value for key, joining an in-flight load
// if one exists and starting one otherwise. Terminal states are sticky:
// a key that loaded stays loaded, and a key that failed keeps returning
// the same error until Reset.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string) (V, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	switch e.state {
	case StateLoaded:
		v := e.value
		c.mu.Unlock()
		return v, nil
	case StateErrored:
		err := e.err
		var zero V
		c.mu.Unlock()
		return zero, err
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		var zero V
		// re-check under the lock: a previous flight may have landed
		// between the state check above and joining this one
		c.mu.Lock()
		e := c.entryLocked(key)
		if e.state == StateLoaded {
			v := e.value
			c.mu.Unlock()
			return v, nil
		}
		if e.state == StateErrored {
			err := e.err
			c.mu.Unlock()
			return zero, err
		}
		c.mu.Unlock()

		c.transition(key, StateLoading, zero, nil)
		c.logger.Debug("load start", "key", key)
		val, err := c.loader(ctx, key)
		if err != nil {
			c.logger.Warn("load failed", "key", key, "err", err)
			c.transition(key, StateErrored, zero, err)
			return zero, err
		}
		c.transition(key, StateLoaded, val, nil)
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Peek reports the current state of key without triggering a load.
func (c *Cache[V]) Peek(key string) Update[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Update[V]{Key: key, State: StateIdle}
	}
	return Update[V]{Key: key, State: e.state, Value: e.value, Err: e.err}
}

// Subscribe registers fn for state changes of key and immediately replays
// the current state, so a subscriber arriving after the load finished is
// not stuck waiting for a transition it missed. The returned function
// unsubscribes.
func (c *Cache[V]) Subscribe(key string, fn func(Update[V])) (cancel func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	current := Update[V]{Key: key, State: e.state, Value: e.value, Err: e.err}
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[key]; ok {
			delete(e.subs, id)
		}
	}
}

// Reset re-arms a terminal entry so the next GetOrLoad runs the loader
// again. Subscribers are told the key went back to Idle. Resetting a key
// that is mid-load is refused; the in-flight load will land first.
func (c *Cache[V]) Reset(key string) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	if e.state == StateLoading {
		c.mu.Unlock()
		return fmt.Errorf("flight: reset of %q while load in flight", key)
	}
	c.mu.Unlock()

	c.group.Forget(key)
	var zero V
	c.transition(key, StateIdle, zero, nil)
	return nil
}
