package telemetry

import (
	"sync"
	"sync/atomic"
)

// Cache holds the latest snapshot. One writer (the channel's receive loop)
// replaces it whole; any number of readers see either the previous or the
// new snapshot, never a mix.
type Cache struct {
	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Snapshot)
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{subs: make(map[int]func(Snapshot))}
}

// Record stores s as the current snapshot and notifies subscribers.
func (c *Cache) Record(s Snapshot) {
	c.current.Store(&s)

	c.mu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Current returns the latest snapshot, or false before the first push.
func (c *Cache) Current() (Snapshot, bool) {
	p := c.current.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// IsBusy reports whether the tool or its shank is busy. It returns false
// when no snapshot has been recorded yet; callers that must distinguish
// "unknown" use Current.
func (c *Cache) IsBusy() bool {
	s, ok := c.Current()
	if !ok {
		return false
	}
	return s.Busy || s.ShankBusy
}

// Subscribe registers fn to be called after every Record. fn runs on the
// writer's goroutine and must not block. The returned func unregisters it.
func (c *Cache) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
