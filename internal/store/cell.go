package store

import "sync"

// Cell holds a value and notifies subscribers synchronously on every change.
// Subscribers run in registration order, outside the cell lock.
type Cell[T any] struct {
	mu     sync.Mutex
	value  T
	subs   []subscription[T]
	nextID int
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the current value. Slice values are shared; treat them as read-only.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, v)
}

// Update replaces the value with fn(current) and notifies subscribers.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	v := fn(c.value)
	c.value = v
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, v)
}

// Subscribe registers fn for future changes and returns a function removing it.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, subscription[T]{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cell[T]) snapshotSubs() []subscription[T] {
	if len(c.subs) == 0 {
		return nil
	}
	out := make([]subscription[T], len(c.subs))
	copy(out, c.subs)
	return out
}

func notify[T any](subs []subscription[T], v T) {
	for _, s := range subs {
		s.fn(v)
	}
}
