// Package observable provides reactive state cells. A cell holds one value
// and notifies registered watchers whenever the value is set. Watchers run
// synchronously on the goroutine that calls Set, so a cell that is only ever
// written from a foreground loop delivers every notification on that loop.
package observable

import (
	"maps"
	"slices"
	"sync"
)

// Watcher is called with the previous and the new value of a cell.
type Watcher[T any] func(old, new T)

// Cell is the read-only view of a Value.
type Cell[T any] interface {
	// Get returns the current value. It is safe to call from any goroutine.
	Get() T

	// Watch registers w and returns a function that removes it.
	Watch(w Watcher[T]) (unwatch func())
}

// Value is a writable cell. It is safe for concurrent use.
type Value[T any] struct {
	mu       sync.Mutex
	value    T
	watchers map[int]Watcher[T]
	nextID   int
}

// NewValue creates a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		value:    initial,
		watchers: make(map[int]Watcher[T]),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores value and notifies every watcher, even when the value did not
// change. Watchers are called after the lock is released so they may read or
// write the cell themselves.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	old := v.value
	v.value = value
	watchers := make([]Watcher[T], 0, len(v.watchers))
	for _, id := range slices.Sorted(maps.Keys(v.watchers)) {
		watchers = append(watchers, v.watchers[id])
	}
	v.mu.Unlock()

	for _, w := range watchers {
		w(old, value)
	}
}

// Watch registers w. Watchers are notified in registration order.
func (v *Value[T]) Watch(w Watcher[T]) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.watchers[id] = w

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.watchers, id)
	}
}

// ReadOnly returns a view of v that cannot be written through.
func (v *Value[T]) ReadOnly() Cell[T] {
	return readOnly[T]{v: v}
}

type readOnly[T any] struct {
	v *Value[T]
}

func (r readOnly[T]) Get() T {
	return r.v.Get()
}

func (r readOnly[T]) Watch(w Watcher[T]) func() {
	return r.v.Watch(w)
}
