package types

import (
	"iter"
	"slices"
	"sync"
)

// CallbackManager keeps an ordered set of callbacks.
// The zero value is ready to use.
type CallbackManager[T any] struct {
	mu     sync.RWMutex
	cbs    []callback[T]
	nextID uint64
}

type callback[T any] struct {
	id uint64
	cb T
}

func (m *CallbackManager[T]) Len() int {
	if m == nil {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cbs)
}

// Add registers the callback and returns a function that unregisters it.
// The remove function is idempotent.
func (m *CallbackManager[T]) Add(cb T) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.cbs = append(m.cbs, callback[T]{id, cb})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.cbs = slices.DeleteFunc(m.cbs, func(c callback[T]) bool { return c.id == id })
			m.mu.Unlock()
		})
	}
}

// All iterates over a snapshot of the registered callbacks in registration order.
// Callbacks may add or remove callbacks while iterating.
func (m *CallbackManager[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if m == nil {
			return
		}

		m.mu.RLock()
		cbs := slices.Clone(m.cbs)
		m.mu.RUnlock()

		for _, c := range cbs {
			if !yield(c.cb) {
				return
			}
		}
	}
}
