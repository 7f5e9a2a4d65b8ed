package types

import "sync"

// Deque is a thread-safe FIFO queue backed by a slice.
// It is used as an unbounded actor mailbox.
type Deque[T any] struct {
	mu   sync.Mutex
	data []T
}

// Append adds the element to the end of the deque.
func (d *Deque[T]) Append(item T) {
	d.mu.Lock()
	d.data = append(d.data, item)
	d.mu.Unlock()
}

// PopFirst removes and returns the element from the front of the deque.
// The second return value is false when the deque is empty.
func (d *Deque[T]) PopFirst() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	if len(d.data) == 0 {
		return zero, false
	}

	item := d.data[0]
	d.data[0] = zero
	d.data = d.data[1:]
	if len(d.data) == 0 {
		d.data = nil
	}
	return item, true
}

// Drain returns all buffered elements in FIFO order and clears the deque.
func (d *Deque[T]) Drain() []T {
	d.mu.Lock()
	out := d.data
	d.data = nil
	d.mu.Unlock()
	return out
}

// Len returns the current number of elements in the deque.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data)
}
