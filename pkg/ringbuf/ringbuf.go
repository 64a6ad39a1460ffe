// Package ringbuf provides a fixed-capacity FIFO that evicts its oldest entry
// when full.
package ringbuf

// Buffer is a bounded FIFO. The zero value is unusable; call New.
// Buffer is not safe for concurrent use.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New returns an empty buffer holding at most capacity items. A capacity
// below one is raised to one.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when the buffer is full. It
// reports whether an item was evicted.
func (b *Buffer[T]) Push(v T) bool {
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = v
		b.size++
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % capacity
	return true
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the maximum number of stored items.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Values returns the items oldest first in a fresh slice.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Reset drops every item and keeps the capacity.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
