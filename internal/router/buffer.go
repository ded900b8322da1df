package router

import "sync"

// Ring is a thread-safe bounded FIFO. When full, Push evicts the oldest item.
// Drain returns everything oldest-first and empties the ring.
type Ring[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // oldest item
	count    int
	capacity int

	// Stats
	totalPushed int64
	evicted     int64
	drains      int64
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting the oldest one if the ring is full.
// Returns true if an item was evicted.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalPushed++

	if r.count == r.capacity {
		// Overwrite the oldest slot and advance head.
		r.buf[r.head] = item
		r.head = (r.head + 1) % r.capacity
		r.evicted++
		return true
	}

	tail := (r.head + r.count) % r.capacity
	r.buf[tail] = item
	r.count++
	return false
}

// Drain removes and returns all items, oldest first. Returns an empty
// (non-nil) slice when the ring is empty.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.copyLocked()

	var zero T
	for i := range r.buf {
		r.buf[i] = zero // Clear references for GC
	}
	r.head = 0
	r.count = 0
	r.drains++

	return out
}

// Snapshot returns all items oldest first without removing them.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RingStats{
		Count:       r.count,
		Capacity:    r.capacity,
		TotalPushed: r.totalPushed,
		Evicted:     r.evicted,
		Drains:      r.drains,
	}
}

// RingStats contains ring statistics.
type RingStats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	Evicted     int64
	Drains      int64
}

// copyLocked must be called with the lock held.
func (r *Ring[T]) copyLocked() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%r.capacity]
	}
	return out
}
