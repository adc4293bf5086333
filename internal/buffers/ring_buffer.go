// ring_buffer.go — Generic bounded ring buffer with FIFO eviction.
// Every telemetry stream (console, network, interactions, DOM, screenshots) is one of these.
// Thread-safe: all access guarded by RWMutex. Filter runs under the write lock so a
// concurrent Push lands either before the pass (and is judged) or after it (and is kept).
package buffers

import (
	"sync"
	"time"
)

// RingBuffer is a generic fixed-capacity circular buffer with insertion timestamps.
// Entries are evicted in FIFO order when capacity is exceeded.
type RingBuffer[T any] struct {
	mu sync.RWMutex

	entries  []T
	addedAt  []time.Time // Parallel slice: when each entry was added
	capacity int

	totalAdded int64 // Monotonic counter of all entries ever added
	head       int   // Index where next write goes once the buffer is full

	onEvict func(T) // Called with mu held; must not call back into the buffer
}

// NewRingBuffer creates a new ring buffer with the given capacity.
// Capacities below 1 are clamped to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		addedAt:  make([]time.Time, 0, capacity),
		capacity: capacity,
	}
}

// OnEvict registers a callback invoked for every entry removed by capacity
// eviction or by Filter. Clear does not invoke it.
func (rb *RingBuffer[T]) OnEvict(fn func(T)) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.onEvict = fn
}

// Push appends one entry, evicting the oldest if the buffer is full.
func (rb *RingBuffer[T]) Push(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writeOneLocked(entry, time.Now())
}

// Write appends entries in order. Returns the number of entries written.
func (rb *RingBuffer[T]) Write(entries []T) int {
	if len(entries) == 0 {
		return 0
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	now := time.Now()
	for _, entry := range entries {
		rb.writeOneLocked(entry, now)
	}
	return len(entries)
}

// writeOneLocked adds one entry, must be called with mu held.
func (rb *RingBuffer[T]) writeOneLocked(entry T, addedAt time.Time) {
	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
		rb.addedAt = append(rb.addedAt, addedAt)
	} else {
		// Buffer full, overwrite the oldest entry at head
		evicted := rb.entries[rb.head]
		rb.entries[rb.head] = entry
		rb.addedAt[rb.head] = addedAt
		if rb.onEvict != nil {
			rb.onEvict(evicted)
		}
	}
	rb.head = (rb.head + 1) % rb.capacity
	rb.totalAdded++
}

// Snapshot returns all entries currently in the buffer, oldest first.
// The returned slice is a copy; the buffer is not mutated.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.orderedLocked()
}

// orderedLocked returns a copy of the entries in arrival order. Caller holds mu.
func (rb *RingBuffer[T]) orderedLocked() []T {
	result := make([]T, len(rb.entries))
	if len(rb.entries) < rb.capacity {
		copy(result, rb.entries)
		return result
	}
	// Buffer full, head points to oldest entry
	n := copy(result, rb.entries[rb.head:])
	copy(result[n:], rb.entries[:rb.head])
	return result
}

// ReadLast returns the last n entries, oldest first.
func (rb *RingBuffer[T]) ReadLast(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.entries) == 0 || n <= 0 {
		return []T{}
	}
	all := rb.orderedLocked()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Filter keeps only the entries for which keep returns true, preserving order.
// Returns the number of entries removed.
func (rb *RingBuffer[T]) Filter(keep func(T) bool) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) == 0 {
		return 0
	}

	ordered := rb.orderedLocked()
	orderedAt := rb.orderedTimesLocked()

	keptEntries := make([]T, 0, rb.capacity)
	keptAt := make([]time.Time, 0, rb.capacity)
	removed := 0
	for i, entry := range ordered {
		if keep(entry) {
			keptEntries = append(keptEntries, entry)
			keptAt = append(keptAt, orderedAt[i])
			continue
		}
		removed++
		if rb.onEvict != nil {
			rb.onEvict(entry)
		}
	}
	if removed == 0 {
		return 0
	}

	// Compacted entries are in order from index 0
	rb.entries = keptEntries
	rb.addedAt = keptAt
	rb.head = len(keptEntries) % rb.capacity
	return removed
}

func (rb *RingBuffer[T]) orderedTimesLocked() []time.Time {
	result := make([]time.Time, len(rb.addedAt))
	if len(rb.addedAt) < rb.capacity {
		copy(result, rb.addedAt)
		return result
	}
	n := copy(result, rb.addedAt[rb.head:])
	copy(result[n:], rb.addedAt[:rb.head])
	return result
}

// Find returns the newest entry matching pred.
func (rb *RingBuffer[T]) Find(pred func(T) bool) (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	all := rb.orderedLocked()
	for i := len(all) - 1; i >= 0; i-- {
		if pred(all[i]) {
			return all[i], true
		}
	}
	var zero T
	return zero, false
}

// Update applies fn to the newest entry matching pred, in place.
// Returns false if nothing matched.
func (rb *RingBuffer[T]) Update(pred func(T) bool, fn func(*T)) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(rb.entries)
	for k := 0; k < n; k++ {
		// head always sits one past the newest entry
		i := ((rb.head-1-k)%n + n) % n
		if pred(rb.entries[i]) {
			fn(&rb.entries[i])
			return true
		}
	}
	return false
}

// Drain returns all entries oldest first and empties the buffer in one step.
func (rb *RingBuffer[T]) Drain() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	result := rb.orderedLocked()
	rb.entries = make([]T, 0, rb.capacity)
	rb.addedAt = make([]time.Time, 0, rb.capacity)
	rb.head = 0
	return result
}

// OldestAddedAt returns when the oldest retained entry was pushed.
func (rb *RingBuffer[T]) OldestAddedAt() (time.Time, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if len(rb.addedAt) == 0 {
		return time.Time{}, false
	}
	if len(rb.addedAt) < rb.capacity {
		return rb.addedAt[0], true
	}
	return rb.addedAt[rb.head], true
}

// TotalAdded returns the monotonic count of entries ever pushed.
func (rb *RingBuffer[T]) TotalAdded() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.totalAdded
}

// Len returns the number of entries currently in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity // Immutable, no lock needed
}

// Clear removes all entries from the buffer without invoking the evict callback.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = make([]T, 0, rb.capacity)
	rb.addedAt = make([]time.Time, 0, rb.capacity)
	rb.head = 0
	// totalAdded stays monotonic
}
