package ingest

import "sync"

// Buffer is an unbounded FIFO queue safe for many senders and one or more
// receivers. The backing ring doubles when it is 70% full.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	count  int
	closed bool

	stats BufferStats
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count       int
	Capacity    int
	Sent        int64
	Received    int64
	ResizeCount int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{ring: make([]T, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues item. It returns false once the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.ring)*70/100, 1)
	if b.count+1 >= threshold {
		b.grow()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.stats.Sent++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available. It returns false when the
// buffer is closed and empty.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items without blocking. A max <= 0 drains
// everything.
func (b *Buffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items and wakes blocked receivers. Items already
// queued can still be received.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.Count = b.count
	s.Capacity = len(b.ring)
	return s
}

// pop removes the head item. Must be called with lock held and count > 0.
func (b *Buffer[T]) pop() T {
	var zero T
	item := b.ring[b.head]
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.stats.Received++
	return item
}

// grow doubles the ring, unwrapping queued items to the front. Must be
// called with lock held.
func (b *Buffer[T]) grow() {
	ring := make([]T, len(b.ring)*2)
	n := copy(ring, b.ring[b.head:])
	if n < b.count {
		copy(ring[n:], b.ring[:b.count-n])
	}

	b.ring = ring
	b.head = 0
	b.stats.ResizeCount++
}
