package eventbridge

import "sync"

// DefaultQueueSize is used when NewQueue is given a non-positive size.
const DefaultQueueSize = 32

// Queue is a bounded FIFO of events with a drop-newest overflow policy.
//
// A single producer (the hub poller) and a single consumer (the bus worker)
// are expected, but any number of goroutines may use it concurrently.
type Queue struct {
	mu      sync.Mutex
	items   []Event
	size    int
	dropped uint64
}

// NewQueue creates a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		items: make([]Event, 0, size),
		size:  size,
	}
}

// Enqueue appends e without blocking.
// It returns false, and discards e, if the queue is already full.
func (q *Queue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.size {
		q.dropped++
		return false
	}
	q.items = append(q.items, e)
	return true
}

// Dequeue removes and returns the oldest event.
// The boolean is false when the queue is empty.
func (q *Queue) Dequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	// Shift in place so the backing array never grows past size.
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return e, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured bound.
func (q *Queue) Cap() int {
	return q.size
}

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
