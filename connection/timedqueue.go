package connection

import (
	"sync"
	"time"
)

// timedItem is one buffered payload with its enqueue time.
type timedItem struct {
	at      time.Time
	payload []byte
}

// TimedQueue is a FIFO buffer of outbound payloads that silently discards
// entries older than the timeout. Staleness is checked lazily on dequeue, not
// on enqueue: enqueueing always succeeds and the queue is unbounded, because
// dropping an old command later is preferable to blocking the caller now.
type TimedQueue struct {
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
	items   []timedItem

	dropped int64
}

// NewTimedQueue creates a queue that discards payloads older than timeout on
// dequeue.
func NewTimedQueue(timeout time.Duration) *TimedQueue {
	return &TimedQueue{
		timeout: timeout,
		now:     time.Now,
	}
}

// Enqueue records the current time and appends payload.
func (q *TimedQueue) Enqueue(payload []byte) {
	q.mu.Lock()
	q.items = append(q.items, timedItem{at: q.now(), payload: payload})
	q.mu.Unlock()
}

// Dequeue pops the oldest entry. The entry is consumed either way; the
// payload is only returned when it is still within the timeout.
func (q *TimedQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	item := q.items[0]
	q.items = q.items[1:]

	if q.now().Sub(item.at) > q.timeout {
		q.dropped++
		return nil, false
	}
	return item.payload, true
}

// DrainAll consumes the entire queue and returns the non-stale payloads in
// original order.
func (q *TimedQueue) DrainAll() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out [][]byte
	now := q.now()
	for _, item := range q.items {
		if now.Sub(item.at) > q.timeout {
			q.dropped++
			continue
		}
		out = append(out, item.payload)
	}
	q.items = nil
	return out
}

// Clear discards everything, counting the entries as dropped. Used when a
// resumed session turns out not to share the assumed state.
func (q *TimedQueue) Clear() {
	q.mu.Lock()
	q.dropped += int64(len(q.items))
	q.items = nil
	q.mu.Unlock()
}

// Len returns the number of buffered entries, stale ones included.
func (q *TimedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many payloads have been discarded as stale or cleared.
func (q *TimedQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
