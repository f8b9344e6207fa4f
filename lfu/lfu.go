package lfu

import (
	"container/list"
	"errors"
	"sync"
)

// ErrCapacity is returned when a cache is constructed with capacity <= 0.
var ErrCapacity = errors.New("lfu: capacity must be greater than zero")

// entry is one cached key/value with its access frequency. elem is the
// entry's position inside the frequency bucket it currently belongs to.
type entry[K comparable, V any] struct {
	key   K
	value V
	freq  int
	elem  *list.Element
}

// Cache is a bounded key/value cache with least-frequently-used eviction.
// Ties within the minimum frequency evict in insertion order (oldest first).
// Get and Put are O(1): a hashmap resolves keys, and per-frequency
// doubly-linked lists order entries within a frequency level.
//
// All operations are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*entry[K, V]
	buckets  map[int]*list.List // frequency to entries, front is oldest
	min      int                // lowest frequency present, valid while len(items) > 0

	hits      int64
	misses    int64
	evictions int64
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	return &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*entry[K, V], capacity),
		buckets:  make(map[int]*list.List),
		min:      1,
	}, nil
}

// Get returns the value stored for key. The second return distinguishes a
// genuine miss from a stored zero value. A hit bumps the entry's frequency.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	c.touch(ent)
	return ent.value, true
}

// Put stores value under key. Re-putting an existing key updates the value
// and bumps its frequency the same way Get does. Inserting into a full cache
// first evicts the oldest entry at the minimum frequency.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		ent.value = value
		c.touch(ent)
		return
	}

	if len(c.items) == c.capacity {
		c.evict()
	}

	ent := &entry[K, V]{key: key, value: value, freq: 1}
	ent.elem = c.bucket(1).PushBack(ent)
	c.items[key] = ent
	c.min = 1
}

// Len returns the number of entries currently held.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Cap returns the configured capacity.
func (c *Cache[K, V]) Cap() int { return c.capacity }

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries   int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// touch moves ent to the tail of the next frequency bucket, advancing the
// minimum-frequency tracker when the old bucket was the minimum and is now
// empty. Caller holds the lock.
func (c *Cache[K, V]) touch(ent *entry[K, V]) {
	old := c.buckets[ent.freq]
	old.Remove(ent.elem)
	if old.Len() == 0 {
		delete(c.buckets, ent.freq)
		if c.min == ent.freq {
			c.min++
		}
	}

	ent.freq++
	ent.elem = c.bucket(ent.freq).PushBack(ent)
}

// evict removes the oldest entry at the minimum frequency. Caller holds the
// lock and has checked the cache is non-empty.
func (c *Cache[K, V]) evict() {
	bucket := c.buckets[c.min]
	front := bucket.Front()
	if front == nil {
		return
	}
	victim := bucket.Remove(front).(*entry[K, V])
	if bucket.Len() == 0 {
		delete(c.buckets, c.min)
	}
	delete(c.items, victim.key)
	c.evictions++
}

// bucket returns the list for a frequency, creating it on first use. Caller
// holds the lock.
func (c *Cache[K, V]) bucket(freq int) *list.List {
	l, ok := c.buckets[freq]
	if !ok {
		l = list.New()
		c.buckets[freq] = l
	}
	return l
}
