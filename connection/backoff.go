package connection

import (
	"sync"
	"time"
)

// Backoff computes capped exponential retry delays. Each NextDelay doubles
// the previous one up to the maximum; Reset is only called once the caller
// has seen a sustained healthy connection, not merely a completed handshake,
// so a node that accepts connections and immediately drops them cannot pin
// the client in a tight reconnect loop.
type Backoff struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	attempt int
}

// NewBackoff creates a backoff starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// NextDelay returns the delay for the current attempt and advances the
// counter.
func (b *Backoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.max {
			d = b.max
			break
		}
	}
	b.attempt++
	return d
}

// Reset returns the counter to zero.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
