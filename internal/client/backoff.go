package client

import (
	"sync"
	"time"
)

// Reconnection schedule defaults. Delay for attempt n is
// min(base<<n, cap), giving 2s, 4s, 8s, 16s, 30s.
const (
	defaultMaxAttempts = 5
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// backoff tracks reconnection attempts. The counter starts at zero,
// advances once per scheduled attempt, and resets on any successful
// connection.
type backoff struct {
	mu          sync.Mutex
	attempt     int
	maxAttempts int
	base        time.Duration
	cap         time.Duration
}

func newBackoff(maxAttempts int, base, cap time.Duration) *backoff {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if base <= 0 {
		base = defaultBackoffBase
	}
	if cap <= 0 {
		cap = defaultBackoffCap
	}
	return &backoff{maxAttempts: maxAttempts, base: base, cap: cap}
}

// next consumes one attempt and returns its delay. ok is false once
// the schedule is exhausted; the caller must Reset before retrying
// again.
func (b *backoff) next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	b.attempt++

	delay = b.base << b.attempt
	if delay > b.cap || delay <= 0 {
		delay = b.cap
	}
	return delay, true
}

// reset returns the schedule to the start of the sequence.
func (b *backoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// current returns the number of consumed attempts.
func (b *backoff) current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
