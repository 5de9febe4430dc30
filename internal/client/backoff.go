package client

import (
	"math/rand"
	"time"
)

const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff computes exponential reconnect delays with jitter. Full jitter:
// a herd of clients dropped by the same outage must not redial in lockstep.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay before the given attempt, starting at attempt 1.
func (b Backoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoffMax
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}
