package ws

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// FrameRateLimiter is a sliding-window limiter on inbound frames,
// keyed by connection id. Frames over the limit are dropped.
type FrameRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ConnectionID][]time.Time
	limit    int
	interval time.Duration
}

func NewFrameRateLimiter(limit int, interval time.Duration) *FrameRateLimiter {
	return &FrameRateLimiter{
		history:  make(map[domain.ConnectionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *FrameRateLimiter) Allow(conn domain.ConnectionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[conn]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[conn] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[conn] = fresh
	return true
}

// Forget drops the window for a closed connection.
func (rl *FrameRateLimiter) Forget(conn domain.ConnectionID) {
	rl.mu.Lock()
	delete(rl.history, conn)
	rl.mu.Unlock()
}
