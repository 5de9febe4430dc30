package core

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	User    domain.UserID
	Channel domain.ChannelID
}

type typingEntry struct {
	expiresAt time.Time
	timer     *time.Timer
}

// TypingTracker holds at most one expiring "is typing" flag per
// (user, channel) pair. Each flag self-clears after ttl unless refreshed.
// On expiry the tracker emits the same stop callback it would for an
// explicit Stop, so consumers cannot distinguish a stale client from an
// explicit stop.
//
// The tracker has its own lock because expiry fires from timer goroutines;
// the onStop callback is always invoked with the lock released.
type TypingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[typingKey]*typingEntry
	onStop  func(user domain.UserID, channel domain.ChannelID)
	closed  bool
}

func NewTypingTracker(ttl time.Duration, onStop func(domain.UserID, domain.ChannelID)) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:     ttl,
		entries: make(map[typingKey]*typingEntry),
		onStop:  onStop,
	}
}

// Start (re)sets the entry's expiry to now+ttl and reschedules its timer.
// Returns true if this created a new entry (first start, or start after stop).
func (t *TypingTracker) Start(user domain.UserID, channel domain.ChannelID) bool {
	k := typingKey{User: user, Channel: channel}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if e, ok := t.entries[k]; ok {
		e.expiresAt = time.Now().Add(t.ttl)
		e.timer.Reset(t.ttl)
		return false
	}
	e := &typingEntry{expiresAt: time.Now().Add(t.ttl)}
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(k) })
	t.entries[k] = e
	return true
}

// Stop cancels the scheduled expiry and removes the entry immediately.
// Returns false if there was nothing to stop.
func (t *TypingTracker) Stop(user domain.UserID, channel domain.ChannelID) bool {
	k := typingKey{User: user, Channel: channel}
	t.mu.Lock()
	e, ok := t.entries[k]
	if ok {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()
	return ok
}

// StopUser removes every entry for a user and reports the channels it
// cleared, so the caller can emit stop events. Used on disconnect cleanup.
func (t *TypingTracker) StopUser(user domain.UserID) []domain.ChannelID {
	t.mu.Lock()
	var cleared []domain.ChannelID
	for k, e := range t.entries {
		if k.User == user {
			e.timer.Stop()
			delete(t.entries, k)
			cleared = append(cleared, k.Channel)
		}
	}
	t.mu.Unlock()
	return cleared
}

func (t *TypingTracker) IsTyping(user domain.UserID, channel domain.ChannelID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{User: user, Channel: channel}]
	return ok
}

// Close cancels all timers without emitting stop events. After Close the
// tracker rejects new starts; a timer that already fired cannot resurrect
// state.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	t.closed = true
	for k, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()
}

func (t *TypingTracker) expire(k typingKey) {
	t.mu.Lock()
	e, ok := t.entries[k]
	// Reset races: a refresh may have moved expiry past this firing.
	if !ok || t.closed || time.Now().Before(e.expiresAt) {
		t.mu.Unlock()
		return
	}
	delete(t.entries, k)
	onStop := t.onStop
	t.mu.Unlock()

	if onStop != nil {
		onStop(k.User, k.Channel)
	}
}
