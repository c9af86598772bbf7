// Package gate implements time-windowed event suppression. A Cooldown
// rate-limits repeated firing of the same logical event, keyed by an
// arbitrary string (per-user reply suppression, follow/like suppression).
package gate

import (
	"sync"
	"time"

	"github.com/solenne/livecast/internal/logger"
)

// Option configures the cooldown gate.
type Option func(*Cooldown)

// WithClock replaces the wall clock. Tests use this to step time.
func WithClock(now func() time.Time) Option {
	return func(c *Cooldown) {
		c.now = now
	}
}

// Cooldown tracks the last firing time per key. Safe for concurrent use.
type Cooldown struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
	now       func() time.Time
	log       *logger.Logger
}

// New creates an empty cooldown gate.
func New(log *logger.Logger, opts ...Option) *Cooldown {
	c := &Cooldown{
		lastFired: make(map[string]time.Time),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allow returns true and records the firing if at least window has
// elapsed since the last allowed firing for key (or there was none).
// A denied call does not mutate state, so hammering a key cannot push
// its window forward.
func (c *Cooldown) Allow(key string, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.lastFired[key]; ok && now.Sub(last) < window {
		c.log.Debug("cooldown: %q suppressed (%s of %s elapsed)", key, now.Sub(last), window)
		return false
	}
	c.lastFired[key] = now
	return true
}

// Reset clears the entry for key so the next Allow fires immediately.
func (c *Cooldown) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastFired, key)
}
