package warn

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between two alerts of the same type
// for the same symbol.
const DefaultCooldown = 5 * time.Minute

type cooldownKey struct {
	symbol string
	typ    AlertType
}

// cooldownMap suppresses repeat alerts per (symbol, alertType). Entries are
// cleared only by restart or an explicit operator Clear.
type cooldownMap struct {
	mu      sync.Mutex
	window  time.Duration
	emitted map[cooldownKey]time.Time
	now     func() time.Time
}

func newCooldownMap(window time.Duration) *cooldownMap {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &cooldownMap{
		window:  window,
		emitted: make(map[cooldownKey]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether an alert for (symbol, typ) may be emitted now, and
// records the emission when it may.
func (c *cooldownMap) Allow(symbol string, typ AlertType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cooldownKey{symbol: symbol, typ: typ}
	now := c.now()
	if last, ok := c.emitted[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.emitted[key] = now
	return true
}

// Clear drops all cooldown state (operator action).
func (c *cooldownMap) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = make(map[cooldownKey]time.Time)
}
