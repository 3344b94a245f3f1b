package stream

import (
	"sync"
	"time"
)

// Reconnect policy: exponential backoff starting at 1s, doubling to a 60s
// ceiling, giving up after 10 consecutive failures. A successful connect
// resets the key to a clean state. Each connection key tracks its own state;
// one stream's failures never delay another's retries.
const (
	backoffBase   = 1 * time.Second
	backoffMax    = 60 * time.Second
	maxAttempts   = 10
	backoffFactor = 2
)

// BackoffState tracks reconnection progress for one connection key.
type BackoffState struct {
	Attempts      int           `json:"attempts"`
	NextDelay     time.Duration `json:"next_delay"`
	LastAttemptAt time.Time     `json:"last_attempt_at"`
	Reconnecting  bool          `json:"reconnecting"`
}

// backoffTracker owns per-key backoff state.
type backoffTracker struct {
	mu     sync.Mutex
	states map[string]*BackoffState
}

func newBackoffTracker() *backoffTracker {
	return &backoffTracker{states: make(map[string]*BackoffState)}
}

// Next records a failed attempt for key and returns the delay to wait before
// the next one, or ok=false when the retry budget is exhausted.
func (t *backoffTracker) Next(key string) (delay time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[key]
	if st == nil {
		st = &BackoffState{NextDelay: backoffBase}
		t.states[key] = st
	}

	st.Attempts++
	st.LastAttemptAt = time.Now()
	st.Reconnecting = true

	if st.Attempts >= maxAttempts {
		st.Reconnecting = false
		return 0, false
	}

	delay = st.NextDelay
	st.NextDelay *= backoffFactor
	if st.NextDelay > backoffMax {
		st.NextDelay = backoffMax
	}
	return delay, true
}

// Success resets the key after a working connection is established.
func (t *backoffTracker) Success(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[key] = &BackoffState{NextDelay: backoffBase}
}

// Reset clears the key entirely, re-arming a stream that exhausted its
// budget. Called from TrackSymbols/Subscribe paths.
func (t *backoffTracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, key)
}

// States returns a copy of every key's backoff state.
func (t *backoffTracker) States() map[string]BackoffState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]BackoffState, len(t.states))
	for key, st := range t.states {
		out[key] = *st
	}
	return out
}

// State returns a copy of the backoff state for key.
func (t *backoffTracker) State(key string) (BackoffState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[key]
	if !ok {
		return BackoffState{}, false
	}
	return *st, true
}
