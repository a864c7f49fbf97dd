// Package ratelimit gates inbound message acceptance per connection.
//
// The policy is a fixed window, not a token bucket: the counter resets
// wholesale when the window elapses and the max+1th message inside one window
// is rejected. It is a cheap abuse guard, not flow control.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxPerWindow = 40
	DefaultWindow       = time.Second
)

type windowState struct {
	start time.Time
	count int
}

// Limiter tracks one fixed window per connection id.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	states map[uuid.UUID]*windowState

	now func() time.Time
}

func NewLimiter(maxPerWindow int, window time.Duration) *Limiter {
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:    maxPerWindow,
		window: window,
		states: make(map[uuid.UUID]*windowState),
		now:    time.Now,
	}
}

// Admit records one inbound message for the connection and reports whether it
// may proceed. The first message of a fresh window always passes.
func (l *Limiter) Admit(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.states[id]
	if !ok || now.Sub(st.start) >= l.window {
		l.states[id] = &windowState{start: now, count: 1}
		return true
	}

	st.count++
	return st.count <= l.max
}

// Forget drops the window state for a closed connection.
func (l *Limiter) Forget(id uuid.UUID) {
	l.mu.Lock()
	delete(l.states, id)
	l.mu.Unlock()
}
