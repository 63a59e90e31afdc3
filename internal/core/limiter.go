package core

// limiter.go bounds how many imports run at once across all users and
// keeps each user to a single active import.
//
// Global slots are a buffered-channel semaphore. When every slot is taken
// a new import waits up to maxWait before failing with ErrTooManyImports.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentImports is the default number of parallel imports.
const DefaultMaxConcurrentImports = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ImportLimiter controls concurrent import processing.
type ImportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	users   map[string]bool
	changed chan struct{} // closed and replaced on every release
}

// NewImportLimiter allows at most maxConcurrent simultaneous imports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		users:   make(map[string]bool),
		changed: make(chan struct{}),
	}
}

// Acquire reserves a slot for userID. It fails immediately with
// ErrImportInProgress when the user already holds one, and with
// ErrTooManyImports when no slot frees up within maxWait.
// The caller must call Release(userID) after a successful Acquire.
func (l *ImportLimiter) Acquire(ctx context.Context, userID string) error {
	l.mu.Lock()
	if l.users[userID] {
		l.mu.Unlock()
		return ErrImportInProgress
	}
	l.users[userID] = true
	l.mu.Unlock()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-timer.C:
		l.forget(userID)
		return ErrTooManyImports
	case <-ctx.Done():
		l.forget(userID)
		return ctx.Err()
	}
}

// Release frees the slot held by userID.
func (l *ImportLimiter) Release(userID string) {
	<-l.slots
	l.forget(userID)
}

func (l *ImportLimiter) forget(userID string) {
	l.mu.Lock()
	delete(l.users, userID)
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}

// Holds reports whether userID currently has an import slot.
func (l *ImportLimiter) Holds(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[userID]
}

// ActiveCount returns the number of imports holding a slot.
func (l *ImportLimiter) ActiveCount() int {
	return len(l.slots)
}

// WaitForDrain blocks until no import holds a slot or ctx is done.
// Used for graceful shutdown.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	for {
		l.mu.Lock()
		active := len(l.users)
		changed := l.changed
		l.mu.Unlock()

		if active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// LimiterStatus is a snapshot for monitoring.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ImportLimiter) Status() LimiterStatus {
	active := len(l.slots)
	return LimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
