package core

// open_limiter.go bounds how many tables are being opened at once.
//
// Opening maps the file and makes a full counting pass over it, which costs
// time and page cache proportional to the file size. The limiter is a
// semaphore: when every slot is taken, new opens wait up to maxWait before
// failing with ErrTooManyOpens. WaitForDrain supports graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyOpens is returned when all open slots stay occupied for longer
// than the wait timeout. Clients should retry after a short delay.
var ErrTooManyOpens = errors.New("too many concurrent opens, please try again later")

// DefaultMaxConcurrentOpens is the default limit for parallel opens.
const DefaultMaxConcurrentOpens = 4

// DefaultOpenWaitTime is how long to wait for a slot before rejecting.
const DefaultOpenWaitTime = 30 * time.Second

// OpenLimiter controls concurrent table opens using a semaphore.
type OpenLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewOpenLimiter creates a limiter allowing at most maxConcurrent opens.
// Non-positive arguments fall back to the defaults.
func NewOpenLimiter(maxConcurrent int, maxWait time.Duration) *OpenLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentOpens
	}
	if maxWait <= 0 {
		maxWait = DefaultOpenWaitTime
	}

	return &OpenLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for an open slot.
// Returns ErrTooManyOpens if maxWait expires, or ctx.Err() if ctx ends first.
// The caller must call Release once the open completes.
func (l *OpenLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyOpens
	}
}

// TryAcquire takes a slot without blocking and reports whether it succeeded.
func (l *OpenLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *OpenLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of opens in progress.
func (l *OpenLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *OpenLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// MaxConcurrent returns the configured slot count.
func (l *OpenLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// WaitForDrain blocks until no open is in progress or ctx is done.
func (l *OpenLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// OpenLimiterStatus is a snapshot of the limiter.
type OpenLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *OpenLimiter) Status() OpenLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return OpenLimiterStatus{
		Active:        active,
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
