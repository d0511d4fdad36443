package core

// export_limiter.go bounds how many export workers run at once.
//
// Each worker holds one semaphore slot for the duration of its run. When all
// slots are taken a new export waits up to maxWait, then fails with
// ErrTooManyExports. WaitForDrain lets shutdown wait for running workers.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyExports is returned when no export slot frees up in time.
// Clients should retry after a short delay.
var ErrTooManyExports = errors.New("too many concurrent exports, please try again later")

const (
	// DefaultMaxConcurrentExports is the default limit for parallel exports.
	DefaultMaxConcurrentExports = 4

	// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
	DefaultMaxWaitTime = 30 * time.Second
)

// ExportLimiter is a counting semaphore for export workers.
type ExportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32

	// onChange, when set, observes the active count after every change.
	onChange func(active int)
}

// NewExportLimiter creates a limiter allowing maxConcurrent simultaneous
// exports. Non-positive arguments select the defaults.
func NewExportLimiter(maxConcurrent int, maxWait time.Duration) *ExportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentExports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &ExportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// OnChange registers fn to observe the active count. Not safe to call
// concurrently with Acquire or Release.
func (l *ExportLimiter) OnChange(fn func(active int)) {
	l.onChange = fn
}

// Acquire blocks until a slot is free, maxWait elapses or ctx is done.
// Every successful Acquire must be paired with one Release.
func (l *ExportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.changed(l.active.Add(1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyExports
	}
}

// TryAcquire takes a slot if one is free right now.
func (l *ExportLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.changed(l.active.Add(1))
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ExportLimiter) Release() {
	l.changed(l.active.Add(-1))
	<-l.slots
}

func (l *ExportLimiter) changed(active int32) {
	if l.onChange != nil {
		l.onChange(int(active))
	}
}

// ActiveCount returns the number of running exports.
func (l *ExportLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *ExportLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *ExportLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no export is running or ctx is done.
func (l *ExportLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// ExportLimiterStatus is a point-in-time view of the limiter.
type ExportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *ExportLimiter) Status() ExportLimiterStatus {
	return ExportLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
