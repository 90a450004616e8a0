// Package pool holds pooled timers used for deadline waits on device streams.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a stopped-and-reset timer for d from the pool.
// Return it with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns t to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Deadline is an optional expiry for a blocking wait.
// The zero Deadline never expires.
type Deadline struct {
	timer *time.Timer
	at    time.Time
}

// NewDeadline starts a deadline d from now. A non-positive d gives a deadline
// that never expires.
func NewDeadline(d time.Duration) Deadline {
	if d <= 0 {
		return Deadline{}
	}

	return Deadline{timer: GetTimer(d), at: time.Now().Add(d)}
}

// C returns the expiry channel, nil for an unbounded deadline.
func (d Deadline) C() <-chan time.Time {
	if d.timer == nil {
		return nil
	}

	return d.timer.C
}

// Expired reports whether the deadline has passed.
func (d Deadline) Expired() bool {
	return d.timer != nil && !time.Now().Before(d.at)
}

// Release hands the underlying timer back to the pool.
func (d Deadline) Release() {
	if d.timer != nil {
		PutTimer(d.timer)
	}
}
