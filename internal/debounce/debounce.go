// Package debounce coalesces bursts of calls into a bounded number of
// invocations of a target function: a call fires after a quiet period
// with no further calls, or once a maximum wait has elapsed since the
// first call of the burst, whichever comes first.
package debounce

import (
	"sync"
	"time"
)

// Debouncer invokes fn on the trailing edge of a burst of Call()s.
// Safe for concurrent use.
type Debouncer struct {
	quiet   time.Duration
	maxWait time.Duration
	fn      func()

	mu         sync.Mutex
	timer      *time.Timer
	pending    bool
	burstStart time.Time
}

// New creates a Debouncer with the given quiet period and max-wait
// ceiling. fn runs on a timer goroutine; it must not call back into the
// Debouncer while holding locks that Call/Cancel contend on.
func New(quiet, maxWait time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, maxWait: maxWait, fn: fn}
}

// Call schedules fn to run after the quiet period. Each Call resets the
// quiet timer; the deadline never extends past burstStart+maxWait.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !d.pending {
		d.pending = true
		d.burstStart = now
	}

	delay := d.quiet
	if ceiling := d.burstStart.Add(d.maxWait); now.Add(delay).After(ceiling) {
		delay = ceiling.Sub(now)
		if delay < 0 {
			delay = 0
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.fire)
}

// Cancel clears any pending invocation without firing it and reports
// whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasPending := d.pending
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	return wasPending
}

// Flush runs fn immediately if an invocation is pending.
func (d *Debouncer) Flush() {
	if d.Cancel() {
		d.fn()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		// Cancelled between the timer firing and acquiring the lock.
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
