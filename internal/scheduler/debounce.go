package scheduler

import (
	"sync"
	"time"
)

// Debouncer runs fn once after calls to Schedule stop arriving for delay.
// It holds at most one pending timer; every Schedule replaces it, so a burst
// of calls yields a single run carrying the last reason.
type Debouncer struct {
	clock Clock
	delay time.Duration
	fn    func(reason string)

	mu     sync.Mutex
	timer  Timer
	gen    uint64
	reason string
}

func NewDebouncer(clock Clock, delay time.Duration, fn func(reason string)) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{clock: clock, delay: delay, fn: fn}
}

// Schedule (re)arms the timer.
func (d *Debouncer) Schedule(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.reason = reason
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a run is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs the pending call now instead of waiting. It reports whether
// there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	reason := d.reason
	d.mu.Unlock()

	d.fn(reason)
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// a timer stopped too late to be prevented must not run
	if gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	reason := d.reason
	d.mu.Unlock()

	d.fn(reason)
}
