package registry

import (
	"sync"
	"time"
)

// debouncer runs fn on the leading edge of a burst. Calls arriving while the
// quiet window is open are suppressed and push the end of the window back, so
// fn runs at most once per burst.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	open   bool
	until  time.Time
	fn     func()

	suppressed int64
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	return &debouncer{window: window, fn: fn}
}

// Trigger reports whether fn ran for this call.
func (d *debouncer) Trigger() bool {
	if d.window <= 0 {
		d.fn()
		return true
	}

	d.mu.Lock()
	if d.open {
		d.suppressed++
		d.until = time.Now().Add(d.window)
		d.timer.Reset(d.window)
		d.mu.Unlock()
		return false
	}
	d.open = true
	d.until = time.Now().Add(d.window)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.close)
	} else {
		d.timer.Reset(d.window)
	}
	d.mu.Unlock()

	d.fn()
	return true
}

func (d *debouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	// a fire that raced with a re-arm; the rescheduled timer closes the window
	if time.Now().Before(d.until) {
		return
	}
	d.open = false
}

// Suppressed returns the number of calls swallowed so far.
func (d *debouncer) Suppressed() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressed
}

// Stop closes the window and releases the timer.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.open = false
}
