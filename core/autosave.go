package core

import (
	"sync"
	"time"
)

// debouncer runs fn once the quiet period passes without another Touch.
type debouncer struct {
	quiet time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	closed  bool
	running sync.WaitGroup
}

func newDebouncer(quiet time.Duration, fn func()) *debouncer {
	return &debouncer{quiet: quiet, fn: fn}
}

// Touch (re)starts the quiet period.
func (d *debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.pending = true
	gen := d.gen
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(gen) })
}

func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()
	d.fn()
}

// Cancel drops a pending call and reports whether one was pending.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

func (d *debouncer) cancelLocked() bool {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	was := d.pending
	d.pending = false
	return was
}

// Flush runs a pending call immediately.
func (d *debouncer) Flush() {
	d.mu.Lock()
	was := d.cancelLocked()
	if was {
		d.running.Add(1)
	}
	d.mu.Unlock()
	if was {
		defer d.running.Done()
		d.fn()
	}
}

// Pending reports whether a call is scheduled.
func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close flushes, disables further scheduling and waits for calls already
// in progress.
func (d *debouncer) Close() {
	d.Flush()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.running.Wait()
}
