// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debounce coalesces bursts of calls into a single trailing
// execution. The watcher uses one debouncer per file so a stream of write
// events collapses into one admission once the file goes quiet.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer runs the most recently submitted function once the delay has
// elapsed without a newer submission.
type Debouncer struct {
	submissions chan func()
	delay       time.Duration

	mu     sync.RWMutex
	timer  <-chan time.Time
	latest func()

	stopped atomic.Bool
	done    chan struct{}
}

// New creates a Debouncer firing after delay of quiet.
func New(delay time.Duration) *Debouncer {
	d := &Debouncer{
		submissions: make(chan func(), 100),
		delay:       delay,
		done:        make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Debouncer) run() {
	defer close(d.done)

	fire := func() {
		d.mu.Lock()
		select {
		case <-d.timer:
		default:
		}
		d.timer = nil
		fn := d.latest
		d.latest = nil
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	}

	for {
		select {
		case <-d.timer:
			fire()
		case fn, ok := <-d.submissions:
			if !ok {
				// Stopped: flush whatever is pending and exit.
				fire()
				return
			}
			d.mu.Lock()
			d.latest = fn
			if d.timer == nil {
				d.timer = time.After(d.delay)
			}
			d.mu.Unlock()
		}
	}
}

// Do submits fn. Only the last function submitted within the delay window
// runs. After Stop, fn runs immediately on the caller's goroutine.
func (d *Debouncer) Do(fn func()) {
	if d.stopped.Load() {
		fn()
		return
	}

	select {
	case d.submissions <- fn:
	default:
		if d.stopped.Load() {
			fn()
		}
		// Buffer full: the burst already has a pending execution, this
		// submission is safe to drop.
	}
}

// Queued reports whether an execution is pending.
func (d *Debouncer) Queued() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timer != nil
}

// Stop flushes the pending function and shuts the debouncer down. Safe to
// call more than once, but not from inside a debounced function.
func (d *Debouncer) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	close(d.submissions)
	<-d.done
}
