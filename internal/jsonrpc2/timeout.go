// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"sync"
	"time"
)

// timeoutRecord implements the per-call timeout state machine of §4.3: a
// resettable per-call timer bounded by an absolute, non-resettable ceiling
// measured from the call's start time.
type timeoutRecord struct {
	mu        sync.Mutex
	start     time.Time
	perCall   time.Duration
	maxTotal  time.Duration // zero means unbounded
	onTimeout func(error)
	timer     *time.Timer
	stopped   bool
}

// newTimeoutRecord builds a timeoutRecord without arming its timer. Callers
// must call arm once the record is safely published (e.g. inserted into the
// outbound registry), so a pathologically short perCall can never fire
// before anything could find and stop it.
func newTimeoutRecord(perCall, maxTotal time.Duration, onTimeout func(error)) *timeoutRecord {
	return &timeoutRecord{
		perCall:   perCall,
		maxTotal:  maxTotal,
		onTimeout: onTimeout,
	}
}

// arm starts the timer and records the call's start time.
func (tr *timeoutRecord) arm() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.start = time.Now()
	tr.timer = time.AfterFunc(tr.perCall, tr.fire)
}

func (tr *timeoutRecord) fire() {
	tr.mu.Lock()
	if tr.stopped {
		tr.mu.Unlock()
		return
	}
	tr.stopped = true
	perCall := tr.perCall
	tr.mu.Unlock()
	tr.onTimeout(ErrRequestTimeout.WithData(map[string]int64{
		"timeout": perCall.Milliseconds(),
	}))
}

// cleanup stops the timer without firing onTimeout. Called once the call
// completes for any reason other than its own timeout.
func (tr *timeoutRecord) cleanup() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.stopped {
		return
	}
	tr.stopped = true
	if tr.timer != nil {
		tr.timer.Stop()
	}
}

// reset implements the Reset transition: a progress event extends the
// per-call window without moving the absolute ceiling. If maxTotal has
// already elapsed, reset stops the timer, fails the request itself by
// invoking onTimeout with ErrRequestTimeout, and reports breached so the
// caller skips the progress handler for this event.
func (tr *timeoutRecord) reset() (breached bool) {
	tr.mu.Lock()
	if tr.stopped {
		tr.mu.Unlock()
		return false
	}
	if tr.maxTotal > 0 {
		elapsed := time.Since(tr.start)
		if elapsed >= tr.maxTotal {
			tr.stopped = true
			tr.timer.Stop()
			maxTotal := tr.maxTotal
			tr.mu.Unlock()
			tr.onTimeout(ErrRequestTimeout.WithData(map[string]int64{
				"max_total_timeout": maxTotal.Milliseconds(),
				"total_elapsed":     elapsed.Milliseconds(),
			}))
			return true
		}
	}
	tr.timer.Stop()
	tr.timer = time.AfterFunc(tr.perCall, tr.fire)
	tr.mu.Unlock()
	return false
}
