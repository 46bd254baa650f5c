package core

import (
	"sync"
	"time"
)

// debounceTimer is a restartable single-shot timer. Reset supersedes any
// pending fire; Stop cancels it. The callback runs on the timer
// goroutine, so callers must re-validate state under their own lock.
type debounceTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Reset schedules fn after d, cancelling any pending callback.
func (t *debounceTimer) Reset(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		live := t.gen == gen
		t.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Stop cancels any pending callback. A callback that already started is
// invalidated by the generation check.
func (t *debounceTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}
