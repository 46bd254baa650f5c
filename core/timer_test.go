package core

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceTimerResetSupersedes(t *testing.T) {
	var first, second atomic.Int32
	var timer debounceTimer

	timer.Reset(20*time.Millisecond, func() { first.Add(1) })
	timer.Reset(20*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("superseded callback fired")
	}
	if second.Load() != 1 {
		t.Fatalf("expected one fire, got %d", second.Load())
	}
}

func TestDebounceTimerStopCancels(t *testing.T) {
	var fired atomic.Int32
	var timer debounceTimer

	timer.Reset(20*time.Millisecond, func() { fired.Add(1) })
	timer.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("stopped callback fired")
	}
}

func TestDebounceTimerReusableAfterStop(t *testing.T) {
	var fired atomic.Int32
	var timer debounceTimer

	timer.Reset(10*time.Millisecond, func() { fired.Add(1) })
	timer.Stop()
	timer.Reset(10*time.Millisecond, func() { fired.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("expected one fire after re-arm, got %d", fired.Load())
	}
}
