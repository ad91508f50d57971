package blit

import (
	"sync"
	"time"
)

// EngineState is the state shared between the executor and the completion
// interrupt handler of one accelerator. All read-modify-write of busy
// happens under mu.
type EngineState struct {
	mu   sync.Mutex
	busy bool
	done chan struct{}

	kicks       uint64
	completions uint64
	resets      uint64
}

// NewEngineState returns an idle engine state.
func NewEngineState() *EngineState {
	return &EngineState{}
}

// Busy reports whether a job is running on the hardware.
func (s *EngineState) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// EngineStats are lifetime counters of an engine.
type EngineStats struct {
	Kicks       uint64
	Completions uint64
	Resets      uint64
}

// Stats returns the lifetime counters.
func (s *EngineState) Stats() EngineStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EngineStats{Kicks: s.kicks, Completions: s.completions, Resets: s.resets}
}

// begin marks the engine busy immediately before a kick and returns the
// channel closed on completion.
func (s *EngineState) begin() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrEngineBusy
	}
	s.busy = true
	s.done = make(chan struct{})
	s.kicks++
	return s.done, nil
}

// HandleInterrupt is the completion interrupt handler. A spurious
// interrupt, raised while the device does not report blit-done, is left
// pending and false is returned. Otherwise the device interrupt is
// disabled, busy is cleared and the waiter is woken.
func (s *EngineState) HandleInterrupt(dev Device) bool {
	if !dev.IsBlitDone() {
		return false
	}
	dev.DisableInterrupt()
	return s.complete()
}

// complete clears busy and wakes the waiter. It reports false if the
// engine was not busy.
func (s *EngineState) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return false
	}
	s.busy = false
	s.completions++
	close(s.done)
	return true
}

// forceIdle clears busy after a forced hardware reset.
func (s *EngineState) forceIdle(reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reset {
		s.resets++
	}
	if !s.busy {
		return
	}
	s.busy = false
	close(s.done)
}

// wait blocks until done is closed or timeout elapses.
func (s *EngineState) wait(done <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}
