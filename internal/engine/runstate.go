package engine

import (
	"sync/atomic"
	"time"
)

// RunState is the process-wide Stopped -> Running switch. There is no
// transition back to Stopped; the loop ends only with the process.
type RunState struct {
	running   atomic.Bool
	startedAt atomic.Int64
}

// Start moves Stopped -> Running and reports whether this call did it.
func (s *RunState) Start() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.startedAt.Store(time.Now().UnixMilli())
	return true
}

// IsRunning reports the current state.
func (s *RunState) IsRunning() bool {
	return s.running.Load()
}

// StartedAt returns when Start succeeded, or nil while stopped.
func (s *RunState) StartedAt() *time.Time {
	ms := s.startedAt.Load()
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
