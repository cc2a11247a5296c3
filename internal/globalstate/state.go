// Package globalstate holds the one process-wide flag side-effect points
// consult before acting: whether the fleet is currently globally paused.
//
// Ownership is one-way: the Fleet Controller is the single writer; every
// other component (event bus, workers, host shells) only reads, through
// an explicit boolean surface rather than a back-reference to the
// controller itself.
package globalstate

import "sync"

// State is the process-wide pause flag. The zero value is ready to use.
type State struct {
	mu     sync.RWMutex
	paused bool
}

// New constructs a State, not paused.
func New() *State {
	return &State{}
}

// SetGloballyPaused is the single write point, called only by the Fleet
// Controller after it recomputes the global-pause rule.
func (s *State) SetGloballyPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// IsGloballyPaused reports the current pause flag. Safe for concurrent use
// by any number of readers.
func (s *State) IsGloballyPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}
