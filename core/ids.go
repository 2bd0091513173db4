package core

import (
	"fmt"
	"sync/atomic"
)

// IDSequence hands out agent identifiers of the form <role>_<counter>. The
// counter is shared across roles and only ever increases, so identifiers are
// unique for the lifetime of the sequence. Share one sequence between
// sessions to make identifiers unique process-wide.
type IDSequence struct {
	counter atomic.Int64
}

// NewIDSequence creates a sequence whose first identifier uses counter 1.
func NewIDSequence() *IDSequence { return &IDSequence{} }

// Next returns the next identifier for role.
func (s *IDSequence) Next(role string) AgentID {
	n := s.counter.Add(1)
	return AgentID(fmt.Sprintf("%s_%d", role, n))
}

// Current returns the last counter value handed out (0 if none).
func (s *IDSequence) Current() int64 { return s.counter.Load() }

var processIDs = NewIDSequence()

// ProcessIDSequence returns the sequence shared by everything in the process
// that does not bring its own.
func ProcessIDSequence() *IDSequence { return processIDs }
