package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/statemesh/core"
)

// ErrSinkDown is returned by FailingSink.
var ErrSinkDown = errors.New("sink unavailable")

// FailingSink rejects every append and counts the attempts.
type FailingSink struct {
	mu       sync.Mutex
	attempts int
}

// Append implements core.MemorySink.
func (s *FailingSink) Append(context.Context, core.MemoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return ErrSinkDown
}

// List implements core.MemorySink.
func (s *FailingSink) List(context.Context, string) ([]core.MemoryRow, error) {
	return nil, ErrSinkDown
}

// Attempts returns the number of rejected appends.
func (s *FailingSink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
