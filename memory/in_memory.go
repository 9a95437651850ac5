package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/statemesh/core"
)

// InMemorySink is a process-local core.MemorySink. Rows are kept per agent in
// append order. Suitable for tests and single process deployments.
//
// Concurrency: protected by RWMutex.
type InMemorySink struct {
	mu   sync.RWMutex
	rows map[string][]core.MemoryRow // agentID -> rows
}

// NewInMemorySink creates an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{rows: make(map[string][]core.MemoryRow)}
}

// Append stores a copy of row.
func (s *InMemorySink) Append(ctx context.Context, row core.MemoryRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[row.AgentID] = append(s.rows[row.AgentID], row.Clone())

	return nil
}

// List returns copies of the rows of agentID in append order.
func (s *InMemorySink) List(ctx context.Context, agentID string) ([]core.MemoryRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[agentID]
	out := make([]core.MemoryRow, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}

	return out, nil
}

// Agents returns the ids of all agents with at least one row.
func (s *InMemorySink) Agents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}
