package core

import (
	"context"
	"time"
)

// MemoryRow is the durable form of one memory entry. Scratchpad is encoded as
// JSON by sinks that store flat rows.
type MemoryRow struct {
	AgentID    string         `json:"agent_id"`
	Seq        int            `json:"seq"`
	State      string         `json:"state"`
	Kind       string         `json:"kind"`
	Intent     string         `json:"intent"`
	Tool       string         `json:"tool"`
	Scratchpad map[string]any `json:"scratchpad"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the row.
func (r MemoryRow) Clone() MemoryRow {
	cp := r
	cp.Scratchpad = cloneMap(r.Scratchpad)
	return cp
}

// MemorySink is an append-only durable destination for memory rows.
// Append must not modify previously written rows.
type MemorySink interface {
	Append(ctx context.Context, row MemoryRow) error
	List(ctx context.Context, agentID string) ([]MemoryRow, error)
}
