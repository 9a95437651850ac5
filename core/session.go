package core

import (
	"context"
	"time"
)

// Agent lifecycle statuses carried in a Snapshot.
const (
	StatusNotStarted         = "not_started"
	StatusRunning            = "running"
	StatusAwaitingInput      = "awaiting_input"
	StatusAwaitingToolResult = "awaiting_tool_result"
	StatusTerminal           = "terminal"
	StatusFailed             = "failed" // halted by a fatal error
)

// Snapshot is the serialized form of an agent: id, current state, lifecycle
// status, context and memory transcript. It is a deep copy and safe to hand
// to other goroutines or persist.
type Snapshot struct {
	AgentID      string        `json:"agent_id"`
	CurrentState string        `json:"current_state"`
	Status       string        `json:"status"`
	Context      *AgentContext `json:"context"`
	Memory       []MemoryRow   `json:"memory"`
	Pending      *MemoryRow    `json:"pending,omitempty"` // open entry of a suspended tool step
	Failure      string        `json:"failure,omitempty"` // fatal error of a failed session
	Updated      time.Time     `json:"updated"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Context = s.Context.Clone()
	cp.Memory = make([]MemoryRow, len(s.Memory))
	for i, r := range s.Memory {
		cp.Memory[i] = r.Clone()
	}
	if s.Pending != nil {
		p := s.Pending.Clone()
		cp.Pending = &p
	}
	return cp
}

// SessionStore persists agent snapshots so a suspended agent can be resumed
// later or by another process.
type SessionStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, agentID string) (Snapshot, error)
	Delete(ctx context.Context, agentID string) error
	List(ctx context.Context) ([]string, error)
}
