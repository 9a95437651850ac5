package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/model"
)

// Serialize externalizes the session: id, current state, lifecycle status,
// a deep copy of the context and the memory transcript, including the open
// entry of a suspended tool step and the failure of a halted session.
func (a *Agent) Serialize() core.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Agent) snapshotLocked() core.Snapshot {
	rows, pending := a.memory.Rows()

	snap := core.Snapshot{
		AgentID:      a.id,
		CurrentState: a.current,
		Status:       a.lifecycle.Status(),
		Context:      a.ac.Clone(),
		Memory:       rows,
		Pending:      pending,
		Updated:      time.Now().UTC(),
	}
	if a.fatal != nil {
		snap.Failure = a.fatal.Error()
	}

	return snap
}

// Restore rebuilds an agent from a snapshot, for example to resume a
// suspended session in another process. Tools are not part of a snapshot
// and must be bound again through options or a registry. The transcript is
// not written to the sink again.
func Restore(g *graph.Graph, llm model.Model, snap core.Snapshot, optFns ...func(o *Options)) (*Agent, error) {
	if snap.AgentID == "" {
		return nil, fmt.Errorf("restore agent: snapshot has no agent id")
	}

	a, err := New(snap.AgentID, g, llm, optFns...)
	if err != nil {
		return nil, err
	}

	if snap.CurrentState != "" {
		if _, err := g.State(snap.CurrentState); err != nil {
			return nil, fmt.Errorf("restore agent %s: %w", snap.AgentID, err)
		}
		a.current = snap.CurrentState
	}

	if snap.Context != nil {
		a.ac = snap.Context.Clone()
	}

	a.memory.Restore(snap.Memory, snap.Pending)

	if err := a.lifecycle.Restore(snap.Status); err != nil {
		return nil, fmt.Errorf("restore agent %s: %w", snap.AgentID, err)
	}

	if snap.Status == core.StatusFailed {
		reason := snap.Failure
		if reason == "" {
			reason = "unknown failure"
		}
		a.fatal = errors.New(reason)
	}

	a.logger.Info("agent.restored", "step_state", a.current, "status", a.lifecycle.Status(), "entries", len(snap.Memory))

	return a, nil
}
