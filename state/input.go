package state

import (
	"context"

	"github.com/hupe1980/statemesh/core"
)

// Input collects external input. With no pending input it asks the agent to
// suspend; an exit keyword ends the session without a transcript entry.
type Input struct{ base }

// CheckReady always returns true: consumed input is sufficient to advance.
func (s *Input) CheckReady(*core.AgentContext) bool { return true }

// Execute consumes the pending input.
func (s *Input) Execute(_ context.Context, rt Runtime, ac *core.AgentContext) (Result, error) {
	in, ok := ac.TakeInput()
	if !ok {
		return Result{Outcome: OutcomeNeedInput}, nil
	}
	if rt.IsExit(in) {
		return Result{Outcome: OutcomeEndSession, Output: in}, nil
	}
	ac.AddMessage(core.Message{Role: core.RoleUser, Content: in, State: s.def.Name})
	return Result{
		Outcome:    OutcomeAdvance,
		Output:     in,
		Scratchpad: map[string]any{"input": in},
	}, nil
}
