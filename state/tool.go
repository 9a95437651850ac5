package state

import (
	"context"

	"github.com/hupe1980/statemesh/core"
)

// Tool runs the tool-calling protocol. The first execution stages a tool
// request and leaves the context awaiting a result; once the result is ready
// the next execution synthesizes the reply.
type Tool struct{ base }

// CheckReady returns false until the awaited result flag is set.
func (s *Tool) CheckReady(ac *core.AgentContext) bool { return ac.ToolResultReady }

// Execute stages the tool request or, when the result is ready, synthesizes
// the user-facing reply.
func (s *Tool) Execute(ctx context.Context, rt Runtime, ac *core.AgentContext) (Result, error) {
	if ac.ToolRequest == nil {
		req, err := rt.RequestTool(ctx, s.def, ac)
		if err != nil {
			return Result{}, err
		}
		if req == nil {
			// no tool needed; answer directly
			reply, err := rt.Generate(ctx, s.def, ac)
			if err != nil {
				return Result{}, err
			}
			ac.ToolResultReady = true
			ac.LastOutput = reply
			ac.AddMessage(core.Message{Role: core.RoleAssistant, Content: reply, State: s.def.Name})
			return Result{Outcome: OutcomeAdvance, Output: reply, Scratchpad: map[string]any{"response": reply}}, nil
		}
		ac.ToolRequest = req
		ac.ToolResult, ac.ToolError, ac.ToolResultReady = nil, nil, false
		return Result{
			Outcome:    OutcomeAwaitTool,
			Tool:       req.Tool,
			Scratchpad: map[string]any{"tool_input": req.Arguments, "tool_call_id": req.CallID},
		}, nil
	}

	if !ac.ToolResultReady {
		return Result{Outcome: OutcomeAwaitTool, Tool: ac.ToolRequest.Tool}, nil
	}

	req := *ac.ToolRequest
	reply := rt.Synthesize(ctx, req, ac)
	ac.LastOutput = reply
	ac.AddMessage(core.Message{Role: core.RoleAssistant, Content: reply, State: s.def.Name, Tool: req.Tool})

	scratch := map[string]any{"response": reply}
	if ac.ToolError != nil {
		scratch["tool_error"] = map[string]any{"error": ac.ToolError.Code, "detail": ac.ToolError.Detail, "tool_name": ac.ToolError.Tool}
	} else {
		scratch["tool_result"] = ac.ToolResult
	}

	return Result{Outcome: OutcomeAdvance, Output: reply, Tool: req.Tool, Scratchpad: scratch}, nil
}
