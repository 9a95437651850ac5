package core

import (
	"encoding/json"
	"maps"
)

// Message is one line of conversational history kept in an AgentContext.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	State   string `json:"state,omitempty"` // State that produced or consumed the message
	Tool    string `json:"tool,omitempty"`  // Set on tool narration messages
}

// AsContent converts the message into a single text part Content.
func (m Message) AsContent() Content { return NewTextContent(m.Role, m.Content) }

// ToolRequest is a tool invocation staged by a tool state.
type ToolRequest struct {
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// AgentContext is the mutable working memory of one agent session. It is
// owned by exactly one agent and mutated only by that agent's Step and
// ReceiveResult operations.
//
// The tool fields form the suspension protocol: a tool state stages
// ToolRequest and leaves ToolResultReady false; ReceiveResult stores the
// result (or error) and flips ToolResultReady before the tool state runs again.
type AgentContext struct {
	Messages []Message `json:"messages"`

	// PendingInput holds input supplied to Step that no input state has
	// consumed yet.
	PendingInput    string `json:"pending_input,omitempty"`
	HasPendingInput bool   `json:"has_pending_input,omitempty"`

	LastOutput string `json:"last_output,omitempty"`
	Intent     string `json:"intent,omitempty"`

	// ToolInput holds externally supplied arguments for the next tool call.
	ToolInput       map[string]any `json:"tool_input,omitempty"`
	ToolRequest     *ToolRequest   `json:"tool_request,omitempty"`
	ToolResult      any            `json:"tool_result,omitempty"`
	ToolError       *ToolCallError `json:"tool_error,omitempty"`
	ToolResultReady bool           `json:"tool_result_ready"`

	// Values is free-form application state visible to templates and guards.
	Values map[string]any `json:"values,omitempty"`
}

// NewAgentContext returns an empty context.
func NewAgentContext() *AgentContext {
	return &AgentContext{Messages: []Message{}, Values: map[string]any{}}
}

// AddMessage appends a history message.
func (c *AgentContext) AddMessage(m Message) {
	c.Messages = append(c.Messages, m)
}

// LastUserMessage returns the most recent user message text.
func (c *AgentContext) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// Contents converts the message history into model contents.
func (c *AgentContext) Contents() []Content {
	out := make([]Content, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, m.AsContent())
	}
	return out
}

// TakeInput consumes the pending input.
func (c *AgentContext) TakeInput() (string, bool) {
	if !c.HasPendingInput {
		return "", false
	}
	in := c.PendingInput
	c.PendingInput, c.HasPendingInput = "", false
	return in, true
}

// ClearTool resets every field of the suspension protocol.
func (c *AgentContext) ClearTool() {
	c.ToolRequest = nil
	c.ToolResult = nil
	c.ToolError = nil
	c.ToolResultReady = false
	c.ToolInput = nil
}

// Clone returns a deep copy. Values and tool payloads are copied through a
// JSON round trip, which also normalizes them to JSON-compatible types.
func (c *AgentContext) Clone() *AgentContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.Values = cloneMap(c.Values)
	cp.ToolInput = cloneMap(c.ToolInput)
	cp.ToolResult = cloneValue(c.ToolResult)
	if c.ToolRequest != nil {
		req := *c.ToolRequest
		req.Arguments = cloneMap(c.ToolRequest.Arguments)
		cp.ToolRequest = &req
	}
	if c.ToolError != nil {
		te := *c.ToolError
		cp.ToolError = &te
	}
	if cp.Values == nil {
		cp.Values = map[string]any{}
	}
	return &cp
}

// View returns a read-only, JSON-normalized map of the context for template
// rendering and transition guards.
func (c *AgentContext) View() map[string]any {
	view := map[string]any{
		"last_user_message": c.LastUserMessage(),
		"last_output":       c.LastOutput,
		"intent":            c.Intent,
		"tool_result_ready": c.ToolResultReady,
		"message_count":     len(c.Messages),
	}
	if c.ToolRequest != nil {
		view["tool"] = c.ToolRequest.Tool
		view["tool_input"] = cloneValue(c.ToolRequest.Arguments)
	}
	if c.ToolResult != nil {
		view["tool_result"] = cloneValue(c.ToolResult)
	}
	if c.ToolError != nil {
		view["tool_error"] = map[string]any{"error": c.ToolError.Code, "detail": c.ToolError.Detail, "tool_name": c.ToolError.Tool}
	}
	values := map[string]any{}
	for k, v := range c.Values {
		values[k] = cloneValue(v)
	}
	view["values"] = values
	return view
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := cloneValue(m).(map[string]any); ok {
		return v
	}
	return maps.Clone(m)
}

func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
