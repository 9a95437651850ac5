package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an Event.
type EventType string

// Event types emitted by an agent while it steps through its graph.
const (
	EventStateEntered  EventType = "state_entered"
	EventOutput        EventType = "output"
	EventTransition    EventType = "transition"
	EventToolRequested EventType = "tool_requested"
	EventToolResult    EventType = "tool_result"
	EventAwaitingInput EventType = "awaiting_input"
	EventTerminated    EventType = "terminated"
	EventWarning       EventType = "warning"
	EventFailed        EventType = "failed"
)

// Event is an immutable signal describing something an agent did. Hosts
// observe events to drive transports (e.g. dispatch a deferred tool when
// EventToolRequested arrives).
type Event struct {
	ID          string       `json:"id"`
	AgentID     string       `json:"agent_id"`
	Type        EventType    `json:"type"`
	State       string       `json:"state"`
	Target      string       `json:"target,omitempty"` // next state for transitions
	Content     *Content     `json:"content,omitempty"`
	ToolRequest *ToolRequest `json:"tool_request,omitempty"`
	Err         string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewEvent creates a bare event for agentID in state.
func NewEvent(agentID string, typ EventType, state string) Event {
	return Event{
		ID:        NewID(),
		AgentID:   agentID,
		Type:      typ,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}

// NewOutputEvent creates an assistant output event.
func NewOutputEvent(agentID, state, text string) Event {
	e := NewEvent(agentID, EventOutput, state)
	c := NewTextContent(RoleAssistant, text)
	e.Content = &c
	return e
}

// NewTransitionEvent records a move from state to target.
func NewTransitionEvent(agentID, state, target string) Event {
	e := NewEvent(agentID, EventTransition, state)
	e.Target = target
	return e
}

// NewToolRequestedEvent signals that a tool call is outstanding.
func NewToolRequestedEvent(agentID, state string, req ToolRequest) Event {
	e := NewEvent(agentID, EventToolRequested, state)
	e.ToolRequest = &req
	return e
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// Text returns the text of the event content, if any.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}

// Observer receives events synchronously in emission order.
type Observer func(Event)
