package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStateNotFound is returned when a state name is not part of the graph.
	ErrStateNotFound = errors.New("state not found")
	// ErrSessionNotFound is returned by session stores and the runtime for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrToolNotBound is returned when a tool state names a tool the agent does not hold.
	ErrToolNotBound = errors.New("tool not bound")
	// ErrToolNotFound is returned by a tool registry lookup miss.
	ErrToolNotFound = errors.New("tool not found")
	// ErrNoViableTransition is returned when every guarded transition evaluated false.
	ErrNoViableTransition = errors.New("no viable transition")
	// ErrStepBudgetExceeded is returned when a single Step call loops more often than allowed.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	// ErrNotAwaitingTool is returned by ReceiveResult when no tool call is outstanding.
	ErrNotAwaitingTool = errors.New("agent is not awaiting a tool result")
	// ErrSessionHalted is returned by every call on a session stopped by a fatal error.
	ErrSessionHalted = errors.New("session halted")
)

// GraphLoadError reports a malformed graph source. It is raised at load time
// only; a graph that loads never produces one later.
type GraphLoadError struct {
	Source string // file path or "<inline>"
	State  string // offending state, empty for document level problems
	Reason string
	Err    error
}

func (e *GraphLoadError) Error() string {
	var b strings.Builder
	b.WriteString("graph load error")
	if e.Source != "" {
		b.WriteString(" in " + e.Source)
	}
	if e.State != "" {
		b.WriteString(fmt.Sprintf(" (state %q)", e.State))
	}
	b.WriteString(": " + e.Reason)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *GraphLoadError) Unwrap() error { return e.Err }

// TransitionResolutionError reports that the next state could not be chosen:
// the model failed, answered outside the candidate set, or no candidate was
// viable.
type TransitionResolutionError struct {
	State      string
	Candidates []string
	Answer     string // raw model answer, if any
	Err        error
}

func (e *TransitionResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve transition from %q among %v", e.State, e.Candidates)
	if e.Answer != "" {
		msg += fmt.Sprintf(" (answer %q)", e.Answer)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransitionResolutionError) Unwrap() error { return e.Err }

// Tool error codes carried in ToolCallError.Code.
const (
	ToolRequestFailed     = "tool_request_failed"
	InvalidResponseFormat = "invalid_response_format"
)

// ToolCallError is the normalized error envelope of a failed tool call. It is
// a value, not a control-flow error: the agent narrates it to the user.
type ToolCallError struct {
	Code   string `json:"error"`
	Detail string `json:"detail"`
	Tool   string `json:"tool_name"`
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Code, e.Detail)
}

// NewToolCallError creates a ToolCallError, defaulting an empty code to
// ToolRequestFailed.
func NewToolCallError(tool, code, detail string) *ToolCallError {
	if code == "" {
		code = ToolRequestFailed
	}
	return &ToolCallError{Code: code, Detail: detail, Tool: tool}
}

// StateExecutionError wraps a failure raised while executing a state.
type StateExecutionError struct {
	State string
	Kind  string
	Err   error
}

func (e *StateExecutionError) Error() string {
	return fmt.Sprintf("%s state %q failed: %v", e.Kind, e.State, e.Err)
}

func (e *StateExecutionError) Unwrap() error { return e.Err }

// SinkWriteError reports that a memory entry could not reach the durable sink.
// The in-process transcript still holds the entry; the error is a degraded
// warning and never aborts a step.
type SinkWriteError struct {
	AgentID string
	State   string
	Err     error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("memory sink write for agent %s at %q failed: %v", e.AgentID, e.State, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// IsDegraded reports whether err only carries degraded warnings.
func IsDegraded(err error) bool {
	if err == nil {
		return false
	}
	var sinkErr *SinkWriteError
	if !errors.As(err, &sinkErr) {
		return false
	}
	return !IsFatal(err)
}

// IsFatal reports whether err contains a graph, transition or state execution
// failure, or comes from a session halted by one.
func IsFatal(err error) bool {
	var (
		gle *GraphLoadError
		tre *TransitionResolutionError
		see *StateExecutionError
	)
	return errors.As(err, &gle) || errors.As(err, &tre) || errors.As(err, &see) || errors.Is(err, ErrSessionHalted)
}
