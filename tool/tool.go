// Package tool defines the capabilities an agent can call and the normalized
// envelope their outcomes are reported in.
//
// A Tool only describes itself (name, description, parameter schema). Tools
// that also implement Executor run in-process or over HTTP and report back
// immediately; all other tools are deferred: the agent stages the request,
// suspends, and waits for the result to be delivered from outside.
//
// Failures are data. Every Executor returns an Envelope, never a Go error, so
// a broken tool degrades the conversation instead of aborting it.
package tool

import (
	"context"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
)

// Tool describes a callable capability.
type Tool interface {
	// Name returns the unique identifier used for binding and routing.
	Name() string

	// Description tells the model when the tool is useful.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	// It may be nil when the graph's tool_inputs alone describe them.
	Parameters() map[string]any
}

// Executor is a Tool the agent can run synchronously.
type Executor interface {
	Tool
	Execute(ctx context.Context, call Call) Envelope
}

// Call is one tool request.
type Call struct {
	ID           string         `json:"id"`
	Tool         string         `json:"tool_name"`
	Arguments    map[string]any `json:"parameters"`
	SessionState map[string]any `json:"session_state"`
}

// Envelope is the normalized outcome of a tool call: either a result or an
// error, both tagged with the originating tool.
type Envelope struct {
	Tool   string              `json:"tool_name"`
	Result any                 `json:"result,omitempty"`
	Err    *core.ToolCallError `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (e Envelope) OK() bool { return e.Err == nil }

// Success wraps a result.
func Success(tool string, result any) Envelope {
	return Envelope{Tool: tool, Result: result}
}

// Failure wraps a normalized error.
func Failure(tool, code, detail string) Envelope {
	return Envelope{Tool: tool, Err: core.NewToolCallError(tool, code, detail)}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// NormalizeResult turns a raw payload reported by a tool into an Envelope.
// A JSON object carrying a string "error" field is the error form
// {error, detail, tool_name}; anything else is a result.
func NormalizeResult(tool string, raw any) Envelope {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Success(tool, raw)
	}

	code, isErr := obj["error"].(string)
	if !isErr || code == "" {
		return Success(tool, obj)
	}

	name := tool
	if n, ok := obj["tool_name"].(string); ok && n != "" {
		name = n
	}

	detail, _ := obj["detail"].(string)

	return Envelope{Tool: name, Err: core.NewToolCallError(name, code, detail)}
}
