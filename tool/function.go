package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// synchronous tool.
//
// Responsibilities:
//   - Holds a JSON schema describing the accepted arguments
//   - Validates model or caller supplied arguments before execution
//   - Normalizes failures into the Envelope error form:
//     validation failure -> tool_request_failed
//     function error     -> tool_request_failed
//     (a *core.ToolCallError returned by the function is passed through)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	multiply := NewFunctionTool(
//	  "multiply",
//	  "Multiply two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(_ context.Context, args map[string]any) (any, error) {
//	    return map[string]any{"result": args["a"].(float64) * args["b"].(float64)}, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Execute validates the arguments and invokes the function. Panics in the
// function are recovered and reported as tool_request_failed.
func (t *FunctionTool) Execute(ctx context.Context, call Call) (env Envelope) {
	if err := util.ValidateParameters(call.Arguments, t.parameters); err != nil {
		return Failure(t.name, core.ToolRequestFailed, fmt.Sprintf("parameter validation failed: %v", err))
	}

	defer func() {
		if r := recover(); r != nil {
			env = Failure(t.name, core.ToolRequestFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := t.fn(ctx, call.Arguments)
	if err != nil {
		var tce *core.ToolCallError
		if errors.As(err, &tce) {
			return Envelope{Tool: t.name, Err: tce}
		}

		return Failure(t.name, core.ToolRequestFailed, err.Error())
	}

	return Success(t.name, result)
}

// DeferredTool is a tool whose work happens out of process. The agent
// suspends after staging a call to it and resumes when the result is
// delivered.
type DeferredTool struct {
	name        string
	description string
	parameters  map[string]any
}

// NewDeferredTool creates a deferred tool.
func NewDeferredTool(name, description string, parameters map[string]any) *DeferredTool {
	return &DeferredTool{name: name, description: description, parameters: parameters}
}

func (t *DeferredTool) Name() string               { return t.name }
func (t *DeferredTool) Description() string        { return t.description }
func (t *DeferredTool) Parameters() map[string]any { return t.parameters }
