package tool

import "context"

// Invoker dispatches a call to a remote tool endpoint. Implementations
// report transport and format failures inside the Envelope.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, parameters, sessionState map[string]any) Envelope
}

// RemoteTool is a synchronous tool served by an Invoker.
type RemoteTool struct {
	name        string
	description string
	parameters  map[string]any
	invoker     Invoker
}

// NewRemoteTool creates a tool that forwards calls to invoker.
func NewRemoteTool(name, description string, parameters map[string]any, invoker Invoker) *RemoteTool {
	return &RemoteTool{name: name, description: description, parameters: parameters, invoker: invoker}
}

func (t *RemoteTool) Name() string               { return t.name }
func (t *RemoteTool) Description() string        { return t.description }
func (t *RemoteTool) Parameters() map[string]any { return t.parameters }

// Execute forwards the call to the invoker.
func (t *RemoteTool) Execute(ctx context.Context, call Call) Envelope {
	return t.invoker.Invoke(ctx, t.name, call.Arguments, call.SessionState)
}
