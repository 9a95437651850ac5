package testutil

import "github.com/hupe1980/statemesh/core"

// ContextBuilder helps construct agent contexts with fluent chaining.
//
//	ac := NewContextBuilder().User("multiply 3 and 4").Intent("multiply").Build()
type ContextBuilder struct {
	ac *core.AgentContext
}

// NewContextBuilder creates a builder around an empty context.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{ac: core.NewAgentContext()}
}

// User appends a user message (chainable).
func (b *ContextBuilder) User(text string) *ContextBuilder {
	b.ac.AddMessage(core.Message{Role: core.RoleUser, Content: text})
	return b
}

// Assistant appends an assistant message and sets it as last output (chainable).
func (b *ContextBuilder) Assistant(text string) *ContextBuilder {
	b.ac.AddMessage(core.Message{Role: core.RoleAssistant, Content: text})
	b.ac.LastOutput = text
	return b
}

// Intent sets the inferred intent (chainable).
func (b *ContextBuilder) Intent(intent string) *ContextBuilder {
	b.ac.Intent = intent
	return b
}

// Value sets an application value (chainable).
func (b *ContextBuilder) Value(key string, val any) *ContextBuilder {
	b.ac.Values[key] = val
	return b
}

// ToolInput stages an externally supplied tool argument (chainable).
func (b *ContextBuilder) ToolInput(key string, val any) *ContextBuilder {
	if b.ac.ToolInput == nil {
		b.ac.ToolInput = map[string]any{}
	}
	b.ac.ToolInput[key] = val
	return b
}

// Input sets pending input (chainable).
func (b *ContextBuilder) Input(text string) *ContextBuilder {
	b.ac.PendingInput, b.ac.HasPendingInput = text, true
	return b
}

// Build returns the context.
func (b *ContextBuilder) Build() *core.AgentContext { return b.ac }
