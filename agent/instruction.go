package agent

import (
	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the agent context, environment, etc.
type Provider interface {
	Instruction(*core.AgentContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.AgentContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ac *core.AgentContext) (string, error) { return f(ac) }

// Instruction represents either a static instruction template or a dynamic provider.
// Static text is rendered as a text/template against the context view, so
// "{{.intent}}" or "{{.values.user}}" may be used.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.AgentContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ac *core.AgentContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ac)
	}
	if i.text == "" {
		return "", nil
	}
	return util.RenderTemplate(i.text, ac.View())
}
