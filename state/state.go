// Package state implements the three state variants a graph is built from.
//
// The variants form a closed set: New is the only constructor and switches
// exhaustively over Kind. Each variant exposes Execute (do the state's work
// against an AgentContext) and CheckReady (may the agent leave the state).
package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/statemesh/core"
)

// Kind identifies a state variant.
type Kind string

// Supported variants.
const (
	KindInput      Kind = "input"
	KindGenerative Kind = "generative"
	KindTool       Kind = "tool"
)

// ParseKind maps a graph source type name onto a Kind. The legacy names
// "user" and "ai"/"llm" are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "user":
		return KindInput, nil
	case "generative", "ai", "llm":
		return KindGenerative, nil
	case "tool":
		return KindTool, nil
	default:
		return "", fmt.Errorf("unknown state type %q", s)
	}
}

// Transition is one entry of a state's ordered transition table.
type Transition struct {
	Key         string `json:"key" yaml:"key"`                                     // condition key or target name
	Target      string `json:"target" yaml:"target"`                               // target state name
	Description string `json:"description,omitempty" yaml:"description,omitempty"` // shown to the model when choosing
	When        string `json:"when,omitempty" yaml:"when,omitempty"`               // optional jq guard
}

// Definition is the immutable declarative configuration of a state.
type Definition struct {
	Name        string
	Kind        Kind
	Description string
	Terminal    bool
	Transitions []Transition

	// Generative
	Prompt   string // extra instruction for the model
	Response string // canned response template; skips the model when set

	// Tool
	Tool       string   // fixed tool; empty means decide among bound tools
	ToolInputs []string // required argument names
}

// Outcome tells the agent what a state execution produced.
type Outcome int

const (
	// OutcomeAdvance means the state did its work; the agent may commit and transition.
	OutcomeAdvance Outcome = iota
	// OutcomeNeedInput means an input state found no pending input.
	OutcomeNeedInput
	// OutcomeAwaitTool means a tool call was staged and its result is outstanding.
	OutcomeAwaitTool
	// OutcomeEndSession means the session was ended by an exit keyword.
	OutcomeEndSession
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvance:
		return "advance"
	case OutcomeNeedInput:
		return "need_input"
	case OutcomeAwaitTool:
		return "await_tool"
	case OutcomeEndSession:
		return "end_session"
	default:
		return "unknown"
	}
}

// Result is the product of one Execute call.
type Result struct {
	Outcome    Outcome
	Output     string         // assistant reply, or the consumed input for input states
	Tool       string         // tool involved, if any
	Scratchpad map[string]any // data to record in the memory entry
}

// Runtime is the set of agent capabilities a state may use. The agent
// implements it; states never talk to models or tools directly.
type Runtime interface {
	// Generate produces a free text reply for a generative state.
	Generate(ctx context.Context, def Definition, ac *core.AgentContext) (string, error)
	// RequestTool runs the decide and fill phases and returns the staged
	// request, or nil when no tool is needed.
	RequestTool(ctx context.Context, def Definition, ac *core.AgentContext) (*core.ToolRequest, error)
	// Synthesize turns a tool outcome into the user-facing reply. It must
	// always produce text, even when the tool failed.
	Synthesize(ctx context.Context, req core.ToolRequest, ac *core.AgentContext) string
	// IsExit reports whether input is a session termination keyword.
	IsExit(input string) bool
}

// State is a node of a graph.
type State interface {
	Name() string
	Kind() Kind
	Terminal() bool
	Definition() Definition
	// CheckReady reports whether the agent may transition out of the state
	// after Execute.
	CheckReady(ac *core.AgentContext) bool
	Execute(ctx context.Context, rt Runtime, ac *core.AgentContext) (Result, error)

	sealed()
}

// New constructs the variant for def.Kind.
func New(def Definition) (State, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("state name is required")
	}
	b := base{def: def}
	switch def.Kind {
	case KindInput:
		return &Input{base: b}, nil
	case KindGenerative:
		return &Generative{base: b}, nil
	case KindTool:
		return &Tool{base: b}, nil
	default:
		return nil, fmt.Errorf("state %q: unknown state type %q", def.Name, def.Kind)
	}
}

type base struct {
	def Definition
}

func (b *base) Name() string           { return b.def.Name }
func (b *base) Kind() Kind             { return b.def.Kind }
func (b *base) Terminal() bool         { return b.def.Terminal || len(b.def.Transitions) == 0 }
func (b *base) Definition() Definition { return b.def }
func (b *base) sealed()                {}
