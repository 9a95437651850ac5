package graph

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/state"
)

// Candidate is one viable transition returned by ResolveNext.
type Candidate struct {
	Key         string
	Target      string
	Description string
}

// Graph is an immutable, validated set of states plus the initial state name.
type Graph struct {
	source  string
	initial string
	order   []string
	states  map[string]state.State
	guards  map[string][]*guard // per state, parallel to its transition table
}

// Load parses and validates a graph document. source names the document in
// error messages.
func Load(data []byte, source string) (*Graph, error) {
	if source == "" {
		source = "<inline>"
	}
	doc, err := parse(data, source)
	if err != nil {
		return nil, err
	}
	return build(doc, source)
}

// LoadFile reads and loads a graph document from path.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.GraphLoadError{Source: path, Reason: "cannot read graph source", Err: err}
	}
	return Load(data, path)
}

// New builds a graph from definitions directly. The first definition is the
// initial state unless initial is set.
func New(initial string, defs ...state.Definition) (*Graph, error) {
	if initial == "" && len(defs) > 0 {
		initial = defs[0].Name
	}
	return build(document{Initial: initial, States: defs}, "<inline>")
}

func build(doc document, source string) (*Graph, error) {
	if len(doc.States) == 0 {
		return nil, &core.GraphLoadError{Source: source, Reason: "graph contains zero states"}
	}

	g := &Graph{
		source:  source,
		initial: doc.Initial,
		states:  make(map[string]state.State, len(doc.States)),
		guards:  make(map[string][]*guard, len(doc.States)),
	}

	for _, def := range doc.States {
		if _, dup := g.states[def.Name]; dup {
			return nil, &core.GraphLoadError{Source: source, State: def.Name, Reason: "duplicate state name"}
		}
		if err := validateDefinition(def); err != nil {
			return nil, &core.GraphLoadError{Source: source, State: def.Name, Reason: err.Error()}
		}
		st, err := state.New(def)
		if err != nil {
			return nil, &core.GraphLoadError{Source: source, State: def.Name, Reason: "unknown state type", Err: err}
		}
		guards := make([]*guard, len(def.Transitions))
		for i, tr := range def.Transitions {
			if tr.When == "" {
				continue
			}
			gd, err := compileGuard(tr.When)
			if err != nil {
				return nil, &core.GraphLoadError{Source: source, State: def.Name, Reason: fmt.Sprintf("invalid guard on transition %q", tr.Key), Err: err}
			}
			guards[i] = gd
		}
		g.states[def.Name] = st
		g.guards[def.Name] = guards
		g.order = append(g.order, def.Name)
	}

	if g.initial == "" {
		return nil, &core.GraphLoadError{Source: source, Reason: "initial state is not set"}
	}
	if _, ok := g.states[g.initial]; !ok {
		return nil, &core.GraphLoadError{Source: source, Reason: fmt.Sprintf("initial state %q does not exist", g.initial)}
	}

	for _, name := range g.order {
		for _, tr := range g.states[name].Definition().Transitions {
			if _, ok := g.states[tr.Target]; !ok {
				return nil, &core.GraphLoadError{Source: source, State: name, Reason: fmt.Sprintf("transition %q targets unknown state %q", tr.Key, tr.Target)}
			}
		}
	}

	return g, nil
}

func validateDefinition(def state.Definition) error {
	if def.Terminal && len(def.Transitions) > 0 {
		return errors.New("terminal state must not declare transitions")
	}
	seen := make(map[string]struct{}, len(def.ToolInputs))
	for _, in := range def.ToolInputs {
		if in == "" {
			return errors.New("empty tool input name")
		}
		if _, dup := seen[in]; dup {
			return fmt.Errorf("duplicate tool input %q", in)
		}
		seen[in] = struct{}{}
	}
	if def.Kind != state.KindTool && (def.Tool != "" || len(def.ToolInputs) > 0) {
		return fmt.Errorf("%s state cannot declare a tool", def.Kind)
	}
	return nil
}

// Source returns the name of the document the graph was loaded from.
func (g *Graph) Source() string { return g.source }

// InitialState returns the designated entry state.
func (g *Graph) InitialState() (state.State, error) {
	st, ok := g.states[g.initial]
	if !ok {
		return nil, &core.GraphLoadError{Source: g.source, Reason: "graph contains zero states"}
	}
	return st, nil
}

// Initial returns the initial state name.
func (g *Graph) Initial() string { return g.initial }

// State looks up a state by name.
func (g *Graph) State(name string) (state.State, error) {
	st, ok := g.states[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrStateNotFound, name)
	}
	return st, nil
}

// Names returns the state names in document order.
func (g *Graph) Names() []string { return slices.Clone(g.order) }

// Len returns the number of states.
func (g *Graph) Len() int { return len(g.order) }

// ResolveNext returns the ordered candidate transitions of the named state.
//
// A state without transitions resolves to itself and terminal is true. All
// unguarded transitions and every guarded transition whose guard holds
// against ac are returned; selecting among several candidates is left to
// the caller. When guards reject every transition the error wraps
// core.ErrNoViableTransition in a *core.TransitionResolutionError.
func (g *Graph) ResolveNext(name string, ac *core.AgentContext) ([]Candidate, bool, error) {
	st, err := g.State(name)
	if err != nil {
		return nil, false, err
	}

	def := st.Definition()
	if len(def.Transitions) == 0 {
		return []Candidate{{Key: name, Target: name, Description: def.Description}}, true, nil
	}

	guards := g.guards[name]

	var view map[string]any

	candidates := make([]Candidate, 0, len(def.Transitions))
	for i, tr := range def.Transitions {
		if gd := guards[i]; gd != nil {
			if view == nil {
				view = ac.View()
			}
			ok, err := gd.eval(view)
			if err != nil {
				return nil, false, &core.TransitionResolutionError{State: name, Err: fmt.Errorf("guard on %q: %w", tr.Key, err)}
			}
			if !ok {
				continue
			}
		}
		candidates = append(candidates, Candidate{Key: tr.Key, Target: tr.Target, Description: g.describe(tr)})
	}

	if len(candidates) == 0 {
		return nil, false, &core.TransitionResolutionError{State: name, Candidates: targets(def.Transitions), Err: core.ErrNoViableTransition}
	}

	return candidates, false, nil
}

// describe falls back to the target's own description and then to a generic
// label so every candidate presented to a model carries some text.
func (g *Graph) describe(tr state.Transition) string {
	if tr.Description != "" {
		return tr.Description
	}
	if st, ok := g.states[tr.Target]; ok {
		if d := st.Definition().Description; d != "" {
			return d
		}
	}
	if tr.Key != tr.Target {
		return fmt.Sprintf("%s: go to %s", tr.Key, tr.Target)
	}
	return "go to " + tr.Target
}

func targets(trs []state.Transition) []string {
	out := make([]string, len(trs))
	for i, tr := range trs {
		out[i] = tr.Target
	}
	return out
}
