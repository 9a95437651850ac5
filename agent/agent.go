package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/memory"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/tool"
)

// Agent runs one conversation session over a graph.
//
// The graph and the model are shared; the context, the transcript, the
// bound tools and the lifecycle belong to this agent alone. All exported
// methods are goroutine-safe; Step and ReceiveResult are serialized.
type Agent struct {
	id     string
	graph  *graph.Graph
	llm    model.Model
	opts   Options
	logger *logging.StateMeshLogger
	rt     *runtime

	mu        sync.Mutex
	current   string
	ac        *core.AgentContext
	memory    *memory.Memory
	lifecycle *lifecycle
	tools     map[string]tool.Tool
	preflight *preflightError
	fatal     error // set once the session halted

	// per step
	rollback        *core.AgentContext // context before the running step
	rollbackOutputs int                // outputs before the running step
	stepIntent      string             // intent decided by the running step

	// per call
	events   []core.Event
	outputs  []string
	warnings []error
}

// preflightError is a tool failure detected before dispatch, such as an
// unbound tool or arguments the model could not fill.
type preflightError struct {
	callID string
	err    *core.ToolCallError
}

// New creates an agent positioned at the graph's initial state. An empty id
// is replaced by a generated one.
//
// Example:
//
//	g, _ := graph.LoadFile("flow.yaml")
//	a, err := agent.New("support-1", g, llm, func(o *agent.Options) {
//	  o.Tools = []tool.Tool{multiply}
//	})
func New(id string, g *graph.Graph, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if g == nil {
		return nil, errors.New("agent: graph is required")
	}
	if llm == nil {
		return nil, errors.New("agent: model is required")
	}
	if id == "" {
		id = core.NewID()
	}

	opts := defaultOptions(id)
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.WithComponent("agent").WithSession(id)

	lc, err := newLifecycle(id, logger)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		id:        id,
		graph:     g,
		llm:       llm,
		opts:      opts,
		logger:    logger,
		current:   g.Initial(),
		ac:        core.NewAgentContext(),
		memory:    memory.New(id, opts.Sink),
		lifecycle: lc,
		tools:     make(map[string]tool.Tool, len(opts.Tools)),
	}
	a.rt = &runtime{a: a}

	for _, t := range opts.Tools {
		a.tools[t.Name()] = t
	}

	return a, nil
}

// ID returns the agent (session) id.
func (a *Agent) ID() string { return a.id }

// Graph returns the shared graph.
func (a *Agent) Graph() *graph.Graph { return a.graph }

// CurrentState returns the name of the current state.
func (a *Agent) CurrentState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Status returns the lifecycle status (see core.Status* constants).
func (a *Agent) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifecycle.Status()
}

// Terminal reports whether the session has ended.
func (a *Agent) Terminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifecycle.Terminal()
}

// Context returns a deep copy of the agent context.
func (a *Agent) Context() *core.AgentContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ac.Clone()
}

// Memory returns the transcript.
func (a *Agent) Memory() *memory.Memory { return a.memory }

// Transcript returns the sealed memory entries in commit order.
func (a *Agent) Transcript() []memory.Entry { return a.memory.Entries() }

// BindTool makes t callable by this agent. Binding a tool whose name is
// already bound replaces the previous one.
func (a *Agent) BindTool(t tool.Tool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools[t.Name()] = t
	a.logger.Debug("agent.tool.bound", "tool_name", t.Name())
}

// FindAndBindTool resolves identifier in the configured registry and binds
// the tool it names.
func (a *Agent) FindAndBindTool(identifier string) (tool.Tool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.findAndBindLocked(identifier)
}

func (a *Agent) findAndBindLocked(identifier string) (tool.Tool, error) {
	if a.opts.Registry == nil {
		return nil, fmt.Errorf("%w: %s (no registry configured)", core.ErrToolNotFound, identifier)
	}

	t, err := a.opts.Registry.Lookup(identifier)
	if err != nil {
		return nil, err
	}

	a.tools[t.Name()] = t
	a.logger.Debug("agent.tool.bound", "tool_name", t.Name(), "identifier", identifier)

	return t, nil
}

// BoundTools returns the sorted names of the bound tools.
func (a *Agent) BoundTools() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boundNamesLocked()
}

func (a *Agent) boundNamesLocked() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveToolLocked returns the bound tool called name, binding it from the
// registry on first use.
func (a *Agent) resolveToolLocked(name string) (tool.Tool, error) {
	if t, ok := a.tools[name]; ok {
		return t, nil
	}
	if a.opts.Registry != nil {
		if t, err := a.findAndBindLocked(name); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrToolNotBound, name)
}

// StageToolInput supplies an argument for the next tool call. Staged values
// win over values the model would fill in and are cleared once the agent
// leaves the tool state.
func (a *Agent) StageToolInput(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ac.ToolInput == nil {
		a.ac.ToolInput = map[string]any{}
	}
	a.ac.ToolInput[key] = value
}

// SetValue stores an application value visible to templates and guards.
func (a *Agent) SetValue(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ac.Values[key] = value
}
