// Package statemesh provides a high-level façade over the agent package:
// one state graph and one language model shared by many isolated
// conversation sessions. Most applications interact with this package by:
//  1. Loading a graph with graph.LoadFile
//  2. Creating a Runtime via New() (optionally overriding the default in-memory stores)
//  3. Driving sessions with Step and, for deferred tools, ReceiveResult
//
// Sessions are created on first use and restored from the session store when
// a snapshot exists, so a conversation suspended on a tool call can resume in
// another process.
package statemesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/statemesh/agent"
	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/memory"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/session"
	"github.com/hupe1980/statemesh/tool"
)

// Options configures the Runtime.
type Options struct {
	// Stores (default to in-memory implementations if not provided)
	SessionStore core.SessionStore
	Sink         core.MemorySink

	// Tools bound to every session, plus a registry for tools bound on demand.
	Tools    []tool.Tool
	Registry *tool.Registry

	// Instruction overrides the default system prompt of every session.
	Instruction *agent.Instruction

	ExitKeywords    []string
	MaxStepsPerCall int
	ModelTimeout    time.Duration
	ToolTimeout     time.Duration

	Observer core.Observer

	// Logger (defaults to a discarding logger if nil)
	Logger *logging.StateMeshLogger
}

// Runtime owns the sessions of one graph.
type Runtime struct {
	opts   Options
	graph  *graph.Graph
	llm    model.Model
	logger *logging.StateMeshLogger

	mu       sync.Mutex
	sessions map[string]*agent.Agent
}

// New creates a Runtime. Any unset store is initialized with an in-memory
// implementation.
func New(g *graph.Graph, llm model.Model, optFns ...func(o *Options)) (*Runtime, error) {
	if g == nil {
		return nil, errors.New("statemesh: graph is required")
	}
	if llm == nil {
		return nil, errors.New("statemesh: model is required")
	}

	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Sink:         memory.NewInMemorySink(),
		Registry:     tool.NewRegistry(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelError, Output: io.Discard})
	}

	return &Runtime{
		opts:     opts,
		graph:    g,
		llm:      llm,
		logger:   opts.Logger.WithComponent("runtime"),
		sessions: make(map[string]*agent.Agent),
	}, nil
}

// Graph returns the shared graph.
func (r *Runtime) Graph() *graph.Graph { return r.graph }

// Open returns the session with the given id, restoring it from the session
// store or creating a fresh one. An empty id creates a new session with a
// generated id.
func (r *Runtime) Open(ctx context.Context, sessionID string) (*agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.sessions[sessionID]; ok && sessionID != "" {
		return a, nil
	}

	if sessionID != "" {
		snap, err := r.opts.SessionStore.Load(ctx, sessionID)
		switch {
		case err == nil:
			a, err := agent.Restore(r.graph, r.llm, snap, r.agentOptions)
			if err != nil {
				return nil, fmt.Errorf("open session %s: %w", sessionID, err)
			}
			r.sessions[a.ID()] = a
			r.logger.Info("runtime.session.restored", "session_id", a.ID(), "status", a.Status())
			return a, nil
		case !errors.Is(err, core.ErrSessionNotFound):
			return nil, fmt.Errorf("open session %s: %w", sessionID, err)
		}
	}

	a, err := agent.New(sessionID, r.graph, r.llm, r.agentOptions)
	if err != nil {
		return nil, err
	}
	r.sessions[a.ID()] = a
	r.logger.Info("runtime.session.created", "session_id", a.ID())

	return a, nil
}

// Step feeds input to a session, opening it first when needed.
func (r *Runtime) Step(ctx context.Context, sessionID, input string) (agent.Reply, error) {
	a, err := r.Open(ctx, sessionID)
	if err != nil {
		return agent.Reply{}, err
	}
	return a.Step(ctx, input)
}

// ReceiveResult delivers a deferred tool result to a session.
func (r *Runtime) ReceiveResult(ctx context.Context, sessionID string, result any) (agent.Reply, error) {
	a, err := r.Open(ctx, sessionID)
	if err != nil {
		return agent.Reply{}, err
	}
	return a.ReceiveResult(ctx, result)
}

// ReceiveEnvelope delivers an already normalized tool outcome, such as a
// failure reported by the caller, to a session.
func (r *Runtime) ReceiveEnvelope(ctx context.Context, sessionID string, env tool.Envelope) (agent.Reply, error) {
	a, err := r.Open(ctx, sessionID)
	if err != nil {
		return agent.Reply{}, err
	}
	return a.ReceiveEnvelope(ctx, env)
}

// Snapshot serializes an open session.
func (r *Runtime) Snapshot(sessionID string) (core.Snapshot, error) {
	r.mu.Lock()
	a, ok := r.sessions[sessionID]
	r.mu.Unlock()

	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	return a.Serialize(), nil
}

// Sessions lists the ids of the open sessions.
func (r *Runtime) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Close saves the session snapshot and releases it from memory. A closed
// session can be opened again from the session store.
func (r *Runtime) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	a, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	if err := r.opts.SessionStore.Save(ctx, a.Serialize()); err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}

	r.logger.Debug("runtime.session.closed", "session_id", sessionID)

	return nil
}

// Delete removes a session from memory and from the session store.
func (r *Runtime) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	return r.opts.SessionStore.Delete(ctx, sessionID)
}

func (r *Runtime) agentOptions(o *agent.Options) {
	o.Tools = r.opts.Tools
	o.Registry = r.opts.Registry
	o.Sink = r.opts.Sink
	o.Store = r.opts.SessionStore
	o.Logger = r.opts.Logger
	o.Observer = r.opts.Observer

	if r.opts.Instruction != nil {
		o.Instruction = *r.opts.Instruction
	}
	if len(r.opts.ExitKeywords) > 0 {
		o.ExitKeywords = r.opts.ExitKeywords
	}
	if r.opts.MaxStepsPerCall > 0 {
		o.MaxStepsPerCall = r.opts.MaxStepsPerCall
	}
	if r.opts.ModelTimeout > 0 {
		o.ModelTimeout = r.opts.ModelTimeout
	}
	if r.opts.ToolTimeout > 0 {
		o.ToolTimeout = r.opts.ToolTimeout
	}
}
