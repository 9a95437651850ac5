package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/state"
	"github.com/hupe1980/statemesh/tool"
)

// Reply is what a Step or ReceiveResult call produced.
type Reply struct {
	Output      string             // last assistant output of this call
	Outputs     []string           // every assistant output of this call, in order
	State       string             // current state after the call
	Status      string             // lifecycle status after the call
	Events      []core.Event       // events emitted during the call
	ToolRequest *core.ToolRequest  // outstanding request when Status is awaiting_tool_result
	Context     *core.AgentContext // deep copy of the context after the call
}

// Step feeds input to the agent and runs the step loop until the agent
// needs more input, awaits a tool result or terminates. Empty input means
// no input.
//
// Step on a terminal agent is a no-op returning the last output. Step while
// a tool result is outstanding is a no-op that ignores input.
//
// The error is fatal (see core.IsFatal) when the graph or the model broke
// the protocol. A fatal error halts the session: the failed step is rolled
// back and every later call returns core.ErrSessionHalted. Memory sink
// failures are reported as a degraded error (core.IsDegraded) next to a
// valid Reply.
func (a *Agent) Step(ctx context.Context, input string) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.beginCall()

	switch {
	case a.halted():
		return a.replyLocked(), a.haltedError()
	case a.lifecycle.Terminal():
		r := a.replyLocked()
		r.Output = a.ac.LastOutput
		return r, nil
	case a.lifecycle.Is(core.StatusAwaitingToolResult):
		a.logger.Debug("agent.step.ignored", "reason", "awaiting tool result", "step_state", a.current)
		return a.replyLocked(), nil
	case a.lifecycle.Is(core.StatusNotStarted):
		if err := a.lifecycle.Fire(eventStart); err != nil {
			return a.replyLocked(), err
		}
		a.emit(core.NewEvent(a.id, core.EventStateEntered, a.current))
	case a.lifecycle.Is(core.StatusAwaitingInput):
		if err := a.lifecycle.Fire(eventInput); err != nil {
			return a.replyLocked(), err
		}
	}

	if input != "" {
		a.ac.PendingInput, a.ac.HasPendingInput = input, true
	}

	a.logger.Debug("agent.step.start", "step_state", a.current, "has_input", input != "")

	return a.finish(ctx, a.run(ctx))
}

// ReceiveResult delivers the raw result of the outstanding tool call and
// resumes the step loop at the tool state. A JSON object carrying a string
// "error" field is treated as the error envelope {error, detail, tool_name}.
func (a *Agent) ReceiveResult(ctx context.Context, result any) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := ""
	if a.ac.ToolRequest != nil {
		name = a.ac.ToolRequest.Tool
	}

	return a.receiveLocked(ctx, tool.NormalizeResult(name, result))
}

// ReceiveEnvelope is ReceiveResult for an already normalized outcome.
func (a *Agent) ReceiveEnvelope(ctx context.Context, env tool.Envelope) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.receiveLocked(ctx, env)
}

func (a *Agent) receiveLocked(ctx context.Context, env tool.Envelope) (Reply, error) {
	a.beginCall()

	if a.halted() {
		return a.replyLocked(), a.haltedError()
	}

	if !a.lifecycle.Is(core.StatusAwaitingToolResult) || a.ac.ToolRequest == nil {
		return a.replyLocked(), fmt.Errorf("%w (status %s)", core.ErrNotAwaitingTool, a.lifecycle.Status())
	}

	if env.Tool == "" {
		env.Tool = a.ac.ToolRequest.Tool
	}
	if env.Err != nil && env.Err.Tool == "" {
		te := *env.Err
		te.Tool = env.Tool
		env.Err = &te
	}

	a.deliver(env)

	if err := a.lifecycle.Fire(eventResume); err != nil {
		return a.replyLocked(), err
	}

	a.logger.Debug("agent.tool.resumed", "step_state", a.current, "tool_name", env.Tool, "success", env.OK())

	return a.finish(ctx, a.run(ctx))
}

// run is the step loop.
func (a *Agent) run(ctx context.Context) error {
	limiter := core.NewStepLimiter(a.opts.MaxStepsPerCall)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.rollback, a.rollbackOutputs = a.ac.Clone(), len(a.outputs)
		a.stepIntent = ""

		st, err := a.graph.State(a.current)
		if err != nil {
			return &core.StateExecutionError{State: a.current, Err: err}
		}

		if err := limiter.Increment(); err != nil {
			return &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: err}
		}

		start := time.Now()
		res, err := st.Execute(ctx, a.rt, a.ac)
		a.logger.LogStep(st.Name(), string(st.Kind()), time.Since(start), err)

		if err != nil {
			a.memory.Discard()
			return &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: err}
		}

		switch res.Outcome {
		case state.OutcomeNeedInput:
			a.emit(core.NewEvent(a.id, core.EventAwaitingInput, st.Name()))
			return a.lifecycle.Fire(eventWaitInput)

		case state.OutcomeEndSession:
			a.memory.Discard()
			a.logger.Info("agent.session.ended", "step_state", st.Name(), "reason", "exit keyword")
			a.emit(core.NewEvent(a.id, core.EventTerminated, st.Name()))
			return a.lifecycle.Fire(eventFinish)

		case state.OutcomeAwaitTool:
			suspended, err := a.awaitTool(ctx, st, res)
			if err != nil || suspended {
				return err
			}

		case state.OutcomeAdvance:
			done, err := a.advance(ctx, st, res)
			if err != nil || done {
				return err
			}

		default:
			return &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: fmt.Errorf("unexpected outcome %s", res.Outcome)}
		}
	}
}

// awaitTool records the staged request and dispatches it. It reports true
// when the agent suspended waiting for an out-of-process result.
func (a *Agent) awaitTool(ctx context.Context, st state.State, res state.Result) (bool, error) {
	req := a.ac.ToolRequest
	if req == nil {
		return false, &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: errors.New("tool state staged no request")}
	}

	if _, open := a.memory.Current(); open {
		// already dispatched; keep waiting
		return true, a.lifecycle.Fire(eventSuspend)
	}

	if err := a.memory.Open(st.Name(), st.Kind(), a.stepIntent, res.Tool); err != nil {
		return false, &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: err}
	}
	if err := a.memory.UpdateScratchpad(res.Scratchpad); err != nil {
		return false, &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: err}
	}

	a.emit(core.NewToolRequestedEvent(a.id, st.Name(), *req))

	env, deferred := a.dispatch(ctx, *req)
	if deferred {
		a.logger.Info("agent.tool.suspended", "step_state", st.Name(), "tool_name", req.Tool, "call_id", req.CallID)
		return true, a.lifecycle.Fire(eventSuspend)
	}

	a.deliver(env)

	return false, nil
}

// advance commits the finished step and moves to the next state. It reports
// true when the loop must stop.
func (a *Agent) advance(ctx context.Context, st state.State, res state.Result) (bool, error) {
	if !st.CheckReady(a.ac) {
		a.memory.Discard()
		return true, &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: errors.New("state is not ready to transition")}
	}

	if st.Kind() != state.KindInput && res.Output != "" {
		a.outputs = append(a.outputs, res.Output)
		a.emit(core.NewOutputEvent(a.id, st.Name(), res.Output))
	}

	candidates, terminal, err := a.graph.ResolveNext(st.Name(), a.ac)
	if err != nil {
		a.memory.Discard()
		var tre *core.TransitionResolutionError
		if errors.As(err, &tre) {
			return true, err
		}
		return true, &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: err}
	}

	var (
		next   graph.Candidate
		chosen bool
	)
	if !terminal {
		next, chosen, err = a.chooseTransition(ctx, st.Name(), candidates)
		if err != nil {
			a.memory.Discard()
			return true, err
		}
	}

	intent := a.stepIntent
	if chosen {
		intent = next.Key
	}

	if err := a.commit(ctx, st, res, intent); err != nil {
		return true, err
	}

	if terminal {
		a.logger.Info("agent.session.terminated", "step_state", st.Name())
		a.emit(core.NewEvent(a.id, core.EventTerminated, st.Name()))
		return true, a.lifecycle.Fire(eventFinish)
	}

	if st.Kind() == state.KindTool {
		a.ac.ClearTool()
	}

	// only a key the model picked carries over into the next state
	a.ac.Intent = ""
	if chosen {
		a.ac.Intent = next.Key
	}

	a.logger.LogTransition(st.Name(), next.Target, candidateTargets(candidates))
	a.emit(core.NewTransitionEvent(a.id, st.Name(), next.Target))

	a.current = next.Target
	a.emit(core.NewEvent(a.id, core.EventStateEntered, a.current))

	return false, nil
}

// commit seals the memory entry of the finished step under intent. An entry
// opened at dispatch keeps its intent unless a new one was decided since. A
// sink failure is a warning; any other failure is fatal.
func (a *Agent) commit(ctx context.Context, st state.State, res state.Result, intent string) error {
	fail := func(err error) error {
		a.memory.Discard()
		return &core.StateExecutionError{State: st.Name(), Kind: string(st.Kind()), Err: err}
	}

	if _, open := a.memory.Current(); !open {
		if err := a.memory.Open(st.Name(), st.Kind(), intent, res.Tool); err != nil {
			return fail(err)
		}
	} else if intent != "" {
		if err := a.memory.SetIntent(intent); err != nil {
			return fail(err)
		}
	}

	if err := a.memory.UpdateScratchpad(res.Scratchpad); err != nil {
		return fail(err)
	}

	if _, err := a.memory.Commit(ctx); err != nil {
		var sinkErr *core.SinkWriteError
		if errors.As(err, &sinkErr) {
			a.warn(err)
			return nil
		}
		return fail(err)
	}

	return nil
}

// dispatch runs a staged request. It reports deferred=true when the tool
// runs out of process and the result will arrive through ReceiveResult.
func (a *Agent) dispatch(ctx context.Context, req core.ToolRequest) (tool.Envelope, bool) {
	if pf := a.preflight; pf != nil && pf.callID == req.CallID {
		return tool.Envelope{Tool: req.Tool, Err: pf.err}, false
	}

	t, err := a.resolveToolLocked(req.Tool)
	if err != nil {
		return tool.Failure(req.Tool, core.ToolRequestFailed, fmt.Sprintf("tool %q is not available to this agent", req.Tool)), false
	}

	if err := validateArguments(req.Arguments, t.Parameters()); err != nil {
		return tool.Failure(t.Name(), core.ToolRequestFailed, fmt.Sprintf("invalid arguments: %v", err)), false
	}

	exec, ok := t.(tool.Executor)
	if !ok {
		return tool.Envelope{}, true
	}

	call := tool.Call{
		ID:           req.CallID,
		Tool:         t.Name(),
		Arguments:    req.Arguments,
		SessionState: a.ac.Clone().Values,
	}

	start := time.Now()
	env := a.execute(ctx, exec, call)
	if env.Tool == "" {
		env.Tool = t.Name()
	}

	var callErr error
	if env.Err != nil {
		callErr = env.Err
	}
	a.logger.LogToolCall(t.Name(), time.Since(start), env.OK(), callErr)

	return env, false
}

// execute runs a synchronous tool bounded by the tool timeout. A tool that
// ignores its context is abandoned when the timeout fires.
func (a *Agent) execute(ctx context.Context, exec tool.Executor, call tool.Call) tool.Envelope {
	callCtx := ctx
	if a.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.ToolTimeout)
		defer cancel()
	}

	done := make(chan tool.Envelope, 1)
	go func() {
		done <- exec.Execute(callCtx, call)
	}()

	select {
	case env := <-done:
		return env
	case <-callCtx.Done():
		return tool.Failure(call.Tool, core.ToolRequestFailed, fmt.Sprintf("tool call did not finish: %v", callCtx.Err()))
	}
}

// deliver stores a tool outcome in the context and marks it ready.
func (a *Agent) deliver(env tool.Envelope) {
	a.preflight = nil

	if env.Err != nil {
		a.ac.ToolResult = nil
		a.ac.ToolError = env.Err
	} else {
		a.ac.ToolResult = env.Result
		a.ac.ToolError = nil
	}
	a.ac.ToolResultReady = true

	ev := core.NewEvent(a.id, core.EventToolResult, a.current)
	if a.ac.ToolRequest != nil {
		req := *a.ac.ToolRequest
		ev.ToolRequest = &req
	}
	if env.Err != nil {
		ev.Err = env.Err.Error()
	}
	a.emit(ev)
}

func (a *Agent) beginCall() {
	a.events = nil
	a.outputs = nil
	a.warnings = nil
	a.rollback = nil
}

func (a *Agent) halted() bool {
	return a.fatal != nil || a.lifecycle.Is(core.StatusFailed)
}

func (a *Agent) haltedError() error {
	if a.fatal == nil {
		return core.ErrSessionHalted
	}
	return fmt.Errorf("%w: %w", core.ErrSessionHalted, a.fatal)
}

// halt stops the session after a fatal error. The failed step leaves no
// trace: its open entry is dropped and the context is rolled back to where
// the step started.
func (a *Agent) halt(err error) {
	a.memory.Discard()
	if a.rollback != nil {
		a.ac = a.rollback
		a.outputs = a.outputs[:a.rollbackOutputs]
		a.rollback = nil
	}
	a.preflight = nil
	a.fatal = err

	if ferr := a.lifecycle.Fire(eventFail); ferr != nil {
		a.logger.Warn("agent.lifecycle.fail_rejected", "error", ferr.Error())
	}

	ev := core.NewEvent(a.id, core.EventFailed, a.current)
	ev.Err = err.Error()
	a.emit(ev)
}

func (a *Agent) emit(ev core.Event) {
	a.events = append(a.events, ev)
	if a.opts.Observer != nil {
		a.opts.Observer(ev)
	}
}

func (a *Agent) warn(err error) {
	a.warnings = append(a.warnings, err)
	a.logger.Warn("agent.memory.degraded", "step_state", a.current, "error", err.Error())

	ev := core.NewEvent(a.id, core.EventWarning, a.current)
	ev.Err = err.Error()
	a.emit(ev)
}

// finish persists the session when a store is configured and assembles the reply.
func (a *Agent) finish(ctx context.Context, runErr error) (Reply, error) {
	if runErr != nil {
		a.logger.WithState(a.current).Error("agent.step.error", "status", a.lifecycle.Status(), "error", runErr.Error())
		if core.IsFatal(runErr) {
			a.halt(runErr)
		}
	}

	if a.opts.Store != nil {
		if err := a.opts.Store.Save(ctx, a.snapshotLocked()); err != nil {
			a.logger.Warn("agent.session.save_failed", "error", err.Error())
			ev := core.NewEvent(a.id, core.EventWarning, a.current)
			ev.Err = err.Error()
			a.emit(ev)
		}
	}

	r := a.replyLocked()

	if runErr != nil {
		return r, runErr
	}

	return r, errors.Join(a.warnings...)
}

func (a *Agent) replyLocked() Reply {
	r := Reply{
		Outputs: append([]string(nil), a.outputs...),
		State:   a.current,
		Status:  a.lifecycle.Status(),
		Events:  append([]core.Event(nil), a.events...),
		Context: a.ac.Clone(),
	}
	if len(a.outputs) > 0 {
		r.Output = a.outputs[len(a.outputs)-1]
	}
	if r.Status == core.StatusAwaitingToolResult && a.ac.ToolRequest != nil {
		req := *r.Context.ToolRequest
		r.ToolRequest = &req
	}
	return r
}

func candidateTargets(cs []graph.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Target
	}
	return out
}
