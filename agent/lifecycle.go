package agent

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
)

const lifecycleMachineID = "agent_lifecycle"

// Lifecycle states, named after the statuses carried in a core.Snapshot.
const (
	lifecycleNotStarted   statekit.StateID = statekit.StateID(core.StatusNotStarted)
	lifecycleRunning      statekit.StateID = statekit.StateID(core.StatusRunning)
	lifecycleAwaitInput   statekit.StateID = statekit.StateID(core.StatusAwaitingInput)
	lifecycleAwaitTool    statekit.StateID = statekit.StateID(core.StatusAwaitingToolResult)
	lifecycleTerminalDone statekit.StateID = statekit.StateID(core.StatusTerminal)
	lifecycleFailed       statekit.StateID = statekit.StateID(core.StatusFailed)
)

// Lifecycle events.
const (
	eventStart     statekit.EventType = "START"
	eventWaitInput statekit.EventType = "WAIT_INPUT"
	eventInput     statekit.EventType = "INPUT"
	eventSuspend   statekit.EventType = "SUSPEND"
	eventResume    statekit.EventType = "RESUME"
	eventFinish    statekit.EventType = "FINISH"
	eventFail      statekit.EventType = "FAIL"
)

// lifecycleContext is the statechart context.
type lifecycleContext struct {
	AgentID string
	Logger  *logging.StateMeshLogger
	Last    statekit.EventType
	Changed time.Time
}

func recordLifecycleEvent(ctx **lifecycleContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx
	c.Last = event.Type
	c.Changed = time.Now().UTC()

	if c.Logger != nil {
		c.Logger.Debug("agent.lifecycle.event", "agent_id", c.AgentID, "event", string(event.Type))
	}
}

func newLifecycleMachine() (*statekit.MachineConfig[*lifecycleContext], error) {
	return statekit.NewMachine[*lifecycleContext](lifecycleMachineID).
		WithInitial(lifecycleNotStarted).
		WithContext(&lifecycleContext{}).
		WithAction("record", recordLifecycleEvent).
		State(lifecycleNotStarted).
			On(eventStart).Target(lifecycleRunning).Do("record").
			On(eventFinish).Target(lifecycleTerminalDone).Do("record").
			Done().
		State(lifecycleRunning).
			On(eventWaitInput).Target(lifecycleAwaitInput).Do("record").
			On(eventSuspend).Target(lifecycleAwaitTool).Do("record").
			On(eventFinish).Target(lifecycleTerminalDone).Do("record").
			On(eventFail).Target(lifecycleFailed).Do("record").
			Done().
		State(lifecycleAwaitInput).
			On(eventInput).Target(lifecycleRunning).Do("record").
			On(eventFinish).Target(lifecycleTerminalDone).Do("record").
			Done().
		State(lifecycleAwaitTool).
			On(eventResume).Target(lifecycleRunning).Do("record").
			Done().
		State(lifecycleTerminalDone).
			Final().
			Done().
		// failed accepts no events; the session stays halted
		State(lifecycleFailed).
			Done().
		Build()
}

// lifecycle wraps the statekit interpreter.
type lifecycle struct {
	interp *statekit.Interpreter[*lifecycleContext]
	ctx    *lifecycleContext
}

func newLifecycle(agentID string, logger *logging.StateMeshLogger) (*lifecycle, error) {
	machine, err := newLifecycleMachine()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle machine: %w", err)
	}

	lc := &lifecycleContext{AgentID: agentID, Logger: logger}

	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **lifecycleContext) {
		*c = lc
	})
	interp.Start()

	return &lifecycle{interp: interp, ctx: lc}, nil
}

// Status returns the current lifecycle status.
func (l *lifecycle) Status() string {
	return string(l.interp.State().Value)
}

// Is reports whether the lifecycle is in status.
func (l *lifecycle) Is(status string) bool {
	return l.interp.Matches(statekit.StateID(status))
}

// Terminal reports whether the final state was reached.
func (l *lifecycle) Terminal() bool {
	return l.interp.Done()
}

// Fire sends event, failing when the current status does not accept it.
// Every transition of the machine changes the status, so an unchanged
// status means the interpreter found no transition for the event.
func (l *lifecycle) Fire(event statekit.EventType) error {
	from := l.interp.State().Value

	l.interp.Send(statekit.Event{Type: event})

	if l.interp.State().Value == from {
		return fmt.Errorf("lifecycle event %s not allowed in status %s", event, from)
	}

	return nil
}

// Restore jumps to status, used when rebuilding an agent from a snapshot.
func (l *lifecycle) Restore(status string) error {
	if status == "" {
		status = core.StatusNotStarted
	}

	id := statekit.StateID(status)
	if l.interp.State().Value == id {
		return nil
	}

	snapshot := statekit.Snapshot[*lifecycleContext]{
		MachineID:    lifecycleMachineID,
		CurrentState: id,
		Context:      l.ctx,
		CreatedAt:    time.Now(),
	}

	if err := l.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("restore lifecycle: %w", err)
	}

	return nil
}
