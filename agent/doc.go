// Package agent drives one conversation through a state graph.
//
// An Agent owns an AgentContext and a memory transcript and advances a
// current-state pointer over a shared, read-only graph.Graph. Each call to
// Step or ReceiveResult runs the step loop:
//
//  1. execute the current state
//  2. check whether the state may be left
//  3. resolve the next state (asking the model only when several candidates remain)
//  4. commit a memory entry and move on
//
// The loop stops when an input state finds no input, when a tool result is
// outstanding, or when a terminal state is reached.
//
// Tool states follow a two-phase protocol. The decide and fill phases stage a
// core.ToolRequest; tools implementing tool.Executor run immediately while
// any other tool suspends the agent until ReceiveResult delivers the result.
// The synthesis phase then narrates the result, or the normalized error, in
// a model call that never sees tool definitions.
//
// The lifecycle (not_started, running, awaiting_input, awaiting_tool_result,
// terminal, failed) is a statekit statechart. A fatal error moves the agent
// to failed and rolls back the step that caused it; the session stays
// halted from then on. An agent is not safe for concurrent
// Step calls from several goroutines without external ordering; its methods
// serialize on an internal mutex.
package agent
