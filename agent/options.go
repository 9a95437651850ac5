package agent

import (
	"io"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/tool"
)

// DefaultExitKeywords end a session when entered at an input state.
var DefaultExitKeywords = []string{"exit", "quit", "bye", "q"}

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	Instruction Instruction       // system prompt for every model call
	Tools       []tool.Tool       // bound at construction
	Registry    *tool.Registry    // resolves tools not bound explicitly
	Sink        core.MemorySink   // durable transcript; nil keeps it in process
	Store       core.SessionStore // receives a snapshot whenever the agent yields
	Logger      *logging.StateMeshLogger
	Observer    core.Observer

	ExitKeywords       []string
	MaxStepsPerCall    int           // loop iterations per Step or ReceiveResult call, 0 = unlimited
	ModelTimeout       time.Duration // per model call
	ToolTimeout        time.Duration // per synchronous tool call
	MaxHistoryMessages int           // history sent to the model, 0 = all
}

func defaultOptions(id string) Options {
	return Options{
		Instruction:        NewInstructionFromText("You are " + id + ", a helpful assistant guiding the user through a conversation."),
		ExitKeywords:       DefaultExitKeywords,
		MaxStepsPerCall:    32,
		ModelTimeout:       60 * time.Second,
		ToolTimeout:        30 * time.Second,
		MaxHistoryMessages: 20,
	}
}

func discardLogger() *logging.StateMeshLogger {
	return logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelError, Output: io.Discard})
}
