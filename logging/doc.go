// Package logging provides a minimal logging interface and adapters for statemesh.
//
// Every component takes a Logger through its options and falls back to
// NoOpLogger when none is given. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping any *slog.Logger
//   - StateMeshLogger with session scoping and domain helpers for steps,
//     transitions, model calls and tool calls
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	a, err := agent.New("session-1", g, llm, func(o *agent.Options) { o.Logger = logger })
package logging
