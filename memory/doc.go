// Package memory implements the interaction transcript of an agent.
//
// A Memory is an ordered stack of sealed entries, one per completed step,
// plus at most one open entry whose scratchpad may still be merged into.
// Commit seals the open entry, appends it locally and mirrors it to a
// core.MemorySink. A sink failure is returned as *core.SinkWriteError; the
// local transcript keeps the entry either way.
//
// Scratchpad keys are bounded per state kind and checked at commit time:
//
//	input       input
//	generative  response, template
//	tool        tool_input, tool_result, tool_error, tool_call_id, response
//
// Sinks live in this package (InMemorySink) and in the sqlite and redis
// subpackages.
package memory
