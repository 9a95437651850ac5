// Package core provides the shared vocabulary used by every other statemesh
// package:
//
//   - Content / Part messages exchanged with language models
//   - AgentContext, the per-session working memory a state graph runs against
//   - The error taxonomy (graph load, transition resolution, tool call, state
//     execution, degraded sink writes)
//   - Event signals emitted while an agent steps through its graph
//   - Snapshot / SessionStore and MemoryRow / MemorySink persistence contracts
//
// Concrete persistence, model providers and the orchestration loop live in
// their own packages and depend on core, never the other way around.
package core
