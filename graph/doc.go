// Package graph loads declarative state graphs and resolves transitions.
//
// A graph is parsed once from YAML (or JSON) into immutable state.State
// values and validated completely at load time: a dangling transition
// target, an unknown state type or a missing initial state is reported as a
// *core.GraphLoadError and never surfaces during traversal. A loaded Graph
// holds no per-session data and can be shared by any number of agents.
//
// ResolveNext returns the ordered candidate transitions of a state. Choosing
// among several candidates is the agent's job; the graph only filters them
// through optional jq guards:
//
//	states:
//	  compute:
//	    type: tool
//	    tool: multiply
//	    transition:
//	      retry:
//	        target: compute
//	        when: '.tool_error != null'
//	      done: ask
package graph
