// Package session houses concrete implementations of core.SessionStore, the
// persistence contract for agent snapshots. The interface lives in core so
// the agent and runtime never depend on a concrete backend.
//
// InMemoryStore is volatile and meant for tests and single process use. The
// badger subpackage persists snapshots on disk. Add further backends in
// subpackages; only the wiring layer picks one.
package session
