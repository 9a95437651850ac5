package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/statemesh/core"
)

// InMemoryStore is a volatile SessionStore storing snapshots in a process
// local map. It is safe for concurrent access. Snapshots are cloned on the
// way in and out so callers never share state with the store.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]core.Snapshot
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[string]core.Snapshot)}
}

// Save stores a clone of snap, replacing any previous snapshot of the agent.
func (s *InMemoryStore) Save(ctx context.Context, snap core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.AgentID == "" {
		return fmt.Errorf("snapshot without agent id")
	}

	cp := snap.Clone()
	if cp.Updated.IsZero() {
		cp.Updated = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AgentID] = cp

	return nil
}

// Load returns a clone of the stored snapshot.
func (s *InMemoryStore) Load(ctx context.Context, agentID string) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[agentID]
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, agentID)
	}

	return snap.Clone(), nil
}

// Delete removes the snapshot. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, agentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, agentID)

	return nil
}

// List returns the stored agent ids in sorted order.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids, nil
}
