package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/statemesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.SessionStore = (*Store)(nil)

func TestStore_RoundTrip(t *testing.T) {
	s, err := Open(WithInMemory())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	ac := core.NewAgentContext()
	ac.AddMessage(core.Message{Role: core.RoleUser, Content: "multiply 3 and 4"})
	ac.ToolRequest = &core.ToolRequest{CallID: "c1", Tool: "multiply", Arguments: map[string]any{"a": 3.0, "b": 4.0}}

	require.NoError(t, s.Save(ctx, core.Snapshot{
		AgentID:      "a1",
		CurrentState: "compute",
		Status:       core.StatusAwaitingToolResult,
		Context:      ac,
		Memory:       []core.MemoryRow{{AgentID: "a1", Seq: 1, State: "ask", Kind: "input"}},
		Pending:      &core.MemoryRow{AgentID: "a1", State: "compute", Kind: "tool"},
	}))

	got, err := s.Load(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "compute", got.CurrentState)
	assert.Equal(t, core.StatusAwaitingToolResult, got.Status)
	require.NotNil(t, got.Context.ToolRequest)
	assert.Equal(t, "multiply", got.Context.ToolRequest.Tool)
	assert.Equal(t, "multiply 3 and 4", got.Context.LastUserMessage())
	require.NotNil(t, got.Pending)
	assert.False(t, got.Updated.IsZero())
}

func TestStore_ListDeleteNotFound(t *testing.T) {
	s, err := Open(WithInMemory(), WithKeyPrefix("t:"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.Save(ctx, core.Snapshot{AgentID: id, Context: core.NewAgentContext()}))
	}

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, s.Delete(ctx, "b"))
	_, err = s.Load(ctx, "b")
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))

	assert.Error(t, s.Save(ctx, core.Snapshot{}))
}

func TestStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(WithDir(dir))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, core.Snapshot{AgentID: "persisted", CurrentState: "ask", Context: core.NewAgentContext()}))
	require.NoError(t, s.Close())

	s, err = Open(WithDir(dir))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "ask", got.CurrentState)
}
