package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var _ core.MemorySink = (*InMemorySink)(nil)

type failingSink struct{}

func (failingSink) Append(context.Context, core.MemoryRow) error { return errors.New("disk full") }
func (failingSink) List(context.Context, string) ([]core.MemoryRow, error) {
	return nil, nil
}

func TestMemory_OpenUpdateCommit(t *testing.T) {
	sink := NewInMemorySink()
	m := New("agent-1", sink)

	require.NoError(t, m.Open("compute", state.KindTool, "multiply", "multiply"))
	require.ErrorIs(t, m.Open("compute", state.KindTool, "", ""), ErrEntryOpen)

	require.NoError(t, m.UpdateScratchpad(map[string]any{"tool_input": map[string]any{"a": 3, "b": 4}}))
	require.NoError(t, m.UpdateScratchpad(map[string]any{"tool_result": map[string]any{"result": 12}, "response": "12"}))

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Len(t, cur.Scratchpad, 3)
	assert.Equal(t, 0, m.Len(), "open entries are not part of the transcript")

	e, err := m.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.Seq)
	assert.Equal(t, "multiply", e.Tool)
	assert.False(t, e.CreatedAt.IsZero())

	_, ok = m.Current()
	assert.False(t, ok)

	rows, err := sink.List(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "compute", rows[0].State)
	assert.Equal(t, "tool", rows[0].Kind)
	assert.Equal(t, "agent-1", rows[0].AgentID)
}

func TestMemory_AppendOnlyOrder(t *testing.T) {
	m := New("a", NewInMemorySink())
	ctx := context.Background()

	names := []string{"ask", "reply", "ask", "reply"}
	for i, n := range names {
		kind := state.KindInput
		key := "input"
		if i%2 == 1 {
			kind, key = state.KindGenerative, "response"
		}
		_, err := m.Push(ctx, Entry{State: n, Kind: kind, Scratchpad: map[string]any{key: n}})
		require.NoError(t, err)
	}

	entries := m.Entries()
	require.Len(t, entries, len(names))
	for i, e := range entries {
		assert.Equal(t, names[i], e.State)
		assert.Equal(t, i+1, e.Seq)
	}

	// returned copies do not alias the transcript
	entries[0].State = "mutated"
	entries[0].Scratchpad["input"] = "mutated"
	first := m.Entries()[0]
	assert.Equal(t, "ask", first.State)
	assert.Equal(t, "ask", first.Scratchpad["input"])
}

func TestMemory_ScratchpadKeysValidatedAtCommit(t *testing.T) {
	m := New("a", nil)
	require.NoError(t, m.Open("ask", state.KindInput, "", ""))
	require.NoError(t, m.UpdateScratchpad(map[string]any{"response": "nope"}))

	_, err := m.Commit(context.Background())
	require.ErrorIs(t, err, ErrInvalidScratchpad)
	assert.Equal(t, 0, m.Len())

	_, stillOpen := m.Current()
	assert.True(t, stillOpen)

	_, err = m.Push(context.Background(), Entry{State: "x", Kind: state.KindGenerative, Scratchpad: map[string]any{"input": 1}})
	assert.ErrorIs(t, err, ErrEntryOpen)

	m.Discard()
	_, err = m.Push(context.Background(), Entry{State: "x", Kind: state.KindGenerative, Scratchpad: map[string]any{"input": 1}})
	assert.ErrorIs(t, err, ErrInvalidScratchpad)
	_, open := m.Current()
	assert.False(t, open, "a rejected push leaves no open entry behind")
}

func TestMemory_SinkFailureIsDegraded(t *testing.T) {
	m := New("a", failingSink{})
	e, err := m.Push(context.Background(), Entry{State: "ask", Kind: state.KindInput, Scratchpad: map[string]any{"input": "hi"}})
	require.Error(t, err)

	var sinkErr *core.SinkWriteError
	require.ErrorAs(t, err, &sinkErr)
	assert.True(t, core.IsDegraded(err))
	assert.Equal(t, "ask", e.State)
	assert.Equal(t, 1, m.Len(), "local transcript keeps the entry")
}

func TestMemory_PeekPop(t *testing.T) {
	m := New("a", nil)
	_, ok := m.Peek()
	assert.False(t, ok)
	_, ok = m.Pop()
	assert.False(t, ok)

	_, _ = m.Push(context.Background(), Entry{State: "one", Kind: state.KindInput})
	_, _ = m.Push(context.Background(), Entry{State: "two", Kind: state.KindInput})

	top, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, "two", top.State)
	assert.Equal(t, 2, m.Len())

	popped, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "two", popped.State)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_UpdateWithoutOpenEntry(t *testing.T) {
	m := New("a", nil)
	assert.ErrorIs(t, m.UpdateScratchpad(map[string]any{"input": 1}), ErrNoOpenEntry)
	assert.ErrorIs(t, m.SetIntent("x"), ErrNoOpenEntry)
	_, err := m.Commit(context.Background())
	assert.ErrorIs(t, err, ErrNoOpenEntry)
}

func TestMemory_SetIntent(t *testing.T) {
	m := New("a", nil)
	require.NoError(t, m.Open("compute", state.KindTool, "", "multiply"))
	require.NoError(t, m.SetIntent("done"))

	e, err := m.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", e.Intent)
	assert.Equal(t, "multiply", e.Tool)
}

func TestMemory_RowsAndRestore(t *testing.T) {
	m := New("a", nil)
	_, _ = m.Push(context.Background(), Entry{State: "ask", Kind: state.KindInput, Scratchpad: map[string]any{"input": "multiply 3 and 4"}})
	require.NoError(t, m.Open("compute", state.KindTool, "", "multiply"))
	require.NoError(t, m.UpdateScratchpad(map[string]any{"tool_call_id": "c1"}))

	rows, pending := m.Rows()
	require.Len(t, rows, 1)
	require.NotNil(t, pending)
	assert.Equal(t, "compute", pending.State)

	restored := New("a", nil)
	restored.Restore(rows, pending)
	assert.Equal(t, 1, restored.Len())

	cur, ok := restored.Current()
	require.True(t, ok)
	assert.Equal(t, "c1", cur.Scratchpad["tool_call_id"])

	require.NoError(t, restored.UpdateScratchpad(map[string]any{"response": "12"}))
	e, err := restored.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, e.Seq)
}

func TestAllowedKeys(t *testing.T) {
	assert.Equal(t, []string{"input"}, AllowedKeys(state.KindInput))
	assert.Contains(t, AllowedKeys(state.KindTool), "tool_error")
}

func TestInMemorySink_Isolation(t *testing.T) {
	sink := NewInMemorySink()
	ctx := context.Background()
	row := core.MemoryRow{AgentID: "a", Seq: 1, State: "ask", Scratchpad: map[string]any{"input": "hi"}}
	require.NoError(t, sink.Append(ctx, row))
	require.NoError(t, sink.Append(ctx, core.MemoryRow{AgentID: "b", Seq: 1, State: "ask"}))

	row.Scratchpad["input"] = "changed"
	rows, _ := sink.List(ctx, "a")
	assert.Equal(t, "hi", rows[0].Scratchpad["input"])
	assert.Equal(t, []string{"a", "b"}, sink.Agents())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, sink.Append(cancelled, row))
}
