package statemesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/internal/testutil"
	"github.com/hupe1980/statemesh/memory"
	"github.com/hupe1980/statemesh/session"
	"github.com/hupe1980/statemesh/tool"
)

func multiplyParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
}

func TestNew_RequiresGraphAndModel(t *testing.T) {
	g, err := graph.Load([]byte(testutil.GreeterGraph), "greeter")
	require.NoError(t, err)

	_, err = New(nil, testutil.NewScriptedModel())
	assert.Error(t, err)

	_, err = New(g, nil)
	assert.Error(t, err)
}

func TestRuntime_SessionsAreIsolated(t *testing.T) {
	g, err := graph.Load([]byte(testutil.GreeterGraph), "greeter")
	require.NoError(t, err)

	rt, err := New(g, testutil.NewScriptedModel())
	require.NoError(t, err)

	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		reply, err := rt.Step(ctx, id, "")
		require.NoError(t, err)
		assert.Equal(t, "Hello! What is your name?", reply.Output)
	}

	r1, err := rt.Step(ctx, "s1", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you, Ada.", r1.Output)
	assert.Equal(t, core.StatusTerminal, r1.Status)

	r2, err := rt.Step(ctx, "s2", "Grace")
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you, Grace.", r2.Output)

	assert.Equal(t, []string{"s1", "s2"}, rt.Sessions())

	snap, err := rt.Snapshot("s1")
	require.NoError(t, err)
	assert.Len(t, snap.Memory, 3)
	assert.Equal(t, "reply", snap.CurrentState)

	_, err = rt.Snapshot("unknown")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRuntime_GeneratedSessionID(t *testing.T) {
	g, err := graph.Load([]byte(testutil.GreeterGraph), "greeter")
	require.NoError(t, err)

	rt, err := New(g, testutil.NewScriptedModel())
	require.NoError(t, err)

	a, err := rt.Open(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())
	assert.Equal(t, []string{a.ID()}, rt.Sessions())
}

func TestRuntime_ResumeAfterClose(t *testing.T) {
	g, err := graph.Load([]byte(testutil.MultiplyGraph), "multiply")
	require.NoError(t, err)

	store := session.NewInMemoryStore()
	sink := memory.NewInMemorySink()
	llm := testutil.NewScriptedModel().
		Answer(map[string]any{"a": 3, "b": 4}).
		Text("3 times 4 is 12.")

	rt, err := New(g, llm, func(o *Options) {
		o.SessionStore = store
		o.Sink = sink
		o.Tools = []tool.Tool{tool.NewDeferredTool("multiply", "Multiply two numbers", multiplyParams())}
	})
	require.NoError(t, err)

	ctx := context.Background()

	reply, err := rt.Step(ctx, "calc", "multiply 3 and 4")
	require.NoError(t, err)
	require.NotNil(t, reply.ToolRequest)
	assert.Equal(t, core.StatusAwaitingToolResult, reply.Status)

	require.NoError(t, rt.Close(ctx, "calc"))
	assert.Empty(t, rt.Sessions())

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"calc"}, ids)

	reply, err = rt.ReceiveResult(ctx, "calc", map[string]any{"result": 12})
	require.NoError(t, err)
	assert.Equal(t, "3 times 4 is 12.", reply.Output)
	assert.Equal(t, "ask", reply.State)

	rows, err := sink.List(ctx, "calc")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "compute", rows[1].State)

	require.NoError(t, rt.Delete(ctx, "calc"))
	_, err = store.Load(ctx, "calc")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	assert.ErrorIs(t, rt.Close(ctx, "calc"), core.ErrSessionNotFound)
}
