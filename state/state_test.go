package state

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/statemesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	reply      string
	genErr     error
	req        *core.ToolRequest
	reqErr     error
	requests   int
	synthCalls int
}

func (f *fakeRuntime) Generate(context.Context, Definition, *core.AgentContext) (string, error) {
	return f.reply, f.genErr
}

func (f *fakeRuntime) RequestTool(context.Context, Definition, *core.AgentContext) (*core.ToolRequest, error) {
	f.requests++
	return f.req, f.reqErr
}

func (f *fakeRuntime) Synthesize(_ context.Context, req core.ToolRequest, ac *core.AgentContext) string {
	f.synthCalls++
	if ac.ToolError != nil {
		return "the tool failed: " + ac.ToolError.Detail
	}
	return "result: " + strings.TrimSpace(req.Tool)
}

func (f *fakeRuntime) IsExit(in string) bool { return in == "exit" }

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"input", KindInput},
		{"user", KindInput},
		{"Generative", KindGenerative},
		{"ai", KindGenerative},
		{"tool", KindTool},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseKind("webhook")
	assert.Error(t, err)
}

func TestNew_ExhaustiveVariants(t *testing.T) {
	in, err := New(Definition{Name: "ask", Kind: KindInput, Transitions: []Transition{{Key: "next", Target: "x"}}})
	require.NoError(t, err)
	assert.IsType(t, &Input{}, in)
	assert.False(t, in.Terminal())

	gen, err := New(Definition{Name: "bye", Kind: KindGenerative})
	require.NoError(t, err)
	assert.IsType(t, &Generative{}, gen)
	assert.True(t, gen.Terminal(), "a state without transitions is terminal")

	tl, err := New(Definition{Name: "compute", Kind: KindTool, Tool: "multiply"})
	require.NoError(t, err)
	assert.IsType(t, &Tool{}, tl)

	_, err = New(Definition{Name: "x", Kind: Kind("webhook")})
	assert.Error(t, err)
	_, err = New(Definition{Kind: KindInput})
	assert.Error(t, err)
}

func TestInput_Execute(t *testing.T) {
	s, _ := New(Definition{Name: "ask", Kind: KindInput})
	rt := &fakeRuntime{}
	ac := core.NewAgentContext()

	res, err := s.Execute(context.Background(), rt, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedInput, res.Outcome)

	ac.PendingInput, ac.HasPendingInput = "multiply 3 and 4", true
	res, err = s.Execute(context.Background(), rt, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvance, res.Outcome)
	assert.Equal(t, map[string]any{"input": "multiply 3 and 4"}, res.Scratchpad)
	assert.Equal(t, "multiply 3 and 4", ac.LastUserMessage())
	assert.True(t, s.CheckReady(ac))

	ac.PendingInput, ac.HasPendingInput = "exit", true
	res, err = s.Execute(context.Background(), rt, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEndSession, res.Outcome)
	assert.Nil(t, res.Scratchpad)
	assert.Len(t, ac.Messages, 1, "exit keyword is not recorded")
}

func TestGenerative_Execute(t *testing.T) {
	t.Run("model reply", func(t *testing.T) {
		s, _ := New(Definition{Name: "chat", Kind: KindGenerative})
		ac := core.NewAgentContext()
		res, err := s.Execute(context.Background(), &fakeRuntime{reply: "hello"}, ac)
		require.NoError(t, err)
		assert.Equal(t, "hello", res.Output)
		assert.True(t, s.CheckReady(ac))
		assert.Equal(t, core.RoleAssistant, ac.Messages[0].Role)
	})

	t.Run("canned template", func(t *testing.T) {
		s, _ := New(Definition{Name: "bye", Kind: KindGenerative, Response: "Goodbye, you said {{.last_user_message}}"})
		ac := core.NewAgentContext()
		ac.AddMessage(core.Message{Role: core.RoleUser, Content: "thanks"})
		rt := &fakeRuntime{genErr: errors.New("model must not be called")}
		res, err := s.Execute(context.Background(), rt, ac)
		require.NoError(t, err)
		assert.Equal(t, "Goodbye, you said thanks", res.Output)
		assert.Contains(t, res.Scratchpad, "template")
	})

	t.Run("model failure", func(t *testing.T) {
		s, _ := New(Definition{Name: "chat", Kind: KindGenerative})
		_, err := s.Execute(context.Background(), &fakeRuntime{genErr: errors.New("down")}, core.NewAgentContext())
		assert.Error(t, err)
	})
}

func TestTool_SuspendAndSynthesize(t *testing.T) {
	s, _ := New(Definition{Name: "compute", Kind: KindTool, Tool: "multiply", ToolInputs: []string{"a", "b"}})
	rt := &fakeRuntime{req: &core.ToolRequest{CallID: "c1", Tool: "multiply", Arguments: map[string]any{"a": 3.0, "b": 4.0}}}
	ac := core.NewAgentContext()

	res, err := s.Execute(context.Background(), rt, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitTool, res.Outcome)
	assert.Equal(t, "multiply", res.Tool)
	assert.False(t, s.CheckReady(ac))
	require.NotNil(t, ac.ToolRequest)

	// executing again while the result is outstanding stages nothing new
	res, err = s.Execute(context.Background(), rt, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitTool, res.Outcome)
	assert.Equal(t, 1, rt.requests)

	ac.ToolResult = map[string]any{"result": 12}
	ac.ToolResultReady = true
	res, err = s.Execute(context.Background(), rt, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvance, res.Outcome)
	assert.Equal(t, "result: multiply", res.Output)
	assert.Equal(t, map[string]any{"result": 12}, res.Scratchpad["tool_result"])
	assert.True(t, s.CheckReady(ac))
}

func TestTool_ErrorIsNarrated(t *testing.T) {
	s, _ := New(Definition{Name: "compute", Kind: KindTool, Tool: "multiply"})
	ac := core.NewAgentContext()
	ac.ToolRequest = &core.ToolRequest{CallID: "c1", Tool: "multiply"}
	ac.ToolError = core.NewToolCallError("multiply", core.ToolRequestFailed, "connection refused")
	ac.ToolResultReady = true

	res, err := s.Execute(context.Background(), &fakeRuntime{}, ac)
	require.NoError(t, err)
	assert.Equal(t, "the tool failed: connection refused", res.Output)
	assert.Contains(t, res.Scratchpad, "tool_error")
	assert.NotContains(t, res.Scratchpad, "tool_result")
}

func TestTool_NoToolNeeded(t *testing.T) {
	s, _ := New(Definition{Name: "maybe", Kind: KindTool})
	ac := core.NewAgentContext()
	res, err := s.Execute(context.Background(), &fakeRuntime{reply: "no tool required"}, ac)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvance, res.Outcome)
	assert.True(t, s.CheckReady(ac))
	assert.Nil(t, ac.ToolRequest)
}
