package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
	"github.com/hupe1980/statemesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Model = (*Model)(nil)

const toolUseMessage = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-20241022",
  "content": [{"type": "tool_use", "id": "tu_1", "name": "transition_choice", "input": {"choice": "compute"}}],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 3}
}`

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
}

func TestModel_ConstraintForcesTool(t *testing.T) {
	var body map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolUseMessage)
	})

	resp, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "Pick the next state.",
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "multiply 3 and 4")},
		Constraint: &model.Constraint{
			Name:        "transition_choice",
			Description: "Choose a state",
			Schema:      util.EnumSchema("choice", []string{"ask", "compute"}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 13, resp.Usage.TotalTokens)

	var answer struct {
		Choice string `json:"choice"`
	}
	require.NoError(t, model.DecodeAnswer(resp, &answer))
	assert.Equal(t, "compute", answer.Choice)

	choice := body["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "transition_choice", choice["name"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "Choose a state", tool["description"])
	schema := tool["input_schema"].(map[string]any)
	assert.Equal(t, []any{"choice"}, schema["required"])

	system := body["system"].([]any)
	assert.Equal(t, "Pick the next state.", system[0].(map[string]any)["text"])
}

func TestModel_PlainText(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"The product is 12."}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":4,"output_tokens":6}}`)
	})

	resp, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "narrate")},
	})
	require.NoError(t, err)
	assert.Equal(t, "The product is 12.", resp.Content.Text())
	assert.Equal(t, "end_turn", resp.FinishReason)
}
