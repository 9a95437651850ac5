package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/model"
)

// ErrScriptExhausted is returned by ScriptedModel when no reply is queued.
var ErrScriptExhausted = errors.New("scripted model: no reply queued")

type scripted struct {
	text string
	data map[string]any
	err  error
}

// ScriptedModel replays queued replies in order and records every request.
// A call with nothing queued fails with ErrScriptExhausted, so tests can
// assert that a path issues no model call at all.
//
//	m := NewScriptedModel().Answer(map[string]any{"next_state": "compute"}).Text("done")
type ScriptedModel struct {
	mu       sync.Mutex
	queue    []scripted
	requests []model.Request
}

// NewScriptedModel creates an empty script.
func NewScriptedModel() *ScriptedModel { return &ScriptedModel{} }

// Text queues a free text reply (chainable).
func (m *ScriptedModel) Text(text string) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{text: text})
	return m
}

// Answer queues a structured reply, as returned for constrained requests (chainable).
func (m *ScriptedModel) Answer(data map[string]any) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{data: data})
	return m
}

// Fail queues an error (chainable).
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{err: err})
	return m
}

// Requests returns the recorded requests.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Request(nil), m.requests...)
}

// Calls returns the number of recorded requests.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Pending returns the number of queued replies not yet consumed.
func (m *ScriptedModel) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(_ context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)

	var next scripted
	if len(m.queue) == 0 {
		next = scripted{err: ErrScriptExhausted}
	} else {
		next, m.queue = m.queue[0], m.queue[1:]
	}
	m.mu.Unlock()

	switch {
	case next.err != nil:
		errCh <- next.err
	case next.data != nil:
		out <- model.Response{Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.DataPart{Data: next.data}}}, FinishReason: "stop"}
	default:
		out <- model.Response{Content: core.NewTextContent(core.RoleAssistant, next.text), FinishReason: "stop"}
	}

	close(out)
	close(errCh)

	return out, errCh
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info { return model.Info{Name: "scripted", Provider: "test"} }
