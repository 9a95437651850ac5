package agent

import (
	"testing"

	"github.com/felixgeelhaar/statekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
)

func TestLifecycle_HappyPath(t *testing.T) {
	l, err := newLifecycle("a1", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotStarted, l.Status())

	steps := []struct {
		event statekit.EventType
		want  string
	}{
		{eventStart, core.StatusRunning},
		{eventSuspend, core.StatusAwaitingToolResult},
		{eventResume, core.StatusRunning},
		{eventWaitInput, core.StatusAwaitingInput},
		{eventInput, core.StatusRunning},
		{eventFinish, core.StatusTerminal},
	}

	for _, s := range steps {
		require.NoError(t, l.Fire(s.event), "event %s", s.event)
		assert.Equal(t, s.want, l.Status())
	}

	assert.True(t, l.Terminal())
	assert.Equal(t, eventFinish, l.ctx.Last)
}

func TestLifecycle_RejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name  string
		setup []statekit.EventType
		event statekit.EventType
	}{
		{"input before start", nil, eventInput},
		{"resume while running", []statekit.EventType{eventStart}, eventResume},
		{"finish while awaiting tool", []statekit.EventType{eventStart, eventSuspend}, eventFinish},
		{"input while awaiting tool", []statekit.EventType{eventStart, eventSuspend}, eventInput},
		{"anything after finish", []statekit.EventType{eventFinish}, eventStart},
		{"fail while awaiting input", []statekit.EventType{eventStart, eventWaitInput}, eventFail},
		{"input after failure", []statekit.EventType{eventStart, eventFail}, eventInput},
		{"resume after failure", []statekit.EventType{eventStart, eventFail}, eventResume},
		{"unknown event", []statekit.EventType{eventStart}, statekit.EventType("PAUSE")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := newLifecycle("a1", discardLogger())
			require.NoError(t, err)

			for _, e := range tt.setup {
				require.NoError(t, l.Fire(e))
			}
			before := l.Status()

			assert.Error(t, l.Fire(tt.event))
			assert.Equal(t, before, l.Status())
		})
	}
}

func TestLifecycle_Fail(t *testing.T) {
	l, err := newLifecycle("a1", discardLogger())
	require.NoError(t, err)

	require.NoError(t, l.Fire(eventStart))
	require.NoError(t, l.Fire(eventFail))
	assert.Equal(t, core.StatusFailed, l.Status())
	assert.False(t, l.Terminal(), "a failed session is halted, not finished")
	assert.Equal(t, eventFail, l.ctx.Last)

	restored, err := newLifecycle("a2", discardLogger())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(core.StatusFailed))
	assert.True(t, restored.Is(core.StatusFailed))
	assert.Error(t, restored.Fire(eventStart))
}

func TestLifecycle_Restore(t *testing.T) {
	l, err := newLifecycle("a1", discardLogger())
	require.NoError(t, err)

	require.NoError(t, l.Restore(core.StatusAwaitingToolResult))
	assert.True(t, l.Is(core.StatusAwaitingToolResult))
	require.NoError(t, l.Fire(eventResume))
	assert.Equal(t, core.StatusRunning, l.Status())

	fresh, err := newLifecycle("a2", discardLogger())
	require.NoError(t, err)
	require.NoError(t, fresh.Restore(""))
	assert.Equal(t, core.StatusNotStarted, fresh.Status())

	assert.Error(t, fresh.Restore("paused"))
}
