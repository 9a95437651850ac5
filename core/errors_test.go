package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	sinkErr := &SinkWriteError{AgentID: "a1", State: "ask", Err: errors.New("disk full")}
	assert.True(t, IsDegraded(sinkErr))
	assert.False(t, IsFatal(sinkErr))

	tre := &TransitionResolutionError{State: "ask", Candidates: []string{"a", "b"}, Answer: "c"}
	assert.True(t, IsFatal(fmt.Errorf("step: %w", tre)))
	assert.False(t, IsDegraded(tre))

	joined := errors.Join(sinkErr, &StateExecutionError{State: "x", Kind: "tool", Err: ErrToolNotBound})
	assert.True(t, IsFatal(joined))
	assert.False(t, IsDegraded(joined))
	assert.ErrorIs(t, joined, ErrToolNotBound)

	halted := fmt.Errorf("%w: %w", ErrSessionHalted, errors.New("earlier failure"))
	assert.True(t, IsFatal(halted))

	assert.False(t, IsDegraded(nil))
}

func TestGraphLoadError_Message(t *testing.T) {
	err := &GraphLoadError{Source: "g.yaml", State: "compute", Reason: "dangling transition target \"nowhere\""}
	assert.Equal(t, `graph load error in g.yaml (state "compute"): dangling transition target "nowhere"`, err.Error())
}

func TestNewToolCallError_DefaultCode(t *testing.T) {
	err := NewToolCallError("multiply", "", "timeout")
	assert.Equal(t, ToolRequestFailed, err.Code)
	assert.Equal(t, "multiply", err.Tool)
}

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	assert.NoError(t, l.Increment())
	assert.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())
	assert.ErrorIs(t, l.Increment(), ErrStepBudgetExceeded)

	unlimited := NewStepLimiter(0)
	for i := 0; i < 100; i++ {
		if err := unlimited.Increment(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
