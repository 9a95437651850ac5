package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hupe1980/statemesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.MemorySink = (*Sink)(nil)

func TestNewFromClient_Keys(t *testing.T) {
	s := NewFromClient(nil, "test:")
	assert.Equal(t, "test:memory:a1", s.streamKey("a1"))
	assert.Equal(t, "test:memory:agents", s.agentsKey())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Address)
	assert.Equal(t, "statemesh:", cfg.KeyPrefix)
}

// TestSink_Integration runs against a live server when STATEMESH_REDIS_ADDR is set.
func TestSink_Integration(t *testing.T) {
	addr := os.Getenv("STATEMESH_REDIS_ADDR")
	if addr == "" {
		t.Skip("STATEMESH_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.KeyPrefix = "statemesh-test:" + uuid.NewString() + ":"

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Del(context.Background(), s.streamKey("a"), s.agentsKey()).Err()
		_ = s.Close()
	})

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, core.MemoryRow{AgentID: "a", Seq: 1, State: "ask", Kind: "input", Scratchpad: map[string]any{"input": "hi"}}))
	require.NoError(t, s.Append(ctx, core.MemoryRow{AgentID: "a", Seq: 2, State: "reply", Kind: "generative"}))

	rows, err := s.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ask", rows[0].State)
	assert.Equal(t, "hi", rows[0].Scratchpad["input"])

	agents, err := s.Agents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, agents)
}
