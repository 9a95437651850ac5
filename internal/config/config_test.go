package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("SM_MODEL", "gpt-4o")
	t.Setenv("SM_EMPTY", "")

	tests := []struct {
		name   string
		input  string
		strict bool
		want   string
		err    bool
	}{
		{"plain", "model: ${SM_MODEL}", false, "model: gpt-4o", false},
		{"default used", "dir: ${SM_UNSET_DIR:-/tmp/x}", false, "dir: /tmp/x", false},
		{"default on empty", "v: ${SM_EMPTY:-fallback}", false, "v: fallback", false},
		{"default ignored", "m: ${SM_MODEL:-other}", false, "m: gpt-4o", false},
		{"unset lenient", "k: ${SM_UNSET_KEY}", false, "k: ", false},
		{"unset strict", "k: ${SM_UNSET_KEY}", true, "", true},
		{"required", "k: ${SM_UNSET_KEY:?set the key}", false, "", true},
		{"no references", "a: $notexpanded", false, "a: $notexpanded", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.input, tt.strict)
			if tt.err {
				assert.ErrorIs(t, err, ErrMissingEnvVar)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("graph: flow.yaml\n"))
	require.NoError(t, err)

	assert.Equal(t, "flow.yaml", cfg.Graph)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, 60*time.Second, cfg.Model.Timeout.Std())
	assert.Equal(t, 32, cfg.Agent.MaxStepsPerCall)
	assert.Equal(t, "memory", cfg.Memory.Sink)
	assert.Equal(t, "memory", cfg.Session.Store)
}

func TestParse_Full(t *testing.T) {
	t.Setenv("SM_API_KEY", "sk-test")

	src := `
graph: flow.yaml
model:
  provider: openai
  name: gpt-4o-mini
  api_key: ${SM_API_KEY}
  temperature: 0.2
  timeout: 15s
agent:
  exit_keywords: [stop]
  tool_timeout: 5
memory:
  sink: sqlite
  dsn: ${SM_DB:-memory.db}
session:
  store: badger
  dir: ./sessions
tools:
  - name: multiply
    description: Multiply two numbers
    endpoint: http://localhost:8080/multiply
    parameters:
      type: object
      required: [a, b]
  - name: approve
    mode: deferred
log:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	require.NotNil(t, cfg.Model.Temperature)
	assert.InDelta(t, 0.2, *cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 15*time.Second, cfg.Model.Timeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Agent.ToolTimeout.Std())
	assert.Equal(t, []string{"stop"}, cfg.Agent.ExitKeywords)
	assert.Equal(t, "memory.db", cfg.Memory.DSN)
	require.Len(t, cfg.Tools, 2)
	assert.Equal(t, "object", cfg.Tools[0].Parameters["type"])
	assert.Equal(t, "deferred", cfg.Tools[1].Mode)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"provider", "model: {provider: llama}"},
		{"sink", "memory: {sink: postgres}"},
		{"sqlite without dsn", "memory: {sink: sqlite}"},
		{"badger without dir", "session: {store: badger}"},
		{"remote tool without endpoint", "tools: [{name: t}]"},
		{"duplicate tool", "tools: [{name: t, mode: deferred}, {name: t, mode: deferred}]"},
		{"unknown mode", "tools: [{name: t, mode: async}]"},
		{"bad duration", "model: {timeout: soon}"},
		{"not yaml", "graph: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statemesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph: graphs/flow.yaml\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "graphs", "flow.yaml"), cfg.Graph)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SM_DOTENV_VALUE=from-file\n"), 0o600))

	t.Setenv("SM_DOTENV_VALUE", "")
	require.NoError(t, os.Unsetenv("SM_DOTENV_VALUE"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("SM_DOTENV_VALUE"))
}
