// Package config loads the YAML configuration of the statemesh command.
//
// Values may reference environment variables as ${VAR} or ${VAR:-default};
// variables from a .env file are loaded first (see LoadDotEnv).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Duration is a time.Duration decoded from strings like "30s".
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and plain seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))

	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration.
type Config struct {
	Graph   string        `yaml:"graph"`
	Model   ModelConfig   `yaml:"model"`
	Agent   AgentConfig   `yaml:"agent"`
	Memory  MemoryConfig  `yaml:"memory"`
	Session SessionConfig `yaml:"session"`
	Tools   []ToolConfig  `yaml:"tools"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig selects and configures the language model.
type ModelConfig struct {
	Provider    string   `yaml:"provider"` // openai | anthropic | mock
	Name        string   `yaml:"name"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int64    `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
}

// AgentConfig tunes the step loop.
type AgentConfig struct {
	Instruction     string   `yaml:"instruction"`
	ExitKeywords    []string `yaml:"exit_keywords"`
	MaxStepsPerCall int      `yaml:"max_steps_per_call"`
	ToolTimeout     Duration `yaml:"tool_timeout"`
	ToolRetries     int      `yaml:"tool_retries"`
}

// MemoryConfig selects the transcript sink.
type MemoryConfig struct {
	Sink      string `yaml:"sink"` // none | memory | sqlite | redis
	DSN       string `yaml:"dsn"`  // sqlite path or redis address
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SessionConfig selects the snapshot store.
type SessionConfig struct {
	Store string `yaml:"store"` // memory | badger
	Dir   string `yaml:"dir"`
}

// ToolConfig declares a tool bound to every session. Remote tools are
// invoked over HTTP; deferred tools are answered by the operator.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Mode        string         `yaml:"mode"` // remote | deferred
	Endpoint    string         `yaml:"endpoint"`
	Aliases     []string       `yaml:"aliases"`
	Parameters  map[string]any `yaml:"parameters"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider: "mock",
			Timeout:  Duration(60 * time.Second),
		},
		Agent: AgentConfig{
			MaxStepsPerCall: 32,
			ToolTimeout:     Duration(30 * time.Second),
			ToolRetries:     3,
		},
		Memory:  MemoryConfig{Sink: "memory"},
		Session: SessionConfig{Store: "memory"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads, expands and validates a configuration file. A relative graph
// path is resolved against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Graph != "" && !filepath.IsAbs(cfg.Graph) {
		cfg.Graph = filepath.Join(filepath.Dir(path), cfg.Graph)
	}

	return cfg, nil
}

// Parse expands environment references in data and decodes it over the
// defaults.
func Parse(data []byte) (Config, error) {
	expanded, err := ExpandEnv(string(data), false)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks enumerated fields and tool declarations.
func (c Config) Validate() error {
	var errs []error

	check := func(field, value string, allowed ...string) {
		if !slices.Contains(allowed, value) {
			errs = append(errs, fmt.Errorf("%s: %q is not one of %v", field, value, allowed))
		}
	}

	check("model.provider", c.Model.Provider, "openai", "anthropic", "mock")
	check("memory.sink", c.Memory.Sink, "none", "memory", "sqlite", "redis")
	check("session.store", c.Session.Store, "memory", "badger")
	check("log.format", c.Log.Format, "text", "json")

	if c.Memory.Sink == "sqlite" && c.Memory.DSN == "" {
		errs = append(errs, errors.New("memory.dsn: required for the sqlite sink"))
	}
	if c.Session.Store == "badger" && c.Session.Dir == "" {
		errs = append(errs, errors.New("session.dir: required for the badger store"))
	}

	seen := map[string]bool{}
	for i, t := range c.Tools {
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("tools[%d]: name is required", i))
		case seen[t.Name]:
			errs = append(errs, fmt.Errorf("tools[%d]: duplicate tool %q", i, t.Name))
		}
		seen[t.Name] = true

		switch t.Mode {
		case "", "remote":
			if t.Endpoint == "" {
				errs = append(errs, fmt.Errorf("tools[%d]: endpoint is required for remote tool %q", i, t.Name))
			}
		case "deferred":
		default:
			errs = append(errs, fmt.Errorf("tools[%d]: unknown mode %q", i, t.Mode))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}
