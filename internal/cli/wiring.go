package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/config"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/memory"
	"github.com/hupe1980/statemesh/memory/redis"
	"github.com/hupe1980/statemesh/memory/sqlite"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/model/anthropic"
	"github.com/hupe1980/statemesh/model/openai"
	"github.com/hupe1980/statemesh/session"
	"github.com/hupe1980/statemesh/session/badger"
	"github.com/hupe1980/statemesh/tool"
)

// closers releases resources in reverse order of acquisition.
type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i].Close())
	}
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, out io.Writer) *logging.StateMeshLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Level),
		Format: cfg.Format,
		Output: out,
	})
}

func newModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "mock", "":
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func newSink(ctx context.Context, cfg config.MemoryConfig, cl *closers) (core.MemorySink, error) {
	switch cfg.Sink {
	case "none":
		return nil, nil
	case "memory", "":
		return memory.NewInMemorySink(), nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		*cl = append(*cl, s)
		return s, nil
	case "redis":
		rc := redis.DefaultConfig()
		if cfg.DSN != "" {
			rc.Address = cfg.DSN
		}
		rc.Password = cfg.Password
		if cfg.KeyPrefix != "" {
			rc.KeyPrefix = cfg.KeyPrefix
		}
		s, err := redis.New(rc)
		if err != nil {
			return nil, err
		}
		*cl = append(*cl, s)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown memory sink %q", cfg.Sink)
	}
}

func newSessionStore(cfg config.SessionConfig, cl *closers) (core.SessionStore, error) {
	switch cfg.Store {
	case "memory", "":
		return session.NewInMemoryStore(), nil
	case "badger":
		s, err := badger.Open(badger.WithDir(cfg.Dir))
		if err != nil {
			return nil, err
		}
		*cl = append(*cl, s)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// newRegistry builds the configured tools. Remote tools share one HTTP
// invoker carrying the retry and circuit breaker settings.
func newRegistry(cfg config.Config, logger logging.Logger) *tool.Registry {
	invoker := tool.NewHTTPInvoker(func(o *tool.HTTPOptions) {
		o.Logger = logger
		if cfg.Agent.ToolTimeout > 0 {
			o.Timeout = cfg.Agent.ToolTimeout.Std()
		}
		if cfg.Agent.ToolRetries > 0 {
			o.Resilience.RetryMaxAttempts = cfg.Agent.ToolRetries
		}
	})

	reg := tool.NewRegistry()

	for _, tc := range cfg.Tools {
		var t tool.Tool
		if tc.Mode == "deferred" {
			t = tool.NewDeferredTool(tc.Name, tc.Description, tc.Parameters)
		} else {
			invoker.Register(tc.Name, tc.Endpoint)
			t = tool.NewRemoteTool(tc.Name, tc.Description, tc.Parameters, invoker)
		}
		reg.Register(t, tc.Aliases...)
	}

	return reg
}
