package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/statemesh"
	"github.com/hupe1980/statemesh/agent"
	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/internal/config"
	"github.com/hupe1980/statemesh/internal/util"
	"github.com/hupe1980/statemesh/tool"
)

type runOptions struct {
	configPath string
	graphPath  string
	sessionID  string
	envFile    string
	provider   string
}

func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session over a graph",
		Long: `Start an interactive session over a state graph.

Assistant replies are printed as they are produced. When the agent calls a
deferred tool, the request is printed and the tool result is read from the
next input line as JSON. A result line starting with "!" reports that the
tool failed, with the rest of the line as the reason. Type one of the exit
keywords to end the session.

Examples:
  # Run with a configuration file
  statemesh run -c statemesh.yaml

  # Run a graph with the offline mock model
  statemesh run --graph flow.yaml

  # Resume a stored session
  statemesh run -c statemesh.yaml --session support-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&opts.graphPath, "graph", "g", "", "Path to graph file (overrides the configuration)")
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "Session id to create or resume")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Model provider (overrides the configuration)")

	return cmd
}

func (a *App) loadConfig(opts *runOptions) (config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}

	if opts.graphPath != "" {
		cfg.Graph = opts.graphPath
	}
	if opts.provider != "" {
		cfg.Model.Provider = opts.provider
	}

	if cfg.Graph == "" {
		return config.Config{}, errors.New("a graph is required (--graph or graph: in the configuration)")
	}

	return cfg, cfg.Validate()
}

func (a *App) run(ctx context.Context, opts *runOptions) error {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, a.stderr)

	g, err := graph.LoadFile(cfg.Graph)
	if err != nil {
		return err
	}

	llm, err := newModel(cfg.Model)
	if err != nil {
		return err
	}

	var cl closers
	defer func() {
		if err := cl.Close(); err != nil {
			logger.Warn("cli.close.failed", "error", err.Error())
		}
	}()

	sink, err := newSink(ctx, cfg.Memory, &cl)
	if err != nil {
		return fmt.Errorf("memory sink: %w", err)
	}

	store, err := newSessionStore(cfg.Session, &cl)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	reg := newRegistry(cfg, logger)

	rt, err := statemesh.New(g, llm, func(o *statemesh.Options) {
		o.Sink = sink
		o.SessionStore = store
		o.Registry = reg
		o.Tools = nil
		for _, name := range reg.Names() {
			if t, err := reg.Lookup(name); err == nil {
				o.Tools = append(o.Tools, t)
			}
		}
		o.Logger = logger
		o.ExitKeywords = cfg.Agent.ExitKeywords
		o.MaxStepsPerCall = cfg.Agent.MaxStepsPerCall
		o.ModelTimeout = cfg.Model.Timeout.Std()
		o.ToolTimeout = cfg.Agent.ToolTimeout.Std()
		if cfg.Agent.Instruction != "" {
			in := agent.NewInstructionFromText(cfg.Agent.Instruction)
			o.Instruction = &in
		}
	})
	if err != nil {
		return err
	}

	session, err := rt.Open(ctx, opts.sessionID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "session %s (%s)\n", session.ID(), session.Status())

	return a.repl(ctx, rt, session.ID())
}

// repl drives one session until it terminates or input ends.
func (a *App) repl(ctx context.Context, rt *statemesh.Runtime, id string) error {
	scanner := bufio.NewScanner(a.stdin)

	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(a.stdout, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(a.stdout)
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	// the first step runs the leading states up to the first input or tool
	reply, err := rt.Step(ctx, id, "")
	if err := a.report(reply, err); err != nil {
		return err
	}

	for {
		switch reply.Status {
		case core.StatusTerminal:
			return rt.Close(ctx, id)

		case core.StatusAwaitingToolResult:
			req := reply.ToolRequest
			fmt.Fprintf(a.stdout, "[tool] %s %s\n", req.Tool, util.MarshalCompact(req.Arguments))

			line, ok := readLine("result> ")
			if !ok {
				return rt.Close(ctx, id)
			}
			if reason, failed := strings.CutPrefix(line, "!"); failed {
				env := tool.Failure(req.Tool, core.ToolRequestFailed, strings.TrimSpace(reason))
				reply, err = rt.ReceiveEnvelope(ctx, id, env)
				break
			}
			reply, err = rt.ReceiveResult(ctx, id, parseResult(line))

		default:
			line, ok := readLine("> ")
			if !ok {
				return rt.Close(ctx, id)
			}
			reply, err = rt.Step(ctx, id, line)
		}

		if err := a.report(reply, err); err != nil {
			return err
		}
	}
}

// report prints the outputs of a reply. Degraded errors are printed as
// warnings; other errors end the session.
func (a *App) report(reply agent.Reply, err error) error {
	for _, out := range reply.Outputs {
		fmt.Fprintln(a.stdout, out)
	}

	if err == nil {
		return nil
	}

	if core.IsDegraded(err) {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
		return nil
	}

	return err
}

// parseResult reads a tool result line as JSON, falling back to the raw text.
func parseResult(line string) any {
	var v any
	if err := json.Unmarshal([]byte(line), &v); err == nil {
		return v
	}
	if err := util.UnmarshalLenient(line, &v); err == nil && v != nil {
		if _, isString := v.(string); !isString {
			return v
		}
	}
	return line
}
