package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/state"
	"github.com/hupe1980/statemesh/tool"
)

// noTool is the extra decide-phase option meaning "answer without a tool".
const noTool = "none"

// runtime implements state.Runtime on behalf of an agent. It is only used
// from inside the step loop, with the agent mutex held.
type runtime struct {
	a *Agent
}

var _ state.Runtime = (*runtime)(nil)

// Generate produces the reply of a generative state (or of a tool state
// that needed no tool).
func (r *runtime) Generate(ctx context.Context, def state.Definition, ac *core.AgentContext) (string, error) {
	extra := []string{stateBrief(def)}
	if def.Prompt != "" {
		prompt, err := util.RenderTemplate(def.Prompt, ac.View())
		if err != nil {
			return "", fmt.Errorf("render prompt: %w", err)
		}
		extra = append(extra, prompt)
	}

	instructions, err := r.instructions(ac, extra...)
	if err != nil {
		return "", err
	}

	contents := r.history(ac)
	if len(contents) == 0 {
		contents = []core.Content{core.NewTextContent(core.RoleUser, "Start the conversation.")}
	}

	resp, err := r.callModel(ctx, "generate", model.Request{Instructions: instructions, Contents: contents})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Content.Text())
	if reply == "" {
		return "", errors.New("model returned an empty reply")
	}

	return reply, nil
}

// RequestTool runs the decide and fill phases. It returns nil when no tool
// is needed. Problems that belong to the tool call itself (unbound tool, a
// pick outside the bound tools, arguments that cannot be filled) do not fail
// the state: the request is staged and the failure is delivered as its
// outcome so it gets narrated.
func (r *runtime) RequestTool(ctx context.Context, def state.Definition, ac *core.AgentContext) (*core.ToolRequest, error) {
	name := def.Tool
	if name == "" {
		var (
			err     error
			unknown *unknownToolError
		)
		name, err = r.decideTool(ctx, ac)
		switch {
		case errors.As(err, &unknown):
			r.a.logger.Warn("agent.tool.unknown_choice", "tool_name", unknown.answer, "options", unknown.options)
			req := &core.ToolRequest{CallID: core.NewID(), Tool: unknown.answer, Arguments: map[string]any{}}
			maps.Copy(req.Arguments, ac.ToolInput)
			r.a.preflight = &preflightError{
				callID: req.CallID,
				err:    core.NewToolCallError(unknown.answer, core.ToolRequestFailed, fmt.Sprintf("tool %q is not available to this agent", unknown.answer)),
			}
			return req, nil
		case err != nil:
			return nil, err
		case name == "":
			return nil, nil
		}
	}

	req := &core.ToolRequest{CallID: core.NewID(), Tool: name, Arguments: map[string]any{}}
	maps.Copy(req.Arguments, ac.ToolInput)

	t, err := r.a.resolveToolLocked(name)
	if err != nil {
		r.a.logger.Warn("agent.tool.unavailable", "tool_name", name, "error", err.Error())
		r.a.preflight = &preflightError{
			callID: req.CallID,
			err:    core.NewToolCallError(name, core.ToolRequestFailed, fmt.Sprintf("tool %q is not available to this agent", name)),
		}
		return req, nil
	}
	req.Tool = t.Name()

	missing := missingInputs(def, t, req.Arguments)
	if len(missing) == 0 {
		return req, nil
	}

	filled, err := r.fillInputs(ctx, t, missing, ac)
	if err != nil {
		r.a.logger.Warn("agent.tool.fill_failed", "tool_name", t.Name(), "error", err.Error())
		r.a.preflight = &preflightError{
			callID: req.CallID,
			err:    core.NewToolCallError(t.Name(), core.ToolRequestFailed, fmt.Sprintf("could not determine the arguments: %v", err)),
		}
		return req, nil
	}

	for _, f := range missing {
		req.Arguments[f] = filled[f]
	}

	return req, nil
}

// decideTool asks the model which bound tool, if any, the user needs. An
// intent that already names a bound tool is used without a model call.
func (r *runtime) decideTool(ctx context.Context, ac *core.AgentContext) (string, error) {
	names := r.a.boundNamesLocked()
	if len(names) == 0 {
		return "", nil
	}

	if slices.Contains(names, ac.Intent) {
		r.a.stepIntent = ac.Intent
		return ac.Intent, nil
	}

	options := append(slices.Clone(names), noTool)

	var b strings.Builder
	b.WriteString("What tool does the user want to use? Available tools:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: %s\n", n, r.a.tools[n].Description())
	}
	fmt.Fprintf(&b, "Answer %q when no tool is needed.", noTool)

	instructions, err := r.instructions(ac, b.String())
	if err != nil {
		return "", err
	}

	resp, err := r.callModel(ctx, "decide_tool", model.Request{
		Instructions: instructions,
		Contents:     r.history(ac),
		Constraint: &model.Constraint{
			Name:        "tool_choice",
			Description: "Choose the tool needed to answer the user.",
			Schema:      util.EnumSchema("intent", options),
		},
	})
	if err != nil {
		return "", fmt.Errorf("decide tool: %w", err)
	}

	var answer struct {
		Intent string `json:"intent"`
	}
	if err := model.DecodeAnswer(resp, &answer); err != nil {
		return "", fmt.Errorf("decide tool: %w", err)
	}

	r.a.stepIntent = answer.Intent

	if !slices.Contains(options, answer.Intent) {
		return "", &unknownToolError{answer: answer.Intent, options: options}
	}

	ac.Intent = answer.Intent
	if answer.Intent == noTool {
		return "", nil
	}

	return answer.Intent, nil
}

// unknownToolError is a decide-phase answer outside the bound tools.
type unknownToolError struct {
	answer  string
	options []string
}

func (e *unknownToolError) Error() string {
	return fmt.Sprintf("decide tool: answer %q is not one of %v", e.answer, e.options)
}

// fillInputs asks the model for the missing arguments.
func (r *runtime) fillInputs(ctx context.Context, t tool.Tool, fields []string, ac *core.AgentContext) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Extract the arguments for the %s tool (%s) from the conversation. Required: %s.",
		t.Name(), t.Description(), strings.Join(fields, ", "),
	)

	instructions, err := r.instructions(ac, prompt)
	if err != nil {
		return nil, err
	}

	resp, err := r.callModel(ctx, "fill_inputs", model.Request{
		Instructions: instructions,
		Contents:     r.history(ac),
		Constraint: &model.Constraint{
			Name:        "tool_input",
			Description: "Arguments for " + t.Name(),
			Schema:      util.ObjectSchema(fields, t.Parameters()),
		},
	})
	if err != nil {
		return nil, err
	}

	answer := map[string]any{}
	if err := model.DecodeAnswer(resp, &answer); err != nil {
		return nil, err
	}

	for _, f := range fields {
		if _, ok := answer[f]; !ok {
			return nil, fmt.Errorf("missing %q in answer", f)
		}
	}

	return answer, nil
}

// Synthesize narrates the tool outcome. The request carries no tool
// definitions. When the model fails, a fixed narration is returned.
func (r *runtime) Synthesize(ctx context.Context, req core.ToolRequest, ac *core.AgentContext) string {
	instructions, err := r.instructions(ac, synthesisInstruction)
	if err == nil {
		contents := append(r.history(ac), core.NewTextContent(core.RoleUser, synthesisPrompt(req, ac)))

		var resp model.Response
		resp, err = r.callModel(ctx, "synthesize", model.Request{Instructions: instructions, Contents: contents})
		if err == nil {
			if text := strings.TrimSpace(resp.Content.Text()); text != "" {
				return text
			}
			err = errors.New("empty reply")
		}
	}

	r.a.logger.Warn("agent.synthesis.fallback", "tool_name", req.Tool, "error", err.Error())

	return narrate(req, ac)
}

// IsExit reports whether input is one of the configured exit keywords.
func (r *runtime) IsExit(input string) bool {
	in := strings.TrimSpace(input)
	for _, k := range r.a.opts.ExitKeywords {
		if strings.EqualFold(in, k) {
			return true
		}
	}
	return false
}

// instructions resolves the agent instruction and appends extra sections.
func (r *runtime) instructions(ac *core.AgentContext, extra ...string) (string, error) {
	base, err := r.a.opts.Instruction.Resolve(ac)
	if err != nil {
		return "", fmt.Errorf("resolve instruction: %w", err)
	}

	parts := make([]string, 0, len(extra)+1)
	if base != "" {
		parts = append(parts, base)
	}
	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			parts = append(parts, e)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// history returns the most recent conversation contents.
func (r *runtime) history(ac *core.AgentContext) []core.Content {
	contents := ac.Contents()
	if n := r.a.opts.MaxHistoryMessages; n > 0 && len(contents) > n {
		contents = contents[len(contents)-n:]
	}
	return contents
}

// callModel runs one model call bounded by the model timeout.
func (r *runtime) callModel(ctx context.Context, purpose string, req model.Request) (model.Response, error) {
	if r.a.opts.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.a.opts.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := model.Collect(ctx, r.a.llm, req)
	r.a.logger.LogModelCall(r.a.llm.Info().Name, purpose, time.Since(start), err == nil, err)

	return resp, err
}

// missingInputs lists the required arguments not yet supplied. Required
// names come from the state's tool_inputs, else from the tool schema.
func missingInputs(def state.Definition, t tool.Tool, args map[string]any) []string {
	required := def.ToolInputs
	if len(required) == 0 {
		required = schemaRequired(t.Parameters())
	}

	var missing []string
	for _, f := range required {
		if _, ok := args[f]; !ok {
			missing = append(missing, f)
		}
	}

	return missing
}

func schemaRequired(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func validateArguments(args, schema map[string]any) error {
	return util.ValidateParameters(args, schema)
}

func stateBrief(def state.Definition) string {
	if def.Description == "" {
		return ""
	}
	return fmt.Sprintf("Current step (%s): %s", def.Name, def.Description)
}
