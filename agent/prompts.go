package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
)

const synthesisInstruction = "A tool was run on behalf of the user. Answer the user's last request using only the tool outcome below. " +
	"Do not mention error codes or internal identifiers. If the tool failed, explain in plain words that the request could not be completed."

// synthesisPrompt presents the tool name, the arguments used and the result
// or the failure described in plain words.
func synthesisPrompt(req core.ToolRequest, ac *core.AgentContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tool: %s\n", req.Tool)
	fmt.Fprintf(&b, "Arguments: %s\n", util.MarshalCompact(req.Arguments))

	if ac.ToolError != nil {
		fmt.Fprintf(&b, "Outcome: the tool call failed because %s", describeFailure(ac.ToolError))
		return b.String()
	}

	fmt.Fprintf(&b, "Result: %s", util.MarshalCompact(ac.ToolResult))

	return b.String()
}

// narrate is the fixed reply used when the synthesis model call fails.
func narrate(req core.ToolRequest, ac *core.AgentContext) string {
	if ac.ToolError != nil {
		return fmt.Sprintf("Sorry, I could not complete that with %s: %s.", req.Tool, describeFailure(ac.ToolError))
	}

	return fmt.Sprintf("%s returned %s.", req.Tool, resultText(ac.ToolResult))
}

// describeFailure explains a tool error without its code.
func describeFailure(e *core.ToolCallError) string {
	var reason string

	switch e.Code {
	case core.InvalidResponseFormat:
		reason = "the tool answered in a format that could not be understood"
	case core.ToolRequestFailed:
		reason = "the tool could not be reached or rejected the request"
	default:
		reason = "the tool reported a problem"
	}

	if d := strings.TrimSpace(e.Detail); d != "" {
		reason += " (" + d + ")"
	}

	return reason
}

// resultText unwraps the common {"result": x} shape.
func resultText(v any) string {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if r, ok := m["result"]; ok {
			return util.MarshalCompact(r)
		}
	}
	return util.MarshalCompact(v)
}
