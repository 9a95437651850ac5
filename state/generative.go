package state

import (
	"context"
	"fmt"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
)

// Generative produces an assistant reply, from the canned response template
// when one is configured and from the language model otherwise.
type Generative struct{ base }

// CheckReady returns true once a reply exists.
func (s *Generative) CheckReady(ac *core.AgentContext) bool { return ac.LastOutput != "" }

// Execute generates the reply and appends it to the conversation.
func (s *Generative) Execute(ctx context.Context, rt Runtime, ac *core.AgentContext) (Result, error) {
	scratch := map[string]any{}

	var (
		reply string
		err   error
	)
	if s.def.Response != "" {
		reply, err = util.RenderTemplate(s.def.Response, ac.View())
		if err != nil {
			return Result{}, fmt.Errorf("render response: %w", err)
		}
		scratch["template"] = s.def.Response
	} else {
		reply, err = rt.Generate(ctx, s.def, ac)
		if err != nil {
			return Result{}, err
		}
	}

	ac.LastOutput = reply
	ac.AddMessage(core.Message{Role: core.RoleAssistant, Content: reply, State: s.def.Name})
	scratch["response"] = reply

	return Result{Outcome: OutcomeAdvance, Output: reply, Scratchpad: scratch}, nil
}
