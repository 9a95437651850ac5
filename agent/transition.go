package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/graph"
	"github.com/hupe1980/statemesh/internal/util"
	"github.com/hupe1980/statemesh/model"
)

const transitionField = "next_state"

var errOutsideCandidates = errors.New("answer is not one of the candidate states")

// chooseTransition selects among the viable candidates. A single candidate,
// or several leading to the same target, is taken without a model call.
// Otherwise the model must answer with exactly one candidate target; any
// other answer is a TransitionResolutionError. chosen reports whether the
// model made the choice.
func (a *Agent) chooseTransition(ctx context.Context, from string, candidates []graph.Candidate) (next graph.Candidate, chosen bool, err error) {
	if len(candidates) == 0 {
		return graph.Candidate{}, false, &core.TransitionResolutionError{State: from, Err: core.ErrNoViableTransition}
	}

	targets := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !slices.Contains(targets, c.Target) {
			targets = append(targets, c.Target)
		}
	}

	if len(targets) == 1 {
		return candidates[0], false, nil
	}

	instructions, err := a.rt.instructions(a.ac, transitionPrompt(from, candidates, targets))
	if err != nil {
		return graph.Candidate{}, false, &core.TransitionResolutionError{State: from, Candidates: targets, Err: err}
	}

	resp, err := a.rt.callModel(ctx, "choose_transition", model.Request{
		Instructions: instructions,
		Contents:     a.rt.history(a.ac),
		Constraint: &model.Constraint{
			Name:        "transition_choice",
			Description: "Choose the state the conversation moves to next.",
			Schema:      util.EnumSchema(transitionField, targets),
		},
	})
	if err != nil {
		return graph.Candidate{}, false, &core.TransitionResolutionError{State: from, Candidates: targets, Err: err}
	}

	var answer struct {
		NextState string `json:"next_state"`
		Error     string `json:"error"`
	}
	if err := model.DecodeAnswer(resp, &answer); err != nil {
		return graph.Candidate{}, false, &core.TransitionResolutionError{State: from, Candidates: targets, Answer: resp.Content.Text(), Err: err}
	}

	if answer.Error != "" {
		return graph.Candidate{}, false, &core.TransitionResolutionError{
			State:      from,
			Candidates: targets,
			Answer:     answer.NextState,
			Err:        fmt.Errorf("model answered with an error: %s", answer.Error),
		}
	}

	target := strings.TrimSpace(answer.NextState)
	for _, c := range candidates {
		if c.Target == target {
			return c, true, nil
		}
	}

	return graph.Candidate{}, false, &core.TransitionResolutionError{State: from, Candidates: targets, Answer: answer.NextState, Err: errOutsideCandidates}
}

func transitionPrompt(from string, candidates []graph.Candidate, targets []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The conversation is in state %q. Decide which state comes next based on the conversation so far.\n", from)
	b.WriteString("Candidates:\n")

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c.Target] {
			continue
		}
		seen[c.Target] = true
		fmt.Fprintf(&b, "- %s: %s\n", c.Target, c.Description)
	}

	fmt.Fprintf(&b, "Answer with %s set to exactly one of: %s.", transitionField, strings.Join(targets, ", "))

	return b.String()
}
