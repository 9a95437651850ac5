package graph

import (
	"fmt"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/state"
	"gopkg.in/yaml.v3"
)

type document struct {
	Initial string
	States  []state.Definition
}

type rawDocument struct {
	Initial string    `yaml:"initial"`
	States  yaml.Node `yaml:"states"`
}

type rawState struct {
	Type        string    `yaml:"type"`
	Description string    `yaml:"description"`
	IsTerminal  bool      `yaml:"is_terminal"`
	Transition  yaml.Node `yaml:"transition"`
	Tool        string    `yaml:"tool"`
	ToolInputs  []string  `yaml:"tool_inputs"`
	Response    string    `yaml:"response"`
	Prompt      string    `yaml:"prompt"`
}

type rawTransition struct {
	Target      string `yaml:"target"`
	Description string `yaml:"description"`
	When        string `yaml:"when"`
}

// parse decodes a graph document. Mapping order is significant for the
// transition tables, so states and transitions are walked as yaml.Nodes.
func parse(data []byte, source string) (document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return document{}, &core.GraphLoadError{Source: source, Reason: "invalid document", Err: err}
	}

	doc := document{Initial: raw.Initial}

	switch raw.States.Kind {
	case 0:
		return doc, nil
	case yaml.MappingNode:
	default:
		return document{}, &core.GraphLoadError{Source: source, Reason: "states must be a mapping of name to state"}
	}

	for i := 0; i+1 < len(raw.States.Content); i += 2 {
		name := raw.States.Content[i].Value

		def, err := parseState(name, raw.States.Content[i+1])
		if err != nil {
			return document{}, &core.GraphLoadError{Source: source, State: name, Reason: err.Error()}
		}

		doc.States = append(doc.States, def)
	}

	return doc, nil
}

func parseState(name string, node *yaml.Node) (state.Definition, error) {
	var rs rawState
	if err := node.Decode(&rs); err != nil {
		return state.Definition{}, fmt.Errorf("malformed state: %w", err)
	}

	if rs.Type == "" {
		return state.Definition{}, fmt.Errorf("missing state type")
	}

	kind, err := state.ParseKind(rs.Type)
	if err != nil {
		return state.Definition{}, err
	}

	transitions, err := parseTransitions(&rs.Transition)
	if err != nil {
		return state.Definition{}, err
	}

	return state.Definition{
		Name:        name,
		Kind:        kind,
		Description: rs.Description,
		Terminal:    rs.IsTerminal,
		Transitions: transitions,
		Prompt:      rs.Prompt,
		Response:    rs.Response,
		Tool:        rs.Tool,
		ToolInputs:  rs.ToolInputs,
	}, nil
}

// parseTransitions accepts a bare target name, or a mapping whose values are
// a target name, null (the key is the target) or {target, description, when}.
func parseTransitions(node *yaml.Node) ([]state.Transition, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return nil, nil
		}
		return []state.Transition{{Key: node.Value, Target: node.Value}}, nil
	case yaml.MappingNode:
	default:
		return nil, fmt.Errorf("transition must be a state name or a mapping")
	}

	transitions := make([]state.Transition, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate transition %q", key)
		}
		seen[key] = struct{}{}

		tr := state.Transition{Key: key}

		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			tr.Target = val.Value
			if val.Tag == "!!null" || val.Value == "" {
				tr.Target = key
			}
		case yaml.MappingNode:
			var rt rawTransition
			if err := val.Decode(&rt); err != nil {
				return nil, fmt.Errorf("transition %q: %w", key, err)
			}
			tr.Target, tr.Description, tr.When = rt.Target, rt.Description, rt.When
			if tr.Target == "" {
				tr.Target = key
			}
		default:
			return nil, fmt.Errorf("transition %q: value must be a state name or a mapping", key)
		}

		transitions = append(transitions, tr)
	}

	return transitions, nil
}
