package graph

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// guard is a compiled jq expression evaluated against an AgentContext view.
type guard struct {
	src  string
	code *gojq.Code
}

func compileGuard(src string) (*guard, error) {
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, err
	}
	return &guard{src: src, code: code}, nil
}

// eval reports whether the first value the expression yields is truthy in
// jq's sense (anything but false and null). An expression that yields
// nothing is false.
func (g *guard) eval(view map[string]any) (bool, error) {
	iter := g.code.Run(view)
	v, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, isErr := v.(error); isErr {
		return false, fmt.Errorf("%s: %w", g.src, err)
	}
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return true, nil
	}
}
