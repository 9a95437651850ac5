package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/util"
)

// ErrNoResponse is returned by Collect when a model closed its channels
// without emitting a final response.
var ErrNoResponse = errors.New("model returned no final response")

// Constraint restricts a model answer to a JSON object matching Schema.
// Closed choices are expressed as an object with a single enum field.
type Constraint struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions string         `json:"instructions"` // System prompt
	Contents     []core.Content `json:"contents"`     // Conversation, oldest first
	Constraint   *Constraint    `json:"constraint,omitempty"`
	Stream       bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required by agents to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the final (non partial) response.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				rr := r
				final = &rr
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if final == nil {
		return Response{}, ErrNoResponse
	}

	return *final, nil
}

// DecodeAnswer decodes a constrained answer into v. Structured data parts win
// over text; text is parsed leniently.
func DecodeAnswer(resp Response, v any) error {
	if data, ok := resp.Content.Data(); ok {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	}
	text := strings.TrimSpace(resp.Content.Text())
	if text == "" {
		return fmt.Errorf("empty constrained answer")
	}
	return util.UnmarshalLenient(text, v)
}

// MockModel is a deterministic in-process Model useful for tests, examples
// and offline demos. Free text requests are answered from canned responses;
// constrained requests are answered from the latest user message: enum fields
// pick the first allowed value mentioned there, numeric fields take the
// numbers found there in order.
type MockModel struct {
	info      Info
	responses map[string]string
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}

		var full string
		if req.Constraint != nil {
			answer := answerConstraint(req.Constraint.Schema, lastUserText(req.Contents))
			b, err := json.Marshal(answer)
			if err != nil {
				errCh <- err
				return
			}
			full = string(b)
		} else {
			inputText := req.Contents[len(req.Contents)-1].Text()
			full = m.responses[inputText]
			if full == "" {
				full = fmt.Sprintf("Mock response to: %s", inputText)
			}
		}

		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(r)),
				}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Content:      core.NewTextContent(core.RoleAssistant, full),
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func lastUserText(contents []core.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == core.RoleUser {
			return contents[i].Text()
		}
	}
	return contents[len(contents)-1].Text()
}

func answerConstraint(schema map[string]any, text string) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	fields := requiredFields(schema)
	numbers := numberPattern.FindAllString(text, -1)
	lower := strings.ToLower(text)

	answer := make(map[string]any, len(fields))
	for _, f := range fields {
		prop, _ := props[f].(map[string]any)
		if enum := stringList(prop["enum"]); len(enum) > 0 {
			answer[f] = enum[0]
			for _, v := range enum {
				if strings.Contains(lower, strings.ToLower(v)) {
					answer[f] = v
					break
				}
			}
			continue
		}
		if acceptsNumber(prop["type"]) && len(numbers) > 0 {
			n, _ := strconv.ParseFloat(numbers[0], 64)
			numbers = numbers[1:]
			answer[f] = n
			continue
		}
		answer[f] = text
	}
	return answer
}

func requiredFields(schema map[string]any) []string {
	if req := stringList(schema["required"]); len(req) > 0 {
		return req
	}
	props, _ := schema["properties"].(map[string]any)
	fields := make([]string, 0, len(props))
	for k := range props {
		fields = append(fields, k)
	}
	return fields
}

func acceptsNumber(t any) bool {
	for _, s := range stringList(t) {
		if s == "number" || s == "integer" {
			return true
		}
	}
	return false
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case string:
		return []string{vv}
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
