package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// UnmarshalLenient unmarshals model produced JSON into v. Markdown code fences
// are stripped and syntactically broken documents are repaired before a
// second attempt.
func UnmarshalLenient(data string, v any) error {
	data = stripFences(data)
	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(data)
	if rerr != nil {
		return fmt.Errorf("repair json: %w", rerr)
	}
	return json.Unmarshal([]byte(fixed), v)
}

// MarshalCompact renders v as compact JSON, falling back to fmt formatting
// for values encoding/json rejects.
func MarshalCompact(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
