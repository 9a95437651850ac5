package core

import "testing"

func TestEvent_Constructors(t *testing.T) {
	e := NewEvent("agent-1", EventStateEntered, "ask")
	if e.AgentID != "agent-1" || e.State != "ask" || e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewEvent did not initialize fields correctly: %+v", e)
	}

	out := NewOutputEvent("agent-1", "compute", "The product is 12")
	if out.Type != EventOutput || out.Text() != "The product is 12" || out.Content.Role != RoleAssistant {
		t.Fatalf("NewOutputEvent malformed: %+v", out)
	}

	tr := NewTransitionEvent("agent-1", "ask", "compute")
	if tr.Target != "compute" || tr.Text() != "" {
		t.Fatalf("NewTransitionEvent malformed: %+v", tr)
	}

	req := NewToolRequestedEvent("agent-1", "compute", ToolRequest{CallID: "c1", Tool: "multiply"})
	if req.ToolRequest == nil || req.ToolRequest.Tool != "multiply" {
		t.Fatalf("NewToolRequestedEvent malformed: %+v", req)
	}
}

func TestContent_TextAndData(t *testing.T) {
	c := Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "a"},
		DataPart{Data: map[string]any{"choice": "ask"}},
		TextPart{Text: "b"},
	}}
	if c.Text() != "ab" {
		t.Fatalf("unexpected text %q", c.Text())
	}
	d, ok := c.Data()
	if !ok || d["choice"] != "ask" {
		t.Fatalf("unexpected data %v", d)
	}
	if _, ok := NewTextContent(RoleUser, "x").Data(); ok {
		t.Fatalf("text content must not carry data")
	}
}
