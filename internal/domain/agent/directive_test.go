package agent_test

import (
	"strings"
	"testing"

	"mailagent/internal/domain/agent"
)

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind agent.DirectiveKind
		wantBody string
	}{
		{
			name:     "plan with body",
			input:    "PLAN search the web, then send a summary email",
			wantKind: agent.DirectivePlan,
			wantBody: "search the web, then send a summary email",
		},
		{
			name:     "plan with colon",
			input:    "PLAN: gather sources first",
			wantKind: agent.DirectivePlan,
			wantBody: "gather sources first",
		},
		{
			name:     "bare plan",
			input:    "PLAN",
			wantKind: agent.DirectivePlan,
			wantBody: "",
		},
		{
			name:     "wait",
			input:    "WAIT",
			wantKind: agent.DirectiveWait,
		},
		{
			name:     "wait with explanation",
			input:    "WAIT until the user confirms the recipient",
			wantKind: agent.DirectiveWait,
		},
		{
			name:     "done",
			input:    "DONE",
			wantKind: agent.DirectiveDone,
		},
		{
			name:     "done with period",
			input:    "DONE.",
			wantKind: agent.DirectiveDone,
		},
		{
			name:     "leading whitespace",
			input:    "  \n\tWAIT",
			wantKind: agent.DirectiveWait,
		},
		{
			name:     "lowercase is not a directive",
			input:    "done",
			wantKind: agent.DirectiveUnknown,
			wantBody: "done",
		},
		{
			name:     "keyword mid-sentence is not a directive",
			input:    "I am DONE with the research",
			wantKind: agent.DirectiveUnknown,
			wantBody: "I am DONE with the research",
		},
		{
			name:     "empty",
			input:    "",
			wantKind: agent.DirectiveUnknown,
		},
		{
			name:     "whitespace only",
			input:    "   \n ",
			wantKind: agent.DirectiveUnknown,
		},
		{
			name:     "arbitrary text",
			input:    "Here is what I found so far.",
			wantKind: agent.DirectiveUnknown,
			wantBody: "Here is what I found so far.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := agent.ParseDirective(tt.input)
			if got.Kind != tt.wantKind {
				t.Errorf("ParseDirective(%q).Kind = %s, want %s", tt.input, got.Kind, tt.wantKind)
			}
			if got.Body != tt.wantBody {
				t.Errorf("ParseDirective(%q).Body = %q, want %q", tt.input, got.Body, tt.wantBody)
			}
		})
	}
}

func TestDefaultSystemPrompt(t *testing.T) {
	names := []string{"mailroom_send_email", "web_search"}

	toolcall := agent.DefaultSystemPrompt(agent.ModeToolCall, names)
	if !strings.Contains(toolcall, "Always respond with a tool call") {
		t.Error("toolcall prompt missing the tool call instruction")
	}
	if !strings.Contains(toolcall, "`mailroom_send_email`") || !strings.Contains(toolcall, "`web_search`") {
		t.Error("toolcall prompt missing the valid tool names")
	}
	if strings.Contains(toolcall, "PLAN") {
		t.Error("toolcall prompt must not mention directives")
	}

	directive := agent.DefaultSystemPrompt(agent.ModeDirective, names)
	for _, keyword := range []string{"PLAN", "WAIT", "DONE"} {
		if !strings.Contains(directive, keyword) {
			t.Errorf("directive prompt missing %s", keyword)
		}
	}
	if !strings.Contains(directive, "exactly one tool call") {
		t.Error("directive prompt missing the single tool call rule")
	}
}
