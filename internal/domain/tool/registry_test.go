package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/tool"
)

func echoHandler(ctx context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := tool.NewRegistry()

	err := reg.Register(tool.Definition{Name: "web_search", Description: "search"}, echoHandler)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, ok := reg.Get("web_search"); !ok {
		t.Error("registered tool not found")
	}
	if _, ok := reg.Get("nope"); ok {
		t.Error("unregistered tool reported as found")
	}
}

func TestRegistry_RejectsDuplicatesAndInvalid(t *testing.T) {
	reg := tool.NewRegistry()

	if err := reg.Register(tool.Definition{Name: ""}, echoHandler); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register(tool.Definition{Name: "x"}, nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if err := reg.Register(tool.Definition{Name: "x"}, echoHandler); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := reg.Register(tool.Definition{Name: "x"}, echoHandler); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestRegistry_DefinitionsKeepRegistrationOrder(t *testing.T) {
	reg := tool.NewRegistry()
	for _, name := range []string{"mailroom_send_email", "web_search", "lookup"} {
		if err := reg.Register(tool.Definition{Name: name}, echoHandler); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	defs := reg.Definitions()
	want := []string{"mailroom_send_email", "web_search", "lookup"}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("definition %d = %s, want %s", i, def.Name, want[i])
		}
	}
}

func TestRegistry_ExecuteUnknownToolIsFatal(t *testing.T) {
	reg := tool.NewRegistry()

	_, err := reg.Execute(context.Background(), tool.Call{ID: "call_1", Name: "mystery"})
	var runErr *agenterrors.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %T", err)
	}
	if runErr.Code != agenterrors.ErrCodeUnknownTool {
		t.Errorf("code = %s, want %s", runErr.Code, agenterrors.ErrCodeUnknownTool)
	}
	if !runErr.IsFatal() {
		t.Error("unknown tool must be fatal")
	}
	if runErr.Message != "unknown tool: mystery" {
		t.Errorf("message = %q", runErr.Message)
	}
}

func TestRegistry_ExecuteHandlerFailureIsFatal(t *testing.T) {
	reg := tool.NewRegistry()
	boom := errors.New("connection refused")
	_ = reg.Register(tool.Definition{Name: "web_search"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", boom
	})

	_, err := reg.Execute(context.Background(), tool.Call{ID: "call_1", Name: "web_search"})
	var runErr *agenterrors.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %T", err)
	}
	if runErr.Code != agenterrors.ErrCodeToolExecution {
		t.Errorf("code = %s, want %s", runErr.Code, agenterrors.ErrCodeToolExecution)
	}
	if !errors.Is(err, boom) {
		t.Error("cause not preserved")
	}
}

func TestParseCall(t *testing.T) {
	tests := []struct {
		name    string
		call    conversation.ToolCall
		wantErr bool
	}{
		{"valid object", conversation.ToolCall{ID: "c1", Name: "t", Arguments: json.RawMessage(`{"query":"go"}`)}, false},
		{"empty arguments normalize", conversation.ToolCall{ID: "c2", Name: "t"}, false},
		{"array is rejected", conversation.ToolCall{ID: "c3", Name: "t", Arguments: json.RawMessage(`[1,2]`)}, true},
		{"garbage is rejected", conversation.ToolCall{ID: "c4", Name: "t", Arguments: json.RawMessage(`{"broken`)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := tool.ParseCall(tt.call)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed.ID != tt.call.ID || parsed.Name != tt.call.Name {
				t.Errorf("parsed call lost identity: %+v", parsed)
			}
			if len(parsed.Arguments) == 0 {
				t.Error("arguments should never be empty after parse")
			}
		})
	}
}

func TestIsOutbound(t *testing.T) {
	if !tool.IsOutbound("mailroom_send_email") {
		t.Error("mailroom_send_email should be outbound")
	}
	if tool.IsOutbound("web_search") {
		t.Error("web_search should not be outbound")
	}
}
