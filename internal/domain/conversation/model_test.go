package conversation_test

import (
	"encoding/json"
	"testing"

	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/status"
)

func TestNew_SeedsSystemMessage(t *testing.T) {
	conv := conversation.New("thrd_123", "you are a mail agent")

	if conv.PublicID != "thrd_123" {
		t.Errorf("PublicID = %q, want thrd_123", conv.PublicID)
	}
	if conv.Status != status.StatusActive {
		t.Errorf("Status = %q, want active", conv.Status)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != conversation.RoleSystem {
		t.Errorf("seed role = %q, want system", conv.Messages[0].Role)
	}
	if conv.SystemPrompt() != "you are a mail agent" {
		t.Errorf("SystemPrompt() = %q", conv.SystemPrompt())
	}
}

func TestConversation_AppendAssignsSequence(t *testing.T) {
	conv := conversation.New("thrd_123", "sys")
	conv.Append(conversation.NewUserMessage("hello"))
	conv.Append(
		conversation.NewAssistantMessage(nil, []conversation.ToolCall{{ID: "call_1", Name: "web_search", Arguments: json.RawMessage(`{}`)}}),
		conversation.NewToolResultMessage("call_1", "web_search", "results"),
	)

	if len(conv.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(conv.Messages))
	}
	for i, msg := range conv.Messages {
		if msg.Sequence != i {
			t.Errorf("message %d has sequence %d", i, msg.Sequence)
		}
	}
}

func TestConversation_TruncateToSystem(t *testing.T) {
	conv := conversation.New("thrd_123", "sys")
	conv.Append(conversation.NewUserMessage("do the thing"))
	conv.Append(conversation.NewAssistantMessage(strPtr("DONE"), nil))

	conv.TruncateToSystem()

	if len(conv.Messages) != 1 {
		t.Fatalf("expected exactly 1 message after truncation, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != conversation.RoleSystem {
		t.Errorf("remaining message role = %q, want system", conv.Messages[0].Role)
	}
	if conv.SystemPrompt() != "sys" {
		t.Errorf("system prompt lost in truncation: %q", conv.SystemPrompt())
	}
}

func TestConversation_Validate(t *testing.T) {
	valid := conversation.New("thrd_1", "sys")
	valid.Append(conversation.NewUserMessage("hi"))
	valid.Append(conversation.NewAssistantMessage(nil, []conversation.ToolCall{
		{ID: "call_1", Name: "web_search", Arguments: json.RawMessage(`{"query":"go"}`)},
		{ID: "call_2", Name: "mailroom_send_email", Arguments: json.RawMessage(`{}`)},
	}))
	valid.Append(conversation.NewToolResultMessage("call_1", "web_search", "out"))
	valid.Append(conversation.NewToolResultMessage("call_2", "mailroom_send_email", "sent"))

	if err := valid.Validate(); err != nil {
		t.Errorf("valid history rejected: %v", err)
	}

	tests := []struct {
		name  string
		build func() *conversation.Conversation
	}{
		{
			"missing system seed",
			func() *conversation.Conversation {
				c := conversation.New("thrd_2", "sys")
				c.Messages = c.Messages[1:]
				c.Append(conversation.NewUserMessage("hi"))
				return c
			},
		},
		{
			"tool result without preceding call",
			func() *conversation.Conversation {
				c := conversation.New("thrd_3", "sys")
				c.Append(conversation.NewUserMessage("hi"))
				c.Append(conversation.NewToolResultMessage("call_x", "web_search", "out"))
				return c
			},
		},
		{
			"tool result answering a different call id",
			func() *conversation.Conversation {
				c := conversation.New("thrd_4", "sys")
				c.Append(conversation.NewAssistantMessage(nil, []conversation.ToolCall{{ID: "call_1", Name: "web_search"}}))
				c.Append(conversation.NewToolResultMessage("call_other", "web_search", "out"))
				return c
			},
		},
		{
			"tool calls on a user message",
			func() *conversation.Conversation {
				c := conversation.New("thrd_5", "sys")
				msg := conversation.NewUserMessage("hi")
				msg.ToolCalls = []conversation.ToolCall{{ID: "call_1", Name: "web_search"}}
				c.Append(msg)
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build().Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func strPtr(s string) *string {
	return &s
}
