// Package conversation defines the persistent chat thread driven by inbound email.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"mailagent/internal/domain/status"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the assistant. Arguments are
// kept raw; they are parsed (and validated) at execution time.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a single entry in a conversation history.
//
// Content is nullable: assistant messages that only carry tool calls have no
// text. ToolCalls is set on assistant messages only. ToolCallID and ToolName
// are set on tool messages and link the result to the assistant call that
// requested it.
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID *string    `json:"tool_call_id,omitempty"`
	ToolName   *string    `json:"tool_name,omitempty"`
	Sequence   int        `json:"sequence"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Text returns the message content or the empty string when unset.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Conversation is an append-only message history keyed by the mail thread it
// belongs to. Messages[0] is always the system prompt; the only operation
// ever allowed to drop messages is the explicit reset back to that single
// system message when the agent declares the task done.
type Conversation struct {
	PublicID  string         `json:"public_id"`
	Status    status.Status  `json:"status"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New creates a conversation seeded with the system prompt.
func New(publicID, systemPrompt string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		PublicID:  publicID,
		Status:    status.StatusActive,
		Messages:  []Message{NewSystemMessage(systemPrompt)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSystemMessage builds the seeding system message.
func NewSystemMessage(prompt string) Message {
	return Message{
		Role:      RoleSystem,
		Content:   &prompt,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   &content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantMessage builds an assistant message carrying optional text and
// optional tool calls.
func NewAssistantMessage(content *string, toolCalls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToolResultMessage builds a tool message answering the call with the
// given id.
func NewToolResultMessage(callID, toolName, output string) Message {
	return Message{
		Role:       RoleTool,
		Content:    &output,
		ToolCallID: &callID,
		ToolName:   &toolName,
		CreatedAt:  time.Now().UTC(),
	}
}

// Append adds messages to the history, assigning sequence numbers.
func (c *Conversation) Append(msgs ...Message) {
	next := len(c.Messages)
	for i := range msgs {
		msgs[i].Sequence = next + i
	}
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = time.Now().UTC()
}

// TruncateToSystem drops everything except the seeding system message. Used
// when the agent declares the task done and the thread starts fresh.
func (c *Conversation) TruncateToSystem() {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages = c.Messages[:1]
	c.UpdatedAt = time.Now().UTC()
}

// SystemPrompt returns the text of the seeding system message.
func (c *Conversation) SystemPrompt() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Text()
}

// LastMessage returns the newest message, or nil for an empty history.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Validate checks the structural invariants of the history: the first
// message is the system prompt, tool calls only appear on assistant
// messages, and every tool message answers a call made by the assistant
// message preceding it.
func (c *Conversation) Validate() error {
	if len(c.Messages) == 0 {
		return fmt.Errorf("conversation %s has no messages", c.PublicID)
	}
	if c.Messages[0].Role != RoleSystem {
		return fmt.Errorf("conversation %s does not start with a system message", c.PublicID)
	}

	for i, msg := range c.Messages {
		if len(msg.ToolCalls) > 0 && msg.Role != RoleAssistant {
			return fmt.Errorf("message %d: tool calls on %s message", i, msg.Role)
		}
		if msg.Role != RoleTool {
			continue
		}
		if msg.ToolCallID == nil {
			return fmt.Errorf("message %d: tool message without tool_call_id", i)
		}
		if !precededByCall(c.Messages[:i], *msg.ToolCallID) {
			return fmt.Errorf("message %d: tool message answers unknown call %s", i, *msg.ToolCallID)
		}
	}
	return nil
}

// precededByCall walks backwards to the nearest assistant message and checks
// it issued the given call id. Only tool results may sit between the
// assistant message and the result being validated.
func precededByCall(prior []Message, callID string) bool {
	for i := len(prior) - 1; i >= 0; i-- {
		switch prior[i].Role {
		case RoleTool:
			continue
		case RoleAssistant:
			for _, call := range prior[i].ToolCalls {
				if call.ID == callID {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}
