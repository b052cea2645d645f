// Package llm defines the gateway contract for chat completions.
package llm

import (
	"context"

	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/tool"
)

// Usage carries token counts reported by the provider for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across the cycles of a run.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest is a single model call: the full conversation history
// plus the schemas of every tool the model may invoke.
type CompletionRequest struct {
	Model    string
	Messages []conversation.Message
	Tools    []tool.Definition
}

// CompletionResponse is the decoded model reply. Exactly one of the two
// shapes is meaningful: a non-empty ToolCalls list, or plain text Content.
type CompletionResponse struct {
	Content   string
	ToolCalls []conversation.ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Provider turns a conversation history and tool schemas into the model's
// next move. Implementations own transport concerns (auth, retries on
// transient failures); a returned error is fatal to the calling run.
type Provider interface {
	CreateChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
