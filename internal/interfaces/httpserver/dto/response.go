// Package dto defines the admin API payloads.
package dto

import (
	"encoding/json"
	"time"

	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/tokenusage"
)

// MessagePayload is one history entry as returned to clients.
type MessagePayload struct {
	Sequence   int               `json:"sequence"`
	Role       string            `json:"role"`
	Content    *string           `json:"content"`
	ToolCalls  []ToolCallPayload `json:"tool_calls,omitempty"`
	ToolCallID *string           `json:"tool_call_id,omitempty"`
	ToolName   *string           `json:"tool_name,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ToolCallPayload is a tool invocation recorded on an assistant message.
type ToolCallPayload struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ConversationSummary is the list view of a conversation.
type ConversationSummary struct {
	ID           string                 `json:"id"`
	Status       string                 `json:"status"`
	MessageCount int                    `json:"message_count"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ConversationDetail is the full view including the message history.
type ConversationDetail struct {
	ConversationSummary
	Messages []MessagePayload `json:"messages"`
}

// ConversationList is the paged list response.
type ConversationList struct {
	Object string                `json:"object"`
	Data   []ConversationSummary `json:"data"`
	Total  int64                 `json:"total"`
}

// RunUsagePayload is one run's token accounting.
type RunUsagePayload struct {
	ID               int64     `json:"id"`
	Model            string    `json:"model"`
	Mode             string    `json:"mode"`
	Outcome          string    `json:"outcome"`
	Cycles           int       `json:"cycles"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	EstimatedCostUSD string    `json:"estimated_cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageReport aggregates a conversation's runs.
type UsageReport struct {
	ConversationID        string            `json:"conversation_id"`
	Runs                  []RunUsagePayload `json:"runs"`
	TotalPromptTokens     int64             `json:"total_prompt_tokens"`
	TotalCompletionTokens int64             `json:"total_completion_tokens"`
	TotalTokens           int64             `json:"total_tokens"`
	EstimatedCostUSD      string            `json:"estimated_cost_usd"`
	RunCount              int64             `json:"run_count"`
}

// SummaryFromDomain maps a conversation to its list view.
func SummaryFromDomain(conv *conversation.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:           conv.PublicID,
		Status:       string(conv.Status),
		MessageCount: len(conv.Messages),
		Metadata:     conv.Metadata,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
}

// DetailFromDomain maps a conversation to its full view.
func DetailFromDomain(conv *conversation.Conversation) ConversationDetail {
	detail := ConversationDetail{
		ConversationSummary: SummaryFromDomain(conv),
		Messages:            make([]MessagePayload, len(conv.Messages)),
	}
	for i, msg := range conv.Messages {
		detail.Messages[i] = messageFromDomain(msg)
	}
	return detail
}

func messageFromDomain(msg conversation.Message) MessagePayload {
	payload := MessagePayload{
		Sequence:   msg.Sequence,
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		ToolName:   msg.ToolName,
		CreatedAt:  msg.CreatedAt,
	}
	for _, call := range msg.ToolCalls {
		payload.ToolCalls = append(payload.ToolCalls, ToolCallPayload{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	return payload
}

// UsageReportFromDomain maps runs and their summary to the report payload.
func UsageReportFromDomain(conversationID string, runs []tokenusage.RunUsage, summary *tokenusage.UsageSummary) UsageReport {
	report := UsageReport{
		ConversationID:        conversationID,
		Runs:                  make([]RunUsagePayload, len(runs)),
		TotalPromptTokens:     summary.TotalPromptTokens,
		TotalCompletionTokens: summary.TotalCompletionTokens,
		TotalTokens:           summary.TotalTokens,
		EstimatedCostUSD:      summary.EstimatedCostUSD.StringFixed(6),
		RunCount:              summary.RunCount,
	}
	for i, run := range runs {
		report.Runs[i] = RunUsagePayload{
			ID:               run.ID,
			Model:            run.Model,
			Mode:             run.Mode,
			Outcome:          run.Outcome,
			Cycles:           run.Cycles,
			PromptTokens:     run.PromptTokens,
			CompletionTokens: run.CompletionTokens,
			TotalTokens:      run.TotalTokens,
			EstimatedCostUSD: run.EstimatedCostUSD.StringFixed(6),
			CreatedAt:        run.CreatedAt,
		}
	}
	return report
}
