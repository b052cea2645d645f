// Package webhook delivers run lifecycle notifications to an operator
// configured URL.
package webhook

import (
	"context"
	"time"
)

// Service handles webhook notifications for run events.
type Service interface {
	// NotifyRunFinished reports a terminal run outcome for a conversation.
	NotifyRunFinished(ctx context.Context, event RunEvent) error
}

// ErrorDetails contains machine readable error info.
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunEvent describes how a response run ended.
type RunEvent struct {
	ConversationID string        `json:"conversation_id"`
	Outcome        string        `json:"outcome"`
	Cycles         int           `json:"cycles"`
	Error          *ErrorDetails `json:"error,omitempty"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Payload is the structure posted to the webhook URL.
type Payload struct {
	Event          string        `json:"event"` // "run.completed", "run.waiting_reply", "run.cycle_limited" or "run.failed"
	ConversationID string        `json:"conversation_id"`
	Outcome        string        `json:"outcome"`
	Cycles         int           `json:"cycles"`
	Error          *ErrorDetails `json:"error,omitempty"`
	FinishedAt     string        `json:"finished_at"`
}
