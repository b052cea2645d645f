package tokenusage

import (
	"context"
	"time"
)

// Repository defines the interface for token usage data access.
type Repository interface {
	// Create stores a new run usage record.
	Create(ctx context.Context, usage *RunUsage) error

	// GetByConversation retrieves the usage records of one conversation,
	// newest first.
	GetByConversation(ctx context.Context, conversationID string) ([]RunUsage, error)

	// GetConversationSummary aggregates a conversation's usage.
	GetConversationSummary(ctx context.Context, conversationID string) (*UsageSummary, error)

	// GetTotalUsage aggregates platform usage within a date range.
	GetTotalUsage(ctx context.Context, startDate, endDate time.Time) (*UsageSummary, error)
}
