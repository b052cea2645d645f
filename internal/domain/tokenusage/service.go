package tokenusage

import (
	"context"
	"time"
)

// Service provides token usage business logic.
type Service struct {
	repo    Repository
	pricing Pricing
}

// NewService creates a new token usage service.
func NewService(repo Repository, pricing Pricing) *Service {
	return &Service{repo: repo, pricing: pricing}
}

// RecordRun records one response run's usage, filling in derived fields.
func (s *Service) RecordRun(ctx context.Context, usage *RunUsage) error {
	if usage.EstimatedCostUSD.IsZero() {
		usage.EstimatedCostUSD = CalculateCost(s.pricing, usage.PromptTokens, usage.CompletionTokens)
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	return s.repo.Create(ctx, usage)
}

// ConversationUsage returns a conversation's runs and their aggregate.
func (s *Service) ConversationUsage(ctx context.Context, conversationID string) ([]RunUsage, *UsageSummary, error) {
	runs, err := s.repo.GetByConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	summary, err := s.repo.GetConversationSummary(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return runs, summary, nil
}

// PlatformUsage aggregates usage across all conversations for a period.
func (s *Service) PlatformUsage(ctx context.Context, startDate, endDate time.Time) (*UsageSummary, error) {
	return s.repo.GetTotalUsage(ctx, startDate, endDate)
}
