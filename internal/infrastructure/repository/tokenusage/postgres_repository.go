// Package tokenusage persists per-run token accounting in Postgres.
package tokenusage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "mailagent/internal/domain/tokenusage"
	"mailagent/internal/infrastructure/database/entities"
)

// Repository stores and aggregates run usage records.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a token usage repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Repository = (*Repository)(nil)

const summaryColumns = "COALESCE(SUM(prompt_tokens), 0) AS total_prompt_tokens, " +
	"COALESCE(SUM(completion_tokens), 0) AS total_completion_tokens, " +
	"COALESCE(SUM(total_tokens), 0) AS total_tokens, " +
	"COALESCE(SUM(estimated_cost_usd), 0) AS estimated_cost_usd, " +
	"COUNT(*) AS run_count"

// summaryRow mirrors the aggregate select list.
type summaryRow struct {
	TotalPromptTokens     int64
	TotalCompletionTokens int64
	TotalTokens           int64
	EstimatedCostUSD      decimal.Decimal
	RunCount              int64
}

func (row summaryRow) toDomain() *domain.UsageSummary {
	return &domain.UsageSummary{
		TotalPromptTokens:     row.TotalPromptTokens,
		TotalCompletionTokens: row.TotalCompletionTokens,
		TotalTokens:           row.TotalTokens,
		EstimatedCostUSD:      row.EstimatedCostUSD,
		RunCount:              row.RunCount,
	}
}

// Create stores a new run usage record.
func (r *Repository) Create(ctx context.Context, usage *domain.RunUsage) error {
	entity := entities.NewSchemaRunUsage(usage)
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create run usage for conversation %s: %w", usage.ConversationID, err)
	}
	usage.ID = int64(entity.ID)
	usage.CreatedAt = entity.CreatedAt
	return nil
}

// GetByConversation retrieves the usage records of one conversation, newest first.
func (r *Repository) GetByConversation(ctx context.Context, conversationID string) ([]domain.RunUsage, error) {
	var rows []entities.RunUsage
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch run usage of conversation %s: %w", conversationID, err)
	}

	usages := make([]domain.RunUsage, len(rows))
	for i := range rows {
		usages[i] = rows[i].EtoD()
	}
	return usages, nil
}

// GetConversationSummary aggregates a conversation's usage.
func (r *Repository) GetConversationSummary(ctx context.Context, conversationID string) (*domain.UsageSummary, error) {
	var row summaryRow
	if err := r.db.WithContext(ctx).
		Model(&entities.RunUsage{}).
		Select(summaryColumns).
		Where("conversation_id = ?", conversationID).
		Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("summarize usage of conversation %s: %w", conversationID, err)
	}
	return row.toDomain(), nil
}

// GetTotalUsage aggregates platform usage within a date range.
func (r *Repository) GetTotalUsage(ctx context.Context, startDate, endDate time.Time) (*domain.UsageSummary, error) {
	var row summaryRow
	if err := r.db.WithContext(ctx).
		Model(&entities.RunUsage{}).
		Select(summaryColumns).
		Where("created_at >= ? AND created_at < ?", startDate, endDate).
		Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("summarize usage between %s and %s: %w",
			startDate.Format(time.RFC3339), endDate.Format(time.RFC3339), err)
	}
	return row.toDomain(), nil
}
