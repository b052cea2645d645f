package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"mailagent/internal/domain/tokenusage"
)

// RunUsage records token consumption for a single agent run.
type RunUsage struct {
	ID               uint            `gorm:"primaryKey"`
	ConversationID   string          `gorm:"type:varchar(128);index:idx_run_usage_conversation;not null"`
	Model            string          `gorm:"type:varchar(128);not null"`
	Mode             string          `gorm:"type:varchar(32);not null"`
	Outcome          string          `gorm:"type:varchar(32);not null"`
	Cycles           int             `gorm:"not null;default:0"`
	PromptTokens     int64           `gorm:"not null;default:0"`
	CompletionTokens int64           `gorm:"not null;default:0"`
	TotalTokens      int64           `gorm:"not null;default:0"`
	EstimatedCostUSD decimal.Decimal `gorm:"type:numeric(12,6);not null;default:0"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index:idx_run_usage_created_at"`
}

// TableName specifies the table name for RunUsage.
func (RunUsage) TableName() string {
	return "run_usages"
}

// NewSchemaRunUsage converts a domain usage record to its entity.
func NewSchemaRunUsage(u *tokenusage.RunUsage) *RunUsage {
	return &RunUsage{
		ConversationID:   u.ConversationID,
		Model:            u.Model,
		Mode:             u.Mode,
		Outcome:          u.Outcome,
		Cycles:           u.Cycles,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		EstimatedCostUSD: u.EstimatedCostUSD,
		CreatedAt:        u.CreatedAt,
	}
}

// EtoD converts the entity to the domain usage record.
func (r *RunUsage) EtoD() tokenusage.RunUsage {
	return tokenusage.RunUsage{
		ID:               int64(r.ID),
		ConversationID:   r.ConversationID,
		Model:            r.Model,
		Mode:             r.Mode,
		Outcome:          r.Outcome,
		Cycles:           r.Cycles,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		EstimatedCostUSD: r.EstimatedCostUSD,
		CreatedAt:        r.CreatedAt,
	}
}
