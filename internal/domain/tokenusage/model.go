// Package tokenusage tracks model token consumption per response run.
package tokenusage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunUsage is one response run's token consumption.
type RunUsage struct {
	ID               int64           `json:"id"`
	ConversationID   string          `json:"conversation_id"`
	Model            string          `json:"model"`
	Mode             string          `json:"mode"`
	Outcome          string          `json:"outcome"`
	Cycles           int             `json:"cycles"`
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
	TotalTokens      int64           `json:"total_tokens"`
	EstimatedCostUSD decimal.Decimal `json:"estimated_cost_usd"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Pricing is the per-million-token price of the configured model.
type Pricing struct {
	PromptPerMTok     decimal.Decimal
	CompletionPerMTok decimal.Decimal
}

// DefaultPricing matches gpt-4o list prices in USD per million tokens.
func DefaultPricing() Pricing {
	return Pricing{
		PromptPerMTok:     decimal.NewFromFloat(2.50),
		CompletionPerMTok: decimal.NewFromFloat(10.00),
	}
}

var million = decimal.NewFromInt(1_000_000)

// CalculateCost estimates the USD cost of a run from its token counts.
func CalculateCost(pricing Pricing, promptTokens, completionTokens int64) decimal.Decimal {
	promptCost := decimal.NewFromInt(promptTokens).Mul(pricing.PromptPerMTok).Div(million)
	completionCost := decimal.NewFromInt(completionTokens).Mul(pricing.CompletionPerMTok).Div(million)
	return promptCost.Add(completionCost).Round(6)
}

// UsageSummary aggregates run usage over a conversation or a period.
type UsageSummary struct {
	TotalPromptTokens     int64           `json:"total_prompt_tokens"`
	TotalCompletionTokens int64           `json:"total_completion_tokens"`
	TotalTokens           int64           `json:"total_tokens"`
	EstimatedCostUSD      decimal.Decimal `json:"estimated_cost_usd"`
	RunCount              int64           `json:"run_count"`
}
