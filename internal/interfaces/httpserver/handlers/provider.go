// Package handlers holds the gin HTTP handlers.
package handlers

import (
	"github.com/rs/zerolog"

	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/tokenusage"
	"mailagent/internal/infrastructure/queue"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Inbound      *InboundHandler
	Conversation *ConversationHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(
	agentService agent.Service,
	usageService *tokenusage.Service,
	jobs queue.JobQueue,
	attachments AttachmentDownloader,
	webhookSecret string,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Inbound:      NewInboundHandler(jobs, webhookSecret, log),
		Conversation: NewConversationHandler(agentService, usageService, attachments, log),
	}
}
