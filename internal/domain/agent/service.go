package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/mail"
	"mailagent/internal/domain/status"
	"mailagent/internal/domain/tokenusage"
	"mailagent/internal/infrastructure/metrics"
	"mailagent/internal/infrastructure/observability"
	"mailagent/internal/webhook"
)

// Locker serializes runs per conversation. Acquire blocks until the lock for
// the given conversation is held and returns the release function; callers
// must always release, typically via defer.
type Locker interface {
	Acquire(ctx context.Context, conversationID string) (func(), error)
}

// AttachmentStore persists inbound email attachments. Enabled reports whether
// a backing store is configured; Upload returns the stored object's key.
type AttachmentStore interface {
	Enabled() bool
	Upload(ctx context.Context, conversationID, filename, contentType string, content []byte) (string, error)
}

// Service processes inbound email events end to end.
type Service interface {
	// HandleInbound runs the response loop for one inbound email. It blocks
	// until the run reaches a terminal outcome and returns the run's fatal
	// error, if any.
	HandleInbound(ctx context.Context, email mail.InboundEmail) error

	// GetConversation returns one conversation with its full history.
	GetConversation(ctx context.Context, publicID string) (*conversation.Conversation, error)

	// ListConversations returns conversations matching the filter plus the
	// total count.
	ListConversations(ctx context.Context, filter conversation.ListFilter) ([]*conversation.Conversation, int64, error)

	// DeleteConversation removes a conversation and its history.
	DeleteConversation(ctx context.Context, publicID string) error
}

// ServiceImpl provides the domain implementation.
type ServiceImpl struct {
	conversations conversation.Repository
	engine        *Engine
	locker        Locker
	usage         *tokenusage.Service
	notifier      webhook.Service
	attachments   AttachmentStore
	systemPrompt  string
	log           zerolog.Logger
}

// NewService wires dependencies. attachments may be nil when no object store
// is configured.
func NewService(
	conversations conversation.Repository,
	engine *Engine,
	locker Locker,
	usage *tokenusage.Service,
	notifier webhook.Service,
	attachments AttachmentStore,
	systemPrompt string,
	log zerolog.Logger,
) *ServiceImpl {
	return &ServiceImpl{
		conversations: conversations,
		engine:        engine,
		locker:        locker,
		usage:         usage,
		notifier:      notifier,
		attachments:   attachments,
		systemPrompt:  systemPrompt,
		log:           log.With().Str("component", "agent-service").Logger(),
	}
}

// HandleInbound runs the response loop for one inbound email.
func (s *ServiceImpl) HandleInbound(ctx context.Context, email mail.InboundEmail) error {
	convID := email.ConversationID()
	if convID == "" {
		return agenterrors.New(agenterrors.ErrCodeQueue, "inbound email has no id", agenterrors.SeverityFatal)
	}
	log := s.log.With().Str("conversation_id", convID).Str("email_id", email.ID).Logger()

	ctx, span := observability.StartRunSpan(ctx, convID, email.ID, string(s.engine.cfg.Mode))
	defer span.End()

	release, err := s.locker.Acquire(ctx, convID)
	if err != nil {
		return agenterrors.WrapFatal(err, agenterrors.ErrCodeQueue, "acquire conversation lock")
	}
	defer release()

	conv, err := s.loadOrSeed(ctx, convID)
	if err != nil {
		return err
	}

	userMsg := conversation.NewUserMessage(s.buildPrompt(ctx, conv.PublicID, email, log))
	conv.Append(userMsg)
	if err := s.conversations.AppendMessages(ctx, conv.PublicID, []conversation.Message{userMsg}); err != nil {
		return agenterrors.WrapFatal(err, agenterrors.ErrCodePersistence, "append user message").
			WithRunContext(convID, 0)
	}
	stored := len(conv.Messages)

	checkpoint := func(cpCtx context.Context) error {
		if len(conv.Messages) <= stored {
			return nil
		}
		if err := s.conversations.AppendMessages(cpCtx, conv.PublicID, conv.Messages[stored:]); err != nil {
			return err
		}
		stored = len(conv.Messages)
		return nil
	}

	started := time.Now()
	result, runErr := s.engine.Run(ctx, RunParams{Conversation: conv, Checkpoint: checkpoint})
	s.finishRun(ctx, conv, stored, result, runErr, log)
	metrics.RecordRun(string(s.engine.cfg.Mode), string(result.Outcome), result.Cycles, time.Since(started))
	observability.RecordError(span, runErr)

	return runErr
}

// loadOrSeed fetches the conversation or creates one seeded with the system
// prompt. A conversation parked in a non-active status is reactivated: every
// new inbound mail reopens its thread.
func (s *ServiceImpl) loadOrSeed(ctx context.Context, convID string) (*conversation.Conversation, error) {
	conv, err := s.conversations.FindByPublicID(ctx, convID)
	if errors.Is(err, conversation.ErrNotFound) {
		conv = conversation.New(convID, s.systemPrompt)
		if err := s.conversations.Create(ctx, conv); err != nil {
			return nil, agenterrors.WrapFatal(err, agenterrors.ErrCodePersistence, "create conversation").
				WithRunContext(convID, 0)
		}
		return conv, nil
	}
	if err != nil {
		return nil, agenterrors.WrapFatal(err, agenterrors.ErrCodePersistence, "fetch conversation").
			WithRunContext(convID, 0)
	}

	if conv.Status != status.StatusActive {
		next, terr := conv.Status.TransitionTo(status.StatusActive)
		if terr != nil {
			return nil, agenterrors.WrapFatal(terr, agenterrors.ErrCodePersistence, "reactivate conversation").
				WithRunContext(convID, 0)
		}
		if err := s.conversations.UpdateStatus(ctx, convID, next); err != nil {
			return nil, agenterrors.WrapFatal(err, agenterrors.ErrCodePersistence, "reactivate conversation").
				WithRunContext(convID, 0)
		}
		conv.Status = next
	}
	return conv, nil
}

// buildPrompt renders the email into the user message, storing attachments
// and appending their object keys when a store is configured.
func (s *ServiceImpl) buildPrompt(ctx context.Context, convID string, email mail.InboundEmail, log zerolog.Logger) string {
	prompt := email.Prompt()
	if s.attachments == nil || !s.attachments.Enabled() || len(email.Attachments) == 0 {
		return prompt
	}

	var storedFiles []string
	for _, att := range email.Attachments {
		if len(att.Content) == 0 {
			continue
		}
		key, err := s.attachments.Upload(ctx, convID, att.Filename, att.ContentType, att.Content)
		if err != nil {
			log.Warn().Err(err).Str("filename", att.Filename).Msg("attachment upload failed")
			continue
		}
		storedFiles = append(storedFiles, fmt.Sprintf("- %s (stored at %s)", att.Filename, key))
	}
	if len(storedFiles) == 0 {
		return prompt
	}
	return prompt + "\n\nAttachments:\n" + strings.Join(storedFiles, "\n")
}

// finishRun persists the tail of the history, moves the conversation to the
// outcome's status, records usage and notifies the run webhook. Failures
// here are logged, not returned: the run outcome already stands.
func (s *ServiceImpl) finishRun(ctx context.Context, conv *conversation.Conversation, stored int, result *RunResult, runErr error, log zerolog.Logger) {
	if result.Truncated {
		if err := s.conversations.ReplaceMessages(ctx, conv.PublicID, conv.Messages); err != nil {
			log.Error().Err(err).Msg("reset history after done")
		}
	} else if len(conv.Messages) > stored {
		if err := s.conversations.AppendMessages(ctx, conv.PublicID, conv.Messages[stored:]); err != nil {
			log.Error().Err(err).Msg("persist final messages")
		}
	}

	newStatus := result.Outcome.Status()
	if next, err := conv.Status.TransitionTo(newStatus); err != nil {
		log.Error().Err(err).Str("from", string(conv.Status)).Str("to", string(newStatus)).Msg("invalid status transition")
	} else if err := s.conversations.UpdateStatus(ctx, conv.PublicID, next); err != nil {
		log.Error().Err(err).Str("status", string(next)).Msg("update conversation status")
	} else {
		conv.Status = next
	}

	if s.usage != nil && (result.Usage.TotalTokens > 0 || result.Cycles > 0) {
		rec := &tokenusage.RunUsage{
			ConversationID:   conv.PublicID,
			Model:            s.engine.cfg.Model,
			Mode:             string(s.engine.cfg.Mode),
			Outcome:          string(result.Outcome),
			Cycles:           result.Cycles,
			PromptTokens:     int64(result.Usage.PromptTokens),
			CompletionTokens: int64(result.Usage.CompletionTokens),
		}
		if err := s.usage.RecordRun(ctx, rec); err != nil {
			log.Error().Err(err).Msg("record token usage")
		}
	}

	event := webhook.RunEvent{
		ConversationID: conv.PublicID,
		Outcome:        string(result.Outcome),
		Cycles:         result.Cycles,
		FinishedAt:     time.Now().UTC(),
	}
	if runErr != nil {
		var re *agenterrors.RunError
		if errors.As(runErr, &re) {
			event.Error = &webhook.ErrorDetails{Code: re.Code, Message: re.Message}
		} else {
			event.Error = &webhook.ErrorDetails{Code: agenterrors.ErrCodeQueue, Message: runErr.Error()}
		}
	}
	if err := s.notifier.NotifyRunFinished(ctx, event); err != nil {
		log.Warn().Err(err).Msg("run webhook notification failed")
	}
}

// GetConversation returns one conversation with its full history.
func (s *ServiceImpl) GetConversation(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	return s.conversations.FindByPublicID(ctx, publicID)
}

// ListConversations returns conversations matching the filter plus the total
// count.
func (s *ServiceImpl) ListConversations(ctx context.Context, filter conversation.ListFilter) ([]*conversation.Conversation, int64, error) {
	return s.conversations.List(ctx, filter)
}

// DeleteConversation removes a conversation and its history.
func (s *ServiceImpl) DeleteConversation(ctx context.Context, publicID string) error {
	return s.conversations.Delete(ctx, publicID)
}
