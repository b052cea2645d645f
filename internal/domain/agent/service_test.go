package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/llm"
	"mailagent/internal/domain/mail"
	"mailagent/internal/domain/status"
	"mailagent/internal/domain/tokenusage"
	"mailagent/internal/webhook"
)

// mockConversationRepo is a mock implementation of conversation.Repository.
type mockConversationRepo struct {
	CreateFunc          func(ctx context.Context, conv *conversation.Conversation) error
	FindByPublicIDFunc  func(ctx context.Context, publicID string) (*conversation.Conversation, error)
	AppendMessagesFunc  func(ctx context.Context, publicID string, msgs []conversation.Message) error
	ReplaceMessagesFunc func(ctx context.Context, publicID string, msgs []conversation.Message) error
	UpdateStatusFunc    func(ctx context.Context, publicID string, s status.Status) error
	ListFunc            func(ctx context.Context, filter conversation.ListFilter) ([]*conversation.Conversation, int64, error)
	DeleteFunc          func(ctx context.Context, publicID string) error
	DeleteIdleSinceFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockConversationRepo) Create(ctx context.Context, conv *conversation.Conversation) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, conv)
	}
	return nil
}

func (m *mockConversationRepo) FindByPublicID(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	if m.FindByPublicIDFunc != nil {
		return m.FindByPublicIDFunc(ctx, publicID)
	}
	return nil, conversation.ErrNotFound
}

func (m *mockConversationRepo) AppendMessages(ctx context.Context, publicID string, msgs []conversation.Message) error {
	if m.AppendMessagesFunc != nil {
		return m.AppendMessagesFunc(ctx, publicID, msgs)
	}
	return nil
}

func (m *mockConversationRepo) ReplaceMessages(ctx context.Context, publicID string, msgs []conversation.Message) error {
	if m.ReplaceMessagesFunc != nil {
		return m.ReplaceMessagesFunc(ctx, publicID, msgs)
	}
	return nil
}

func (m *mockConversationRepo) UpdateStatus(ctx context.Context, publicID string, s status.Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, publicID, s)
	}
	return nil
}

func (m *mockConversationRepo) List(ctx context.Context, filter conversation.ListFilter) ([]*conversation.Conversation, int64, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (m *mockConversationRepo) Delete(ctx context.Context, publicID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, publicID)
	}
	return nil
}

func (m *mockConversationRepo) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteIdleSinceFunc != nil {
		return m.DeleteIdleSinceFunc(ctx, cutoff)
	}
	return 0, nil
}

// mockLocker records lock usage.
type mockLocker struct {
	acquired []string
	released int
}

func (m *mockLocker) Acquire(ctx context.Context, conversationID string) (func(), error) {
	m.acquired = append(m.acquired, conversationID)
	return func() { m.released++ }, nil
}

// mockNotifier records webhook events.
type mockNotifier struct {
	events []webhook.RunEvent
}

func (m *mockNotifier) NotifyRunFinished(ctx context.Context, event webhook.RunEvent) error {
	m.events = append(m.events, event)
	return nil
}

// mockUsageRepo records token usage rows.
type mockUsageRepo struct {
	records []*tokenusage.RunUsage
}

func (m *mockUsageRepo) Create(ctx context.Context, usage *tokenusage.RunUsage) error {
	m.records = append(m.records, usage)
	return nil
}

func (m *mockUsageRepo) GetByConversation(ctx context.Context, conversationID string) ([]tokenusage.RunUsage, error) {
	return nil, nil
}

func (m *mockUsageRepo) GetConversationSummary(ctx context.Context, conversationID string) (*tokenusage.UsageSummary, error) {
	return &tokenusage.UsageSummary{}, nil
}

func (m *mockUsageRepo) GetTotalUsage(ctx context.Context, startDate, endDate time.Time) (*tokenusage.UsageSummary, error) {
	return &tokenusage.UsageSummary{}, nil
}

// mockAttachmentStore records uploads.
type mockAttachmentStore struct {
	enabled bool
	uploads []string
	err     error
}

func (m *mockAttachmentStore) Enabled() bool { return m.enabled }

func (m *mockAttachmentStore) Upload(ctx context.Context, conversationID, filename, contentType string, content []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	key := "conversations/" + conversationID + "/" + filename
	m.uploads = append(m.uploads, key)
	return key, nil
}

type serviceFixture struct {
	repo      *mockConversationRepo
	locker    *mockLocker
	notifier  *mockNotifier
	usageRepo *mockUsageRepo
	service   *agent.ServiceImpl
}

func newServiceFixture(t *testing.T, provider llm.Provider, mode agent.Mode, repo *mockConversationRepo, store agent.AttachmentStore) *serviceFixture {
	t.Helper()
	var executed []string
	reg := testRegistry(t, &executed)
	eng := agent.NewEngine(provider, reg, agent.EngineConfig{Mode: mode, Model: "gpt-4o", MaxCycles: 10}, zerolog.Nop())

	f := &serviceFixture{
		repo:      repo,
		locker:    &mockLocker{},
		notifier:  &mockNotifier{},
		usageRepo: &mockUsageRepo{},
	}
	usage := tokenusage.NewService(f.usageRepo, tokenusage.DefaultPricing())
	f.service = agent.NewService(repo, eng, f.locker, usage, f.notifier, store, "system prompt", zerolog.Nop())
	return f
}

func strPtr(s string) *string { return &s }

func TestHandleInboundSeedsNewConversation(t *testing.T) {
	var created *conversation.Conversation
	var appended [][]conversation.Message
	var statuses []status.Status

	repo := &mockConversationRepo{
		CreateFunc: func(ctx context.Context, conv *conversation.Conversation) error {
			created = conv
			return nil
		},
		AppendMessagesFunc: func(ctx context.Context, publicID string, msgs []conversation.Message) error {
			appended = append(appended, msgs)
			return nil
		},
		UpdateStatusFunc: func(ctx context.Context, publicID string, s status.Status) error {
			statuses = append(statuses, s)
			return nil
		},
	}

	provider := scriptedProvider(t, &llm.CompletionResponse{
		ToolCalls: []conversation.ToolCall{toolCall("call-1", "mailroom_send_email", `{}`)},
		Usage:     llm.Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	})
	f := newServiceFixture(t, provider, agent.ModeToolCall, repo, nil)

	email := mail.InboundEmail{
		ID:          "email-1",
		FromAddress: mail.Address{Address: "user@example.com", Name: "User"},
		Subject:     "Research request",
		Body:        "Please research X and report back.",
	}
	if err := f.service.HandleInbound(context.Background(), email); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("expected a new conversation to be created")
	}
	if created.PublicID != "email-1" {
		t.Errorf("expected conversation id email-1, got %s", created.PublicID)
	}
	if created.SystemPrompt() != "system prompt" {
		t.Errorf("conversation not seeded with the system prompt: %q", created.SystemPrompt())
	}

	if len(appended) < 1 {
		t.Fatal("expected the user message to be persisted")
	}
	first := appended[0]
	if len(first) != 1 || first[0].Role != conversation.RoleUser {
		t.Fatalf("first append should be the user message, got %+v", first)
	}
	if !strings.Contains(first[0].Text(), "Please research X and report back.") {
		t.Errorf("user message missing the email body: %q", first[0].Text())
	}
	if !strings.Contains(first[0].Text(), "user@example.com") {
		t.Errorf("user message missing the sender: %q", first[0].Text())
	}

	if len(statuses) != 1 || statuses[0] != status.StatusCompleted {
		t.Errorf("expected single status update to completed, got %v", statuses)
	}
	if f.locker.released != 1 {
		t.Errorf("lock released %d times, want 1", f.locker.released)
	}

	if len(f.notifier.events) != 1 {
		t.Fatalf("expected one webhook event, got %d", len(f.notifier.events))
	}
	if f.notifier.events[0].Outcome != string(agent.OutcomeDone) {
		t.Errorf("webhook outcome = %s, want %s", f.notifier.events[0].Outcome, agent.OutcomeDone)
	}

	if len(f.usageRepo.records) != 1 {
		t.Fatalf("expected one usage record, got %d", len(f.usageRepo.records))
	}
	rec := f.usageRepo.records[0]
	if rec.ConversationID != "email-1" || rec.PromptTokens != 50 || rec.CompletionTokens != 10 {
		t.Errorf("unexpected usage record: %+v", rec)
	}
	if rec.EstimatedCostUSD.IsZero() {
		t.Error("usage record missing the cost estimate")
	}
}

func TestHandleInboundDerivesConversationIDFromThread(t *testing.T) {
	var lookups []string
	repo := &mockConversationRepo{
		FindByPublicIDFunc: func(ctx context.Context, publicID string) (*conversation.Conversation, error) {
			lookups = append(lookups, publicID)
			return nil, conversation.ErrNotFound
		},
	}

	provider := scriptedProvider(t, toolResponse(toolCall("call-1", "mailroom_send_email", `{}`)))
	f := newServiceFixture(t, provider, agent.ModeToolCall, repo, nil)

	email := mail.InboundEmail{
		ID:   "email-9",
		Body: "follow up",
		PreviousEmails: []mail.PreviousEmail{
			{ID: "email-root"},
			{ID: "email-5"},
		},
	}
	if err := f.service.HandleInbound(context.Background(), email); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lookups) != 1 || lookups[0] != "email-root" {
		t.Errorf("expected lookup by thread root id email-root, got %v", lookups)
	}
	if len(f.locker.acquired) != 1 || f.locker.acquired[0] != "email-root" {
		t.Errorf("expected lock on email-root, got %v", f.locker.acquired)
	}
}

func TestHandleInboundResumesWaitingConversation(t *testing.T) {
	existing := conversation.New("email-root", "system prompt")
	existing.Append(conversation.NewUserMessage("original task"))
	existing.Append(conversation.NewAssistantMessage(strPtr("WAIT"), nil))
	existing.Status = status.StatusWaitingReply

	var statuses []status.Status
	repo := &mockConversationRepo{
		FindByPublicIDFunc: func(ctx context.Context, publicID string) (*conversation.Conversation, error) {
			return existing, nil
		},
		UpdateStatusFunc: func(ctx context.Context, publicID string, s status.Status) error {
			statuses = append(statuses, s)
			return nil
		},
	}

	var seen []llm.CompletionRequest
	provider := &mockProvider{
		CreateChatCompletionFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			seen = append(seen, req)
			return textResponse("WAIT"), nil
		},
	}
	f := newServiceFixture(t, provider, agent.ModeDirective, repo, nil)

	email := mail.InboundEmail{
		ID:             "email-7",
		Body:           "here is the answer you asked for",
		PreviousEmails: []mail.PreviousEmail{{ID: "email-root"}},
	}
	if err := f.service.HandleInbound(context.Background(), email); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(statuses) != 2 || statuses[0] != status.StatusActive || statuses[1] != status.StatusWaitingReply {
		t.Errorf("expected reactivation then waiting_reply, got %v", statuses)
	}

	if len(seen) != 1 {
		t.Fatalf("expected one model call, got %d", len(seen))
	}
	// The run resumes from the preserved history plus the new user message.
	msgs := seen[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages sent to the model, got %d", len(msgs))
	}
	if msgs[2].Text() != "WAIT" {
		t.Errorf("preserved WAIT message missing, got %q", msgs[2].Text())
	}
	if !strings.Contains(msgs[3].Text(), "here is the answer you asked for") {
		t.Errorf("new user message missing, got %q", msgs[3].Text())
	}
}

func TestHandleInboundRunFailureMarksConversationFailed(t *testing.T) {
	var statuses []status.Status
	repo := &mockConversationRepo{
		UpdateStatusFunc: func(ctx context.Context, publicID string, s status.Status) error {
			statuses = append(statuses, s)
			return nil
		},
	}

	provider := &mockProvider{
		CreateChatCompletionFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	f := newServiceFixture(t, provider, agent.ModeToolCall, repo, nil)

	err := f.service.HandleInbound(context.Background(), mail.InboundEmail{ID: "email-1", Body: "task"})
	if err == nil {
		t.Fatal("expected the run error to propagate")
	}
	var re *agenterrors.RunError
	if !errors.As(err, &re) || re.Code != agenterrors.ErrCodeModelGateway {
		t.Errorf("expected MODEL_GATEWAY_FAILURE, got %v", err)
	}

	if len(statuses) != 1 || statuses[0] != status.StatusFailed {
		t.Errorf("expected status update to failed, got %v", statuses)
	}
	if f.locker.released != 1 {
		t.Errorf("lock must be released on failure, released %d times", f.locker.released)
	}

	if len(f.notifier.events) != 1 {
		t.Fatalf("expected one webhook event, got %d", len(f.notifier.events))
	}
	event := f.notifier.events[0]
	if event.Outcome != string(agent.OutcomeError) || event.Error == nil || event.Error.Code != agenterrors.ErrCodeModelGateway {
		t.Errorf("unexpected failure event: %+v", event)
	}
}

func TestHandleInboundDoneResetsStoredHistory(t *testing.T) {
	var replaced []conversation.Message
	repo := &mockConversationRepo{
		ReplaceMessagesFunc: func(ctx context.Context, publicID string, msgs []conversation.Message) error {
			replaced = msgs
			return nil
		},
	}

	provider := scriptedProvider(t, textResponse("DONE"))
	f := newServiceFixture(t, provider, agent.ModeDirective, repo, nil)

	if err := f.service.HandleInbound(context.Background(), mail.InboundEmail{ID: "email-1", Body: "task"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(replaced) != 1 || replaced[0].Role != conversation.RoleSystem {
		t.Fatalf("expected stored history reset to a single system message, got %d messages", len(replaced))
	}
}

func TestHandleInboundStoresAttachments(t *testing.T) {
	var userMessage string
	repo := &mockConversationRepo{
		AppendMessagesFunc: func(ctx context.Context, publicID string, msgs []conversation.Message) error {
			if len(msgs) > 0 && msgs[0].Role == conversation.RoleUser && userMessage == "" {
				userMessage = msgs[0].Text()
			}
			return nil
		},
	}

	store := &mockAttachmentStore{enabled: true}
	provider := scriptedProvider(t, toolResponse(toolCall("call-1", "mailroom_send_email", `{}`)))
	f := newServiceFixture(t, provider, agent.ModeToolCall, repo, store)

	email := mail.InboundEmail{
		ID:   "email-1",
		Body: "see attached",
		Attachments: []mail.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF-")},
			{Filename: "remote.bin", ContentType: "application/octet-stream"}, // no content, skipped
		},
	}
	if err := f.service.HandleInbound(context.Background(), email); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.uploads) != 1 || !strings.Contains(store.uploads[0], "report.pdf") {
		t.Errorf("expected one stored attachment, got %v", store.uploads)
	}
	if !strings.Contains(userMessage, "Attachments:") || !strings.Contains(userMessage, store.uploads[0]) {
		t.Errorf("user message does not reference the stored attachment: %q", userMessage)
	}
}
