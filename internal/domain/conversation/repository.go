package conversation

import (
	"context"
	"errors"
	"time"

	"mailagent/internal/domain/status"
)

// ErrNotFound is returned when no conversation exists for the given id.
var ErrNotFound = errors.New("conversation not found")

// ListFilter narrows List results.
type ListFilter struct {
	Status status.Status
	Limit  int
	Offset int
}

// Repository persists conversations and their message histories.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	FindByPublicID(ctx context.Context, publicID string) (*Conversation, error)
	// AppendMessages persists new messages onto an existing history.
	AppendMessages(ctx context.Context, publicID string, msgs []Message) error
	// ReplaceMessages swaps the stored history wholesale. Used for the reset
	// to a single system message when a task completes.
	ReplaceMessages(ctx context.Context, publicID string, msgs []Message) error
	UpdateStatus(ctx context.Context, publicID string, s status.Status) error
	List(ctx context.Context, filter ListFilter) ([]*Conversation, int64, error)
	Delete(ctx context.Context, publicID string) error
	// DeleteIdleSince removes conversations untouched since the cutoff.
	// Returns the number of conversations removed.
	DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}
