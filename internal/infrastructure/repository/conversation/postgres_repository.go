package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "mailagent/internal/domain/conversation"
	"mailagent/internal/domain/status"
	"mailagent/internal/infrastructure/database/entities"
	"mailagent/internal/infrastructure/metrics"
)

// Repository persists conversations and their message histories in Postgres.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a conversation repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Repository = (*Repository)(nil)

// Create inserts the conversation record together with its initial messages.
func (r *Repository) Create(ctx context.Context, conv *domain.Conversation) error {
	entity := entities.NewSchemaConversation(conv)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entity).Error; err != nil {
			return err
		}
		return insertMessages(tx, entity.ID, conv.Messages)
	})
	if err != nil {
		return fmt.Errorf("create conversation %s: %w", conv.PublicID, err)
	}

	conv.CreatedAt = entity.CreatedAt
	conv.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByPublicID fetches a conversation and its full message history.
func (r *Repository) FindByPublicID(ctx context.Context, publicID string) (*domain.Conversation, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("conversation_find", time.Since(start).Seconds())
	}()

	var entity entities.Conversation
	if err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("public_id = ?", publicID).
		First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", publicID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch conversation %s: %w", publicID, err)
	}

	return entity.EtoD(), nil
}

// AppendMessages persists new messages onto an existing history.
func (r *Repository) AppendMessages(ctx context.Context, publicID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("conversation_append", time.Since(start).Seconds())
	}()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := lookupID(tx, publicID)
		if err != nil {
			return err
		}
		if err := insertMessages(tx, id, msgs); err != nil {
			return err
		}
		return touch(tx, id)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("conversation %s: %w", publicID, domain.ErrNotFound)
		}
		return fmt.Errorf("append messages to conversation %s: %w", publicID, err)
	}
	return nil
}

// ReplaceMessages swaps the stored history wholesale. The delete and the
// insert run in one transaction so a crash never leaves a half-replaced
// history behind.
func (r *Repository) ReplaceMessages(ctx context.Context, publicID string, msgs []domain.Message) error {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("conversation_replace", time.Since(start).Seconds())
	}()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := lookupID(tx, publicID)
		if err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).
			Delete(&entities.ConversationMessage{}).Error; err != nil {
			return err
		}
		if err := insertMessages(tx, id, msgs); err != nil {
			return err
		}
		return touch(tx, id)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("conversation %s: %w", publicID, domain.ErrNotFound)
		}
		return fmt.Errorf("replace messages of conversation %s: %w", publicID, err)
	}
	return nil
}

// UpdateStatus transitions the conversation to the given status.
func (r *Repository) UpdateStatus(ctx context.Context, publicID string, s status.Status) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("public_id = ?", publicID).
		Updates(map[string]any{
			"status":     string(s),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update status of conversation %s: %w", publicID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", publicID, domain.ErrNotFound)
	}
	return nil
}

// List returns conversations matching the filter, newest activity first,
// along with the total count before paging.
func (r *Repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Conversation, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.Conversation{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []entities.Conversation
	if err := query.
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}

	conversations := make([]*domain.Conversation, len(rows))
	for i := range rows {
		conversations[i] = rows[i].EtoD()
	}
	return conversations, total, nil
}

// Delete removes a conversation; the schema cascades to its messages.
func (r *Repository) Delete(ctx context.Context, publicID string) error {
	result := r.db.WithContext(ctx).
		Where("public_id = ?", publicID).
		Delete(&entities.Conversation{})
	if result.Error != nil {
		return fmt.Errorf("delete conversation %s: %w", publicID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", publicID, domain.ErrNotFound)
	}
	return nil
}

// DeleteIdleSince removes conversations whose last activity predates the
// cutoff and reports how many were removed.
func (r *Repository) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&entities.Conversation{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete idle conversations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// lookupID resolves a public ID to the internal row ID inside a transaction.
func lookupID(tx *gorm.DB, publicID string) (uint, error) {
	var entity entities.Conversation
	if err := tx.Select("id").Where("public_id = ?", publicID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return entity.ID, nil
}

// insertMessages writes domain messages as rows of the given conversation.
func insertMessages(tx *gorm.DB, conversationID uint, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]*entities.ConversationMessage, len(msgs))
	for i := range msgs {
		rows[i] = entities.NewSchemaMessage(conversationID, msgs[i])
	}
	return tx.Create(&rows).Error
}

// touch bumps updated_at so retention and list ordering see the activity.
func touch(tx *gorm.DB, conversationID uint) error {
	return tx.Model(&entities.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", time.Now()).Error
}
