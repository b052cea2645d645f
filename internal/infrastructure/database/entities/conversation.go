// Package entities holds the GORM schema types backing the domain models.
package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/status"
)

// Conversation represents the database schema for a mail-driven conversation.
type Conversation struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_conversation_updated_at"`

	PublicID string         `gorm:"type:varchar(128);uniqueIndex;not null"`
	Status   string         `gorm:"type:varchar(32);index:idx_conversation_status;not null;default:'active'"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	Messages []ConversationMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage stores one history entry for a conversation.
type ConversationMessage struct {
	ID             uint           `gorm:"primaryKey"`
	ConversationID uint           `gorm:"uniqueIndex:idx_message_conversation_sequence;not null"`
	Sequence       int            `gorm:"uniqueIndex:idx_message_conversation_sequence;not null"`
	Role           string         `gorm:"type:varchar(32);not null"`
	Content        *string        `gorm:"type:text"`
	ToolCalls      datatypes.JSON `gorm:"type:jsonb"`
	ToolCallID     *string        `gorm:"type:varchar(64)"`
	ToolName       *string        `gorm:"type:varchar(128)"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ConversationMessage.
func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

// NewSchemaConversation converts a domain conversation to its entity.
// Messages are converted separately because appends and replacements manage
// them row by row.
func NewSchemaConversation(conv *conversation.Conversation) *Conversation {
	metadata := datatypes.JSON(nil)
	if len(conv.Metadata) > 0 {
		if raw, err := json.Marshal(conv.Metadata); err == nil {
			metadata = datatypes.JSON(raw)
		}
	}
	return &Conversation{
		PublicID: conv.PublicID,
		Status:   string(conv.Status),
		Metadata: metadata,
	}
}

// NewSchemaMessage converts a domain message for the given conversation row.
func NewSchemaMessage(conversationID uint, msg conversation.Message) *ConversationMessage {
	entity := &ConversationMessage{
		ConversationID: conversationID,
		Sequence:       msg.Sequence,
		Role:           string(msg.Role),
		Content:        msg.Content,
		ToolCallID:     msg.ToolCallID,
		ToolName:       msg.ToolName,
		CreatedAt:      msg.CreatedAt,
	}
	if len(msg.ToolCalls) > 0 {
		if raw, err := json.Marshal(msg.ToolCalls); err == nil {
			entity.ToolCalls = datatypes.JSON(raw)
		}
	}
	return entity
}

// EtoD converts the entity (with preloaded messages) to the domain model.
func (c *Conversation) EtoD() *conversation.Conversation {
	conv := &conversation.Conversation{
		PublicID:  c.PublicID,
		Status:    status.Status(c.Status),
		Messages:  make([]conversation.Message, len(c.Messages)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if len(c.Metadata) > 0 {
		_ = json.Unmarshal(c.Metadata, &conv.Metadata)
	}
	for i := range c.Messages {
		conv.Messages[i] = c.Messages[i].EtoD()
	}
	return conv
}

// EtoD converts the message entity to the domain message.
func (m *ConversationMessage) EtoD() conversation.Message {
	msg := conversation.Message{
		Role:       conversation.Role(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		Sequence:   m.Sequence,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.ToolCalls) > 0 {
		_ = json.Unmarshal(m.ToolCalls, &msg.ToolCalls)
	}
	return msg
}
