package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Inbound job statuses.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// InboundJob is a queued inbound email awaiting an agent run. Workers claim
// rows with FOR UPDATE SKIP LOCKED so multiple replicas can drain the same
// table.
type InboundJob struct {
	ID             uint           `gorm:"primaryKey"`
	ConversationID string         `gorm:"type:varchar(128);index:idx_inbound_job_conversation;not null"`
	EmailID        string         `gorm:"type:varchar(128);not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	Status         string         `gorm:"type:varchar(32);index:idx_inbound_job_status;not null;default:'queued'"`
	Attempts       int            `gorm:"not null;default:0"`
	Error          datatypes.JSON `gorm:"type:jsonb"`
	QueuedAt       time.Time      `gorm:"autoCreateTime"`
	AvailableAt    time.Time      `gorm:"not null"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	FailedAt       *time.Time
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for InboundJob.
func (InboundJob) TableName() string {
	return "inbound_jobs"
}
