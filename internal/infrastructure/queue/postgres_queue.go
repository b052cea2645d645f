package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mailagent/internal/domain/mail"
	"mailagent/internal/infrastructure/database/entities"
)

const (
	// maxAttempts bounds how often a job is retried before it is parked.
	maxAttempts = 3
	// retryBackoff is multiplied by the attempt count for the next delay.
	retryBackoff = 30 * time.Second
)

// claimJobSQL moves the oldest available job to processing and returns it in
// one statement, so the claim and the status flip cannot race between
// workers.
const claimJobSQL = `
UPDATE inbound_jobs
SET status = 'processing', attempts = attempts + 1, started_at = now(), updated_at = now()
WHERE id = (
	SELECT id FROM inbound_jobs
	WHERE status = 'queued' AND available_at <= now()
	ORDER BY queued_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, conversation_id, email_id, payload, attempts, queued_at`

// PostgresQueue implements JobQueue using the inbound_jobs table.
type PostgresQueue struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed job queue.
func NewPostgresQueue(db *gorm.DB, log zerolog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:  db,
		log: log.With().Str("component", "postgres-queue").Logger(),
	}
}

var _ JobQueue = (*PostgresQueue)(nil)

// Enqueue stores an inbound email for background processing.
func (q *PostgresQueue) Enqueue(ctx context.Context, email *mail.InboundEmail) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal inbound email %s: %w", email.ID, err)
	}

	row := &entities.InboundJob{
		ConversationID: email.ConversationID(),
		EmailID:        email.ID,
		Payload:        datatypes.JSON(payload),
		Status:         entities.JobStatusQueued,
		AvailableAt:    time.Now(),
	}
	if err := q.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("enqueue inbound email %s: %w", email.ID, err)
	}

	q.log.Debug().
		Uint("job_id", row.ID).
		Str("email_id", email.ID).
		Str("conversation_id", row.ConversationID).
		Msg("inbound email queued")
	return nil
}

// Dequeue claims the next available job using FOR UPDATE SKIP LOCKED.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Job, error) {
	var row struct {
		ID             uint
		ConversationID string
		EmailID        string
		Payload        datatypes.JSON
		Attempts       int
		QueuedAt       time.Time
	}

	if err := q.db.WithContext(ctx).Raw(claimJobSQL).Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("claim inbound job: %w", err)
	}
	if row.ID == 0 {
		return nil, nil // No jobs available
	}

	return &Job{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		EmailID:        row.EmailID,
		Payload:        json.RawMessage(row.Payload),
		Attempts:       row.Attempts,
		QueuedAt:       row.QueuedAt,
	}, nil
}

// MarkCompleted records that a job finished successfully.
func (q *PostgresQueue) MarkCompleted(ctx context.Context, job *Job) error {
	now := time.Now()
	err := q.db.WithContext(ctx).
		Model(&entities.InboundJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":       entities.JobStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error
	if err != nil {
		return fmt.Errorf("mark job %d completed: %w", job.ID, err)
	}
	return nil
}

// MarkFailed requeues the job with a backoff while attempts remain, and
// parks it as failed once they run out.
func (q *PostgresQueue) MarkFailed(ctx context.Context, job *Job, jobErr error) error {
	now := time.Now()
	detail, _ := json.Marshal(map[string]string{"error": jobErr.Error()})

	updates := map[string]any{
		"error":      datatypes.JSON(detail),
		"updated_at": now,
	}
	if job.Attempts < maxAttempts {
		delay := time.Duration(job.Attempts) * retryBackoff
		updates["status"] = entities.JobStatusQueued
		updates["available_at"] = now.Add(delay)
		q.log.Warn().
			Uint("job_id", job.ID).
			Int("attempts", job.Attempts).
			Dur("retry_in", delay).
			Err(jobErr).
			Msg("inbound job failed, requeued")
	} else {
		updates["status"] = entities.JobStatusFailed
		updates["failed_at"] = now
		q.log.Error().
			Uint("job_id", job.ID).
			Int("attempts", job.Attempts).
			Err(jobErr).
			Msg("inbound job failed permanently")
	}

	err := q.db.WithContext(ctx).
		Model(&entities.InboundJob{}).
		Where("id = ?", job.ID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", job.ID, err)
	}
	return nil
}

// RequeueStale recovers jobs a crashed worker left in processing. Jobs with
// attempts left go back to queued; the rest are parked as failed.
func (q *PostgresQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now()
	cutoff := now.Add(-olderThan)

	requeued := q.db.WithContext(ctx).
		Model(&entities.InboundJob{}).
		Where("status = ? AND started_at < ? AND attempts < ?",
			entities.JobStatusProcessing, cutoff, maxAttempts).
		Updates(map[string]any{
			"status":       entities.JobStatusQueued,
			"available_at": now,
			"updated_at":   now,
		})
	if requeued.Error != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", requeued.Error)
	}

	parked := q.db.WithContext(ctx).
		Model(&entities.InboundJob{}).
		Where("status = ? AND started_at < ? AND attempts >= ?",
			entities.JobStatusProcessing, cutoff, maxAttempts).
		Updates(map[string]any{
			"status":     entities.JobStatusFailed,
			"failed_at":  now,
			"updated_at": now,
		})
	if parked.Error != nil {
		return requeued.RowsAffected, fmt.Errorf("park stale jobs: %w", parked.Error)
	}

	if requeued.RowsAffected > 0 {
		q.log.Warn().Int64("count", requeued.RowsAffected).Msg("requeued stale processing jobs")
	}
	if parked.RowsAffected > 0 {
		q.log.Error().Int64("count", parked.RowsAffected).Msg("stale jobs exhausted their attempts")
	}
	return requeued.RowsAffected, nil
}

// Depth counts jobs still waiting to be claimed, including those delayed by
// a retry backoff.
func (q *PostgresQueue) Depth(ctx context.Context) (int64, error) {
	var depth int64
	err := q.db.WithContext(ctx).
		Model(&entities.InboundJob{}).
		Where("status = ?", entities.JobStatusQueued).
		Count(&depth).Error
	if err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return depth, nil
}
