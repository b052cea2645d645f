// Package queue provides the durable inbound email queue. The webhook
// handler enqueues each accepted delivery and the background workers drain
// the queue, so a restart never loses an email that was already acknowledged
// to the provider.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"mailagent/internal/domain/mail"
)

// Job is one queued inbound email delivery.
type Job struct {
	ID             uint
	ConversationID string
	EmailID        string
	Payload        json.RawMessage
	Attempts       int
	QueuedAt       time.Time
}

// DecodeEmail unmarshals the stored webhook payload back into its domain form.
func (j *Job) DecodeEmail() (*mail.InboundEmail, error) {
	var email mail.InboundEmail
	if err := json.Unmarshal(j.Payload, &email); err != nil {
		return nil, err
	}
	return &email, nil
}

// JobQueue defines the interface for inbound email processing.
type JobQueue interface {
	// Enqueue stores an inbound email for background processing.
	Enqueue(ctx context.Context, email *mail.InboundEmail) error

	// Dequeue claims the next available job using SELECT FOR UPDATE SKIP
	// LOCKED so concurrent workers never pick the same job. Returns nil
	// when the queue is empty.
	Dequeue(ctx context.Context) (*Job, error)

	// MarkCompleted records that a job finished successfully.
	MarkCompleted(ctx context.Context, job *Job) error

	// MarkFailed records a failure. Jobs under the attempt limit are
	// requeued with a backoff; the rest are parked as failed.
	MarkFailed(ctx context.Context, job *Job, jobErr error) error

	// RequeueStale returns jobs stuck in processing (a crashed worker never
	// finished them) to the queue, honoring the attempt limit.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// Depth counts the jobs still waiting to be claimed.
	Depth(ctx context.Context) (int64, error)
}
