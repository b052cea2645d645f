package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/mail"
	"mailagent/internal/infrastructure/metrics"
	"mailagent/internal/infrastructure/queue"
)

// Worker drains inbound email jobs from the queue.
type Worker struct {
	id           int
	queue        queue.JobQueue
	agentService agent.Service
	pollInterval time.Duration
	taskTimeout  time.Duration
	log          zerolog.Logger
	stopChan     chan struct{}
}

// NewWorker creates a new background worker.
func NewWorker(
	id int,
	jobs queue.JobQueue,
	agentService agent.Service,
	pollInterval time.Duration,
	taskTimeout time.Duration,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		id:           id,
		queue:        jobs,
		agentService: agentService,
		pollInterval: pollInterval,
		taskTimeout:  taskTimeout,
		log:          log.With().Int("worker_id", id).Str("component", "worker").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start begins processing jobs from the queue.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped by context")
			return
		case <-w.stopChan:
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			w.processNextJob(ctx)
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	close(w.stopChan)
}

func (w *Worker) processNextJob(ctx context.Context) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to dequeue job")
		return
	}
	if job == nil {
		return // No jobs available
	}

	w.log.Info().
		Uint("job_id", job.ID).
		Str("email_id", job.EmailID).
		Str("conversation_id", job.ConversationID).
		Int("attempts", job.Attempts).
		Msg("processing inbound email")

	// Bookkeeping must outlive a canceled run context, otherwise a shutdown
	// strands the job in processing.
	bookCtx := context.WithoutCancel(ctx)

	email, err := job.DecodeEmail()
	if err != nil {
		w.fail(bookCtx, job, fmt.Errorf("decode job payload: %w", err))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	if err := w.runJob(jobCtx, email); err != nil {
		w.fail(bookCtx, job, err)
		return
	}

	if err := w.queue.MarkCompleted(bookCtx, job); err != nil {
		w.log.Error().Err(err).Uint("job_id", job.ID).Msg("failed to mark job completed")
	}
	metrics.RecordBackgroundJob("completed")
	w.log.Info().
		Uint("job_id", job.ID).
		Str("email_id", job.EmailID).
		Msg("inbound email processed")
}

// runJob confines a panicking tool handler to the failing job; the worker
// itself must survive.
func (w *Worker) runJob(ctx context.Context, email *mail.InboundEmail) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.agentService.HandleInbound(ctx, *email)
}

func (w *Worker) fail(ctx context.Context, job *queue.Job, jobErr error) {
	w.log.Error().
		Err(jobErr).
		Uint("job_id", job.ID).
		Str("email_id", job.EmailID).
		Msg("inbound email processing failed")

	if markErr := w.queue.MarkFailed(ctx, job, jobErr); markErr != nil {
		w.log.Error().Err(markErr).Uint("job_id", job.ID).Msg("failed to mark job failed")
	}
	metrics.RecordBackgroundJob("failed")
}
