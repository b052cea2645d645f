// Package crontab schedules the background maintenance sweeps: conversation
// retention and recovery of jobs stranded by a crashed worker.
package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"mailagent/internal/config"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/infrastructure/metrics"
	"mailagent/internal/infrastructure/queue"
)

const (
	// cronJobTimeout bounds each sweep execution.
	cronJobTimeout = 5 * time.Minute
	// staleSlack is added to the task timeout before a processing job is
	// considered abandoned; a job younger than that may still be running.
	staleSlack = 5 * time.Minute
)

// Crontab owns the scheduled maintenance jobs.
type Crontab struct {
	ctab          *crontab.Crontab
	conversations conversation.Repository
	jobs          queue.JobQueue
	cfg           *config.Config
	log           zerolog.Logger
}

// NewCrontab wires the maintenance sweeps.
func NewCrontab(
	conversations conversation.Repository,
	jobs queue.JobQueue,
	cfg *config.Config,
	log zerolog.Logger,
) *Crontab {
	return &Crontab{
		ctab:          crontab.New(),
		conversations: conversations,
		jobs:          jobs,
		cfg:           cfg,
		log:           log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the sweeps and blocks until the context is cancelled.
func (c *Crontab) Run(ctx context.Context) error {
	// execute once on server start so a restart recovers stranded jobs
	// immediately
	c.sweepStaleJobs(ctx)

	if err := c.ctab.AddJob("*/5 * * * *", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), cronJobTimeout)
		defer cancel()
		c.sweepStaleJobs(jobCtx)
	}); err != nil {
		return fmt.Errorf("schedule stale job sweep: %w", err)
	}

	if c.cfg.RetentionDays > 0 {
		if err := c.ctab.AddJob("0 3 * * *", func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), cronJobTimeout)
			defer cancel()
			c.sweepIdleConversations(jobCtx)
		}); err != nil {
			return fmt.Errorf("schedule retention sweep: %w", err)
		}
		c.log.Info().Int("retention_days", c.cfg.RetentionDays).Msg("conversation retention scheduled")
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweepIdleConversations(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -c.cfg.RetentionDays)
	removed, err := c.conversations.DeleteIdleSince(ctx, cutoff)
	if err != nil {
		c.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if removed > 0 {
		c.log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("idle conversations removed")
	}
}

func (c *Crontab) sweepStaleJobs(ctx context.Context) {
	staleAfter := c.cfg.BackgroundTaskTimeout + staleSlack
	if _, err := c.jobs.RequeueStale(ctx, staleAfter); err != nil {
		c.log.Error().Err(err).Msg("stale job sweep failed")
		return
	}

	// The worker pool keeps this gauge current while it runs; refreshing it
	// here covers requeued jobs between pool samples.
	if depth, err := c.jobs.Depth(ctx); err == nil {
		metrics.SetQueueDepth(int(depth))
	}
}
