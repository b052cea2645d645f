package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailagent/internal/domain/agent"
	"mailagent/internal/infrastructure/metrics"
	"mailagent/internal/infrastructure/queue"
)

// depthReportInterval is how often the pool samples the queue backlog for
// the queue depth gauge.
const depthReportInterval = 15 * time.Second

// Pool manages multiple background workers.
type Pool struct {
	workers      []*Worker
	queue        queue.JobQueue
	agentService agent.Service
	workerCount  int
	pollInterval time.Duration
	taskTimeout  time.Duration
	log          zerolog.Logger
	wg           sync.WaitGroup
	stopChan     chan struct{}
}

// Config contains worker pool configuration.
type Config struct {
	WorkerCount  int
	PollInterval time.Duration
	TaskTimeout  time.Duration
}

// NewPool creates a new worker pool.
func NewPool(
	jobs queue.JobQueue,
	agentService agent.Service,
	cfg Config,
	log zerolog.Logger,
) *Pool {
	return &Pool{
		queue:        jobs,
		agentService: agentService,
		workerCount:  cfg.WorkerCount,
		pollInterval: cfg.PollInterval,
		taskTimeout:  cfg.TaskTimeout,
		log:          log.With().Str("component", "worker-pool").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start initializes and starts all workers.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info().Int("worker_count", p.workerCount).Msg("starting worker pool")

	p.workers = make([]*Worker, p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		worker := NewWorker(
			i+1,
			p.queue,
			p.agentService,
			p.pollInterval,
			p.taskTimeout,
			p.log,
		)
		p.workers[i] = worker

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(ctx)
		}(worker)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportDepth(ctx)
	}()

	p.log.Info().Msg("worker pool started")

	return nil
}

// Stop gracefully shuts down all workers.
func (p *Pool) Stop() {
	p.log.Info().Msg("stopping worker pool")

	close(p.stopChan)
	for _, worker := range p.workers {
		worker.Stop()
	}

	// Wait for all workers to finish
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("all workers stopped gracefully")
	case <-time.After(30 * time.Second):
		p.log.Warn().Msg("worker pool shutdown timed out")
	}
}

// QueueDepth returns the current queue backlog.
func (p *Pool) QueueDepth(ctx context.Context) (int64, error) {
	return p.queue.Depth(ctx)
}

// reportDepth keeps the queue depth gauge current while the pool runs.
func (p *Pool) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(depthReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			depth, err := p.queue.Depth(ctx)
			if err != nil {
				p.log.Error().Err(err).Msg("failed to sample queue depth")
				continue
			}
			metrics.SetQueueDepth(int(depth))
		}
	}
}
