package pipeline

import (
	"context"
	"log/slog"
	"time"

	"revq.app/revq/internal/model"
)

// Config sizes the pipeline. Zero values fall back to defaults.
type Config struct {
	Workers         int
	QueueDepth      int
	DrainOnShutdown bool // finish queued jobs before stopping instead of dropping them
}

// Pipeline owns the queue and worker pool as an explicit object with a
// Start/Shutdown lifecycle. Constructing it has no side effects; nothing
// runs until Start.
type Pipeline struct {
	cfg   Config
	queue *TaskQueue
	pool  *WorkerPool
}

func New(cfg Config, runner JobRunner) *Pipeline {
	queue := NewTaskQueue(cfg.QueueDepth)
	return &Pipeline{
		cfg:   cfg,
		queue: queue,
		pool:  NewWorkerPool(queue, runner, cfg.Workers),
	}
}

// Enqueue submits a job for analysis. ErrQueueFull signals backpressure and
// ErrQueueClosed signals shutdown; both are the caller's to surface.
func (p *Pipeline) Enqueue(job *model.AnalysisJob) error {
	job.EnqueuedAt = time.Now()
	job.Priority = model.ClampPriority(job.Priority)
	return p.queue.Enqueue(job)
}

// QueueDepth reports queued, unclaimed jobs.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Len()
}

func (p *Pipeline) Start(ctx context.Context) {
	p.pool.Start(ctx)
}

// Shutdown stops the pipeline. In-flight jobs always finish. Queued jobs
// are either drained (DrainOnShutdown) or dropped with a logged count —
// a deliberate, observable choice either way. Returns once all workers
// exited or ctx expires.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.queue.Close()

	if !p.cfg.DrainOnShutdown {
		dropped := p.queue.Discard()
		if len(dropped) > 0 {
			ids := make([]int64, len(dropped))
			for i, job := range dropped {
				ids[i] = job.ID
			}
			slog.WarnContext(ctx, "dropping queued jobs on shutdown",
				"dropped", len(dropped),
				"job_ids", ids)
		}
	} else if depth := p.queue.Len(); depth > 0 {
		slog.InfoContext(ctx, "draining queued jobs before shutdown", "queued", depth)
	}

	done := make(chan struct{})
	go func() {
		p.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.InfoContext(ctx, "pipeline stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
