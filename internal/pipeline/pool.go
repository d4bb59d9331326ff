package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"revq.app/revq/common/logger"
	"revq.app/revq/internal/model"
)

// JobRunner executes one claimed job. Implementations own the job for its
// whole lifetime; the pool never shares a job between workers.
type JobRunner interface {
	Run(ctx context.Context, job *model.AnalysisJob)
}

// WorkerPool is a fixed set of workers looping dequeue → run → loop.
// Shutdown is cooperative: workers finish their current job and exit once
// Dequeue returns the closed sentinel.
type WorkerPool struct {
	queue  *TaskQueue
	runner JobRunner
	size   int
	wg     sync.WaitGroup
}

func NewWorkerPool(queue *TaskQueue, runner JobRunner, size int) *WorkerPool {
	if size <= 0 {
		size = 5
	}
	return &WorkerPool{queue: queue, runner: runner, size: size}
}

// Start launches the workers. It does not block.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	slog.InfoContext(ctx, "worker pool started", "workers", p.size)
}

// Wait blocks until every worker has exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	defer p.wg.Done()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "revq.pipeline.worker"})

	for {
		job, ok := p.queue.Dequeue()
		if !ok {
			slog.InfoContext(ctx, "worker exiting", "worker", id)
			return
		}
		p.runSafe(ctx, id, job)
	}
}

// runSafe isolates one job: a panic inside the runner must not take down
// the worker loop.
func (p *WorkerPool) runSafe(ctx context.Context, id int, job *model.AnalysisJob) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in job runner",
				"panic", fmt.Sprint(r),
				"worker", id,
				"job_id", job.ID)
		}
	}()

	ctx = logger.WithLogFields(ctx, logger.LogFields{JobID: &job.ID})
	p.runner.Run(ctx, job)
}
