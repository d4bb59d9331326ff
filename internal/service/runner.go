package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"revq.app/revq/common/logger"
	"revq.app/revq/internal/analysis"
	"revq.app/revq/internal/diag"
	"revq.app/revq/internal/model"
	"revq.app/revq/internal/review"
)

// FileProvider materializes the file set under review.
type FileProvider interface {
	FilesForPullRequest(ctx context.Context, repo model.Repository, number int) ([]model.ReviewFile, error)
}

// ResultStore persists finished results. *store.Store satisfies it.
type ResultStore interface {
	SaveAnalysisResult(ctx context.Context, result *model.AnalysisResult) error
}

// JobRunner executes one claimed job end to end: fetch files, analyze,
// persist, post, trace. It is handed to the worker pool; one instance is
// shared by all workers.
type JobRunner struct {
	provider     FileProvider
	orchestrator *analysis.Orchestrator
	tracer       *diag.Tracer
	results      ResultStore
	poster       review.Poster
}

func NewJobRunner(provider FileProvider, orchestrator *analysis.Orchestrator, tracer *diag.Tracer, results ResultStore, poster review.Poster) *JobRunner {
	return &JobRunner{
		provider:     provider,
		orchestrator: orchestrator,
		tracer:       tracer,
		results:      results,
		poster:       poster,
	}
}

// Run processes one job. A file-provider failure marks the job failed and
// still produces a minimal result so the review does not silently vanish;
// analysis itself never fails the job (strategy failures are isolated
// upstream).
func (r *JobRunner) Run(ctx context.Context, job *model.AnalysisJob) {
	sc := logger.StartSpan(ctx, "worker.run_job", trace.WithSpanKind(trace.SpanKindInternal))
	defer sc.End()
	ctx = sc.Context()

	repo := job.Repository.String()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:     "revq.service.runner",
		JobID:         &job.ID,
		CorrelationID: &job.CorrelationID,
		Repository:    &repo,
	})

	claimedAt := time.Now()
	cid := r.tracer.Start("pull_request_review", job.CorrelationID)
	defer r.tracer.End(ctx, cid)

	r.tracer.AddTrace(cid, "job_claimed", map[string]any{
		"job_id":   job.ID,
		"priority": job.Priority,
		"target":   job.TargetNumber,
	})

	files, err := r.provider.FilesForPullRequest(ctx, job.Repository, job.TargetNumber)
	if err != nil {
		sc.RecordError(err)
		r.tracer.AddError(cid, "file_fetch_failure", err.Error())
		r.finish(ctx, cid, r.failedResult(job, claimedAt, "fetching files: "+err.Error()))
		return
	}
	job.Files = files
	r.tracer.AddTrace(cid, "files_fetched", map[string]any{"count": len(files)})

	result := r.orchestrator.Analyze(ctx, job)
	r.tracer.AddTrace(cid, "analysis_finished", map[string]any{
		"issues":      result.Metrics.TotalIssues,
		"duration_ms": result.DurationMs,
	})
	for name, outcome := range result.Metrics.StrategyResults {
		if outcome.Failed() {
			r.tracer.AddError(cid, "strategy_failure", name+": "+outcome.Err)
		}
	}

	r.finish(ctx, cid, result)
}

// finish persists and posts the result, failed or not. Persistence and
// posting troubles are logged and traced, never fatal to the worker.
func (r *JobRunner) finish(ctx context.Context, cid string, result *model.AnalysisResult) {
	if err := r.results.SaveAnalysisResult(ctx, result); err != nil {
		slog.ErrorContext(ctx, "failed to persist analysis result", "error", err)
		r.tracer.AddError(cid, "persistence_failure", err.Error())
	}

	if err := r.poster.Post(ctx, result); err != nil {
		slog.ErrorContext(ctx, "failed to post review", "error", err)
		r.tracer.AddError(cid, "posting_failure", err.Error())
		return
	}
	r.tracer.AddTrace(cid, "review_posted", map[string]any{"issues": result.Metrics.TotalIssues})
}

// failedResult measures from claim time so its duration is comparable with
// the analysis duration of successful jobs; queue wait is not included.
func (r *JobRunner) failedResult(job *model.AnalysisJob, claimedAt time.Time, reason string) *model.AnalysisResult {
	return &model.AnalysisResult{
		JobID:      job.ID,
		Repository: job.Repository,
		Target:     job.TargetNumber,
		Metrics: model.AnalysisMetrics{
			IssuesByLevel:    map[string]int{},
			IssuesByCategory: map[string]int{},
			StrategyResults:  map[string]model.StrategyOutcome{},
		},
		DurationMs: time.Since(claimedAt).Milliseconds(),
		Failed:     true,
		FailReason: reason,
	}
}
