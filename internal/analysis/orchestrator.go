package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"revq.app/revq/common/logger"
	"revq.app/revq/internal/model"
)

// Config bounds one job's analysis. Zero values fall back to defaults.
type Config struct {
	StrategyTimeout time.Duration // per strategy invocation
	MaxConcurrent   int           // in-flight invocations per job
}

func (c Config) withDefaults() Config {
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = 30 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	return c
}

// Orchestrator fans the strategy×file matrix out concurrently, isolates
// per-strategy failures, and folds everything into one ordered,
// deduplicated AnalysisResult.
type Orchestrator struct {
	registry *Registry
	cfg      Config
}

func NewOrchestrator(registry *Registry, cfg Config) *Orchestrator {
	return &Orchestrator{registry: registry, cfg: cfg.withDefaults()}
}

// invocation is one (file, strategy) cell of the matrix.
type invocation struct {
	file     model.ReviewFile
	strategy Strategy
}

// invocationResult carries one cell's outcome back to the merge step.
type invocationResult struct {
	issues   []model.CodeIssue
	err      error
	timedOut bool
}

// Analyze runs every applicable strategy against every file of the job.
// One strategy failing or timing out never aborts the others or the job.
func (o *Orchestrator) Analyze(ctx context.Context, job *model.AnalysisJob) *model.AnalysisResult {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "revq.analysis.orchestrator"})
	start := time.Now()

	invocations := o.plan(job.Files)
	slog.InfoContext(ctx, "analysis started",
		"files", len(job.Files),
		"invocations", len(invocations))

	results := o.fanOut(ctx, invocations)
	result := o.merge(job, invocations, results)
	result.DurationMs = time.Since(start).Milliseconds()

	slog.InfoContext(ctx, "analysis finished",
		"issues", result.Metrics.TotalIssues,
		"duration_ms", result.DurationMs)
	return result
}

// plan builds the (file, strategy) matrix. Files whose language no strategy
// supports are simply skipped; that is zero issues, not an error.
func (o *Orchestrator) plan(files []model.ReviewFile) []invocation {
	var out []invocation
	for _, f := range files {
		for _, s := range o.registry.ForLanguage(f.Language) {
			out = append(out, invocation{file: f, strategy: s})
		}
	}
	return out
}

// fanOut runs all invocations concurrently, capped by MaxConcurrent so a
// job with many files cannot grow goroutines without bound. Results land in
// a slice indexed by invocation so the later merge is deterministic.
func (o *Orchestrator) fanOut(ctx context.Context, invocations []invocation) []invocationResult {
	results := make([]invocationResult, len(invocations))
	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	done := make(chan int, len(invocations))

	for i, inv := range invocations {
		sem <- struct{}{}
		go func(i int, inv invocation) {
			defer func() { <-sem }()
			results[i] = o.invoke(ctx, inv)
			done <- i
		}(i, inv)
	}

	for range invocations {
		<-done
	}
	return results
}

// invoke runs one strategy against one file under its own timeout. The
// strategy call happens in a child goroutine so a strategy that ignores its
// context cannot hold the job past the deadline; panics are contained here
// and surface as ordinary errors.
func (o *Orchestrator) invoke(ctx context.Context, inv invocation) invocationResult {
	invCtx, cancel := context.WithTimeout(ctx, o.cfg.StrategyTimeout)
	defer cancel()

	type outcome struct {
		issues []model.CodeIssue
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		issues, err := inv.strategy.Analyze(invCtx, inv.file)
		ch <- outcome{issues: issues, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return invocationResult{err: out.err, timedOut: true}
		}
		return invocationResult{issues: out.issues, err: out.err}
	case <-invCtx.Done():
		slog.WarnContext(ctx, "strategy timed out",
			"strategy", inv.strategy.Name(),
			"file", inv.file.Path,
			"timeout", o.cfg.StrategyTimeout)
		return invocationResult{err: invCtx.Err(), timedOut: true}
	}
}

// merge deduplicates on (filePath, lineNumber, message) keeping the first
// occurrence in invocation order, sorts by severity then line, and computes
// the metrics block.
func (o *Orchestrator) merge(job *model.AnalysisJob, invocations []invocation, results []invocationResult) *model.AnalysisResult {
	metrics := model.AnalysisMetrics{
		IssuesByLevel:    make(map[string]int),
		IssuesByCategory: make(map[string]int),
		StrategyResults:  make(map[string]model.StrategyOutcome),
		FilesAnalyzed:    len(job.Files),
	}
	for _, f := range job.Files {
		metrics.TotalLines += strings.Count(f.Content, "\n") + 1
	}

	seen := make(map[string]struct{})
	var merged []model.CodeIssue

	for i, res := range results {
		name := invocations[i].strategy.Name()
		out := metrics.StrategyResults[name]

		if res.err != nil {
			// Keep the first failure reason per strategy. A strategy that
			// failed on one file may still have contributed on another.
			if out.Err == "" {
				out.Err = res.err.Error()
				out.TimedOut = res.timedOut
			}
			metrics.StrategyResults[name] = out
			continue
		}

		for _, issue := range res.issues {
			out.IssueCount++
			key := issue.DedupeKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, issue)
		}
		metrics.StrategyResults[name] = out
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Level.Rank() != merged[j].Level.Rank() {
			return merged[i].Level.Rank() < merged[j].Level.Rank()
		}
		return merged[i].LineNumber < merged[j].LineNumber
	})

	for _, issue := range merged {
		metrics.IssuesByLevel[issue.Level.String()]++
		metrics.IssuesByCategory[issue.Category]++
	}
	metrics.TotalIssues = len(merged)

	return &model.AnalysisResult{
		JobID:      job.ID,
		Repository: job.Repository,
		Target:     job.TargetNumber,
		Issues:     merged,
		Metrics:    metrics,
	}
}
