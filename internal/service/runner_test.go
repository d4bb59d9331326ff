package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revq.app/revq/internal/analysis"
	"revq.app/revq/internal/diag"
	"revq.app/revq/internal/model"
	"revq.app/revq/internal/service"
)

type fakeProvider struct {
	files []model.ReviewFile
	err   error
}

func (f *fakeProvider) FilesForPullRequest(context.Context, model.Repository, int) ([]model.ReviewFile, error) {
	return f.files, f.err
}

type fakeResultStore struct {
	mu    sync.Mutex
	saved []*model.AnalysisResult
	err   error
}

func (f *fakeResultStore) SaveAnalysisResult(_ context.Context, result *model.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, result)
	return f.err
}

type fakePoster struct {
	mu     sync.Mutex
	posted []*model.AnalysisResult
	err    error
}

func (f *fakePoster) Post(_ context.Context, result *model.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, result)
	return f.err
}

type diagCapture struct {
	mu        sync.Mutex
	persisted []*diag.DiagnosticContext
}

func (c *diagCapture) Persist(_ context.Context, dc *diag.DiagnosticContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persisted = append(c.persisted, dc)
	return nil
}

type fixedStrategy struct {
	name   string
	issues []model.CodeIssue
}

func (s *fixedStrategy) Name() string                 { return s.name }
func (s *fixedStrategy) SupportedLanguages() []string { return nil }
func (s *fixedStrategy) Analyze(context.Context, model.ReviewFile) ([]model.CodeIssue, error) {
	return s.issues, nil
}

var _ = Describe("JobRunner", func() {
	var (
		provider *fakeProvider
		results  *fakeResultStore
		poster   *fakePoster
		sink     *diagCapture
		tracer   *diag.Tracer
		runner   *service.JobRunner
		job      *model.AnalysisJob
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = &fakeProvider{files: []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x = 1\n"}}}
		results = &fakeResultStore{}
		poster = &fakePoster{}
		sink = &diagCapture{}
		tracer = diag.NewTracer(sink)

		orch := analysis.NewOrchestrator(analysis.NewRegistry(&fixedStrategy{
			name:   "fixed",
			issues: []model.CodeIssue{{Level: model.SeverityWarning, Category: "style", Message: "m", FilePath: "a.py", LineNumber: 1}},
		}), analysis.Config{})

		runner = service.NewJobRunner(provider, orch, tracer, results, poster)
		job = &model.AnalysisJob{
			ID:            42,
			Repository:    model.Repository{Owner: "acme", Name: "rocket"},
			TargetNumber:  7,
			CorrelationID: "corr-42",
		}
	})

	It("analyzes, persists, posts and closes the diagnostic trace", func() {
		runner.Run(ctx, job)

		Expect(results.saved).To(HaveLen(1))
		Expect(results.saved[0].Metrics.TotalIssues).To(Equal(1))
		Expect(poster.posted).To(HaveLen(1))

		Expect(sink.persisted).To(HaveLen(1))
		dc := sink.persisted[0]
		Expect(dc.CorrelationID).To(Equal("corr-42"))
		Expect(dc.EndTime).NotTo(BeNil())

		var events []string
		for _, t := range dc.Traces {
			events = append(events, t.Event)
		}
		Expect(events).To(ContainElements("job_claimed", "files_fetched", "analysis_finished", "review_posted"))
		Expect(tracer.Active()).To(BeEmpty())
	})

	It("posts a failed fallback result when the file provider is unreachable", func() {
		provider.err = fmt.Errorf("github unreachable")

		runner.Run(ctx, job)

		Expect(poster.posted).To(HaveLen(1))
		result := poster.posted[0]
		Expect(result.Failed).To(BeTrue())
		Expect(result.FailReason).To(ContainSubstring("github unreachable"))
		Expect(result.Issues).To(BeEmpty())

		Expect(results.saved).To(HaveLen(1))
		Expect(sink.persisted).To(HaveLen(1))
		Expect(sink.persisted[0].Errors).NotTo(BeEmpty())
	})

	It("measures failed-job duration from claim, not from enqueue", func() {
		provider.err = fmt.Errorf("github unreachable")
		job.EnqueuedAt = time.Now().Add(-time.Hour)

		runner.Run(ctx, job)

		Expect(poster.posted).To(HaveLen(1))
		Expect(poster.posted[0].DurationMs).To(BeNumerically("<", 10_000))
	})

	It("still posts when persistence fails", func() {
		results.err = fmt.Errorf("postgres down")
		runner.Run(ctx, job)
		Expect(poster.posted).To(HaveLen(1))
	})

	It("records posting failures in the diagnostic trace", func() {
		poster.err = fmt.Errorf("403")
		runner.Run(ctx, job)

		Expect(sink.persisted).To(HaveLen(1))
		var types []string
		for _, e := range sink.persisted[0].Errors {
			types = append(types, e.Type)
		}
		Expect(types).To(ContainElement("posting_failure"))
	})
})
