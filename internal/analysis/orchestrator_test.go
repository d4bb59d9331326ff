package analysis_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revq.app/revq/internal/analysis"
	"revq.app/revq/internal/model"
)

// stubStrategy returns fixed issues per file path, or fails.
type stubStrategy struct {
	name      string
	languages []string
	issues    map[string][]model.CodeIssue
	err       error
	sleep     time.Duration
	obeyCtx   bool
	panicWith any
}

func (s *stubStrategy) Name() string                 { return s.name }
func (s *stubStrategy) SupportedLanguages() []string { return s.languages }

func (s *stubStrategy) Analyze(ctx context.Context, file model.ReviewFile) ([]model.CodeIssue, error) {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.sleep > 0 {
		if s.obeyCtx {
			select {
			case <-time.After(s.sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			time.Sleep(s.sleep)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.issues[file.Path], nil
}

func issue(level model.Severity, category, msg, path string, line int) model.CodeIssue {
	return model.CodeIssue{Level: level, Category: category, Message: msg, FilePath: path, LineNumber: line}
}

var _ = Describe("Orchestrator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	run := func(cfg analysis.Config, files []model.ReviewFile, strategies ...analysis.Strategy) *model.AnalysisResult {
		orch := analysis.NewOrchestrator(analysis.NewRegistry(strategies...), cfg)
		return orch.Analyze(ctx, &model.AnalysisJob{ID: 1, Files: files})
	}

	Describe("strategy isolation", func() {
		It("keeps a healthy strategy's issues when a sibling always fails", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			broken := &stubStrategy{name: "broken", err: fmt.Errorf("boom")}
			healthy := &stubStrategy{name: "healthy", issues: map[string][]model.CodeIssue{
				"a.py": {issue(model.SeverityWarning, "style", "W", "a.py", 3)},
			}}

			result := run(analysis.Config{}, files, broken, healthy)

			Expect(result.Issues).To(HaveLen(1))
			Expect(result.Metrics.StrategyResults["broken"].Failed()).To(BeTrue())
			Expect(result.Metrics.StrategyResults["broken"].Err).To(ContainSubstring("boom"))
			Expect(result.Metrics.StrategyResults["healthy"].IssueCount).To(Equal(1))
		})

		It("contains a panicking strategy", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			panicky := &stubStrategy{name: "panicky", panicWith: "ouch"}
			healthy := &stubStrategy{name: "healthy", issues: map[string][]model.CodeIssue{
				"a.py": {issue(model.SeverityInfo, "style", "I", "a.py", 1)},
			}}

			result := run(analysis.Config{}, files, panicky, healthy)

			Expect(result.Issues).To(HaveLen(1))
			Expect(result.Metrics.StrategyResults["panicky"].Err).To(ContainSubstring("panic"))
		})
	})

	Describe("timeouts", func() {
		It("records a timed-out strategy as an error marker with zero issues", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			slow := &stubStrategy{name: "slow", sleep: 500 * time.Millisecond, issues: map[string][]model.CodeIssue{
				"a.py": {issue(model.SeverityError, "security", "late", "a.py", 1)},
			}}
			fast := &stubStrategy{name: "fast", issues: map[string][]model.CodeIssue{
				"a.py": {issue(model.SeverityInfo, "style", "quick", "a.py", 2)},
			}}

			start := time.Now()
			result := run(analysis.Config{StrategyTimeout: 50 * time.Millisecond}, files, slow, fast)
			elapsed := time.Since(start)

			Expect(result.Issues).To(HaveLen(1))
			Expect(result.Issues[0].Message).To(Equal("quick"))
			Expect(result.Metrics.StrategyResults["slow"].TimedOut).To(BeTrue())
			Expect(result.Metrics.StrategyResults["slow"].IssueCount).To(BeZero())
			Expect(elapsed).To(BeNumerically("<", 300*time.Millisecond))
		})

		It("does not wait for a strategy that ignores its context", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			deaf := &stubStrategy{name: "deaf", sleep: 2 * time.Second, obeyCtx: false}

			start := time.Now()
			result := run(analysis.Config{StrategyTimeout: 50 * time.Millisecond}, files, deaf)
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(result.Metrics.StrategyResults["deaf"].TimedOut).To(BeTrue())
		})

		It("treats a context-obeying strategy's deadline error as a timeout", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			polite := &stubStrategy{name: "polite", sleep: time.Second, obeyCtx: true}

			result := run(analysis.Config{StrategyTimeout: 30 * time.Millisecond}, files, polite)
			Expect(result.Metrics.StrategyResults["polite"].TimedOut).To(BeTrue())
		})
	})

	Describe("merging", func() {
		It("deduplicates identical findings from independent strategies", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			dup := issue(model.SeverityWarning, "style", "X", "a.py", 3)
			s1 := &stubStrategy{name: "one", issues: map[string][]model.CodeIssue{"a.py": {dup}}}
			s2 := &stubStrategy{name: "two", issues: map[string][]model.CodeIssue{"a.py": {dup}}}

			result := run(analysis.Config{}, files, s1, s2)

			Expect(result.Issues).To(HaveLen(1))
			Expect(result.Metrics.TotalIssues).To(Equal(1))
			// Both strategies still get credited with the finding.
			Expect(result.Metrics.StrategyResults["one"].IssueCount).To(Equal(1))
			Expect(result.Metrics.StrategyResults["two"].IssueCount).To(Equal(1))
		})

		It("keeps findings that differ in line or message", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			s1 := &stubStrategy{name: "one", issues: map[string][]model.CodeIssue{"a.py": {
				issue(model.SeverityWarning, "style", "X", "a.py", 3),
				issue(model.SeverityWarning, "style", "X", "a.py", 4),
				issue(model.SeverityWarning, "style", "Y", "a.py", 3),
			}}}

			result := run(analysis.Config{}, files, s1)
			Expect(result.Issues).To(HaveLen(3))
		})

		It("sorts by severity rank then line", func() {
			files := []model.ReviewFile{{Path: "a.py", Language: "python", Content: "x\n"}}
			s1 := &stubStrategy{name: "one", issues: map[string][]model.CodeIssue{"a.py": {
				issue(model.SeverityWarning, "style", "w", "a.py", 10),
				issue(model.SeverityCritical, "security", "c", "a.py", 2),
				issue(model.SeverityError, "security", "e", "a.py", 5),
			}}}

			result := run(analysis.Config{}, files, s1)

			var got []string
			for _, i := range result.Issues {
				got = append(got, fmt.Sprintf("%s@%d", i.Message, i.LineNumber))
			}
			Expect(got).To(Equal([]string{"c@2", "e@5", "w@10"}))
		})
	})

	Describe("language routing", func() {
		It("skips files whose language no strategy supports", func() {
			files := []model.ReviewFile{
				{Path: "a.rs", Language: "rust", Content: "x\n"},
			}
			pyOnly := &stubStrategy{name: "py", languages: []string{"python"}, issues: map[string][]model.CodeIssue{
				"a.rs": {issue(model.SeverityError, "x", "should not appear", "a.rs", 1)},
			}}

			result := run(analysis.Config{}, files, pyOnly)
			Expect(result.Issues).To(BeEmpty())
			Expect(result.Metrics.StrategyResults).To(BeEmpty())
		})

		It("treats an empty language list as all languages", func() {
			files := []model.ReviewFile{{Path: "a.rs", Language: "rust", Content: "x\n"}}
			anyLang := &stubStrategy{name: "any", issues: map[string][]model.CodeIssue{
				"a.rs": {issue(model.SeverityInfo, "style", "hit", "a.rs", 1)},
			}}

			result := run(analysis.Config{}, files, anyLang)
			Expect(result.Issues).To(HaveLen(1))
		})
	})

	Describe("end-to-end shape", func() {
		It("produces the consolidated result for two files and two strategies", func() {
			files := []model.ReviewFile{
				{Path: "a.py", Language: "python", Content: "line\n"},
				{Path: "b.py", Language: "python", Content: "line\nline\n"},
			}
			security := &stubStrategy{name: "security", issues: map[string][]model.CodeIssue{
				"a.py": {issue(model.SeverityCritical, "security", "hard-coded credential", "a.py", 1)},
			}}
			style := &stubStrategy{name: "style", issues: map[string][]model.CodeIssue{
				"b.py": {issue(model.SeverityWarning, "style", "line too long", "b.py", 40)},
			}}

			result := run(analysis.Config{}, files, security, style)

			Expect(result.Issues).To(HaveLen(2))
			Expect(result.Metrics.TotalIssues).To(Equal(2))
			Expect(result.Metrics.IssuesByCategory).To(Equal(map[string]int{"security": 1, "style": 1}))
			Expect(result.Metrics.IssuesByLevel).To(Equal(map[string]int{"critical": 1, "warning": 1}))
			Expect(result.Metrics.FilesAnalyzed).To(Equal(2))
			Expect(result.Issues[0].FilePath).To(Equal("a.py")) // critical sorts first
			Expect(result.DurationMs).To(BeNumerically(">=", 0))
		})
	})
})
