package strategies

import (
	"context"
	"regexp"
	"strings"

	"revq.app/revq/internal/model"
)

var (
	todoRe  = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b`)
	debugRe = map[string]*regexp.Regexp{
		"python":     regexp.MustCompile(`^\s*print\(`),
		"go":         regexp.MustCompile(`\bfmt\.Print(ln|f)?\(`),
		"javascript": regexp.MustCompile(`\bconsole\.(log|debug)\(`),
		"typescript": regexp.MustCompile(`\bconsole\.(log|debug)\(`),
	}
)

// MarkerStrategy surfaces leftover work markers and debug output in changed
// lines. Debug-print detection only applies to languages it knows.
type MarkerStrategy struct{}

func NewMarkerStrategy() *MarkerStrategy { return &MarkerStrategy{} }

func (s *MarkerStrategy) Name() string { return "work-markers" }

func (s *MarkerStrategy) SupportedLanguages() []string { return nil }

func (s *MarkerStrategy) Analyze(ctx context.Context, file model.ReviewFile) ([]model.CodeIssue, error) {
	debug := debugRe[strings.ToLower(file.Language)]

	var issues []model.CodeIssue
	for lineNo, line := range strings.Split(file.Content, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if m := todoRe.FindString(line); m != "" {
			issues = append(issues, model.CodeIssue{
				Level:      model.SeverityInfo,
				Category:   "maintainability",
				Message:    "unresolved " + strings.ToUpper(m) + " marker",
				FilePath:   file.Path,
				LineNumber: lineNo + 1,
				RuleID:     "MNT001",
			})
		}

		if debug != nil && debug.MatchString(line) {
			issues = append(issues, model.CodeIssue{
				Level:      model.SeverityWarning,
				Category:   "maintainability",
				Message:    "debug output left in code",
				FilePath:   file.Path,
				LineNumber: lineNo + 1,
				Suggestion: "use the project logger instead",
				RuleID:     "MNT002",
			})
		}
	}
	return issues, nil
}
