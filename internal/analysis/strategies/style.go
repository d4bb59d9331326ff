package strategies

import (
	"context"
	"fmt"
	"strings"

	"revq.app/revq/internal/model"
)

// StyleConfig carries the per-language settings supplied by external
// configuration. MaxLineLength of zero falls back to the default.
type StyleConfig struct {
	MaxLineLength     int
	PerLanguageLength map[string]int // overrides by language, e.g. {"python": 88}
	TabWidth          int
}

// StyleStrategy enforces simple formatting rules: line length and trailing
// whitespace. Deliberately cheap; it runs on every changed file.
type StyleStrategy struct {
	cfg StyleConfig
}

func NewStyleStrategy(cfg StyleConfig) *StyleStrategy {
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = 120
	}
	if cfg.TabWidth <= 0 {
		cfg.TabWidth = 4
	}
	return &StyleStrategy{cfg: cfg}
}

func (s *StyleStrategy) Name() string { return "style-checks" }

func (s *StyleStrategy) SupportedLanguages() []string { return nil }

func (s *StyleStrategy) Analyze(ctx context.Context, file model.ReviewFile) ([]model.CodeIssue, error) {
	limit := s.cfg.MaxLineLength
	if override, ok := s.cfg.PerLanguageLength[strings.ToLower(file.Language)]; ok {
		limit = override
	}

	var issues []model.CodeIssue
	for lineNo, line := range strings.Split(file.Content, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if width := s.displayWidth(line); width > limit {
			issues = append(issues, model.CodeIssue{
				Level:      model.SeverityWarning,
				Category:   "style",
				Message:    fmt.Sprintf("line exceeds %d characters (%d)", limit, width),
				FilePath:   file.Path,
				LineNumber: lineNo + 1,
				RuleID:     "STY001",
			})
		}

		if line != "" && strings.TrimRight(line, " \t") != line {
			issues = append(issues, model.CodeIssue{
				Level:      model.SeverityInfo,
				Category:   "style",
				Message:    "trailing whitespace",
				FilePath:   file.Path,
				LineNumber: lineNo + 1,
				RuleID:     "STY002",
			})
		}
	}
	return issues, nil
}

func (s *StyleStrategy) displayWidth(line string) int {
	width := 0
	for _, r := range line {
		if r == '\t' {
			width += s.cfg.TabWidth
		} else {
			width++
		}
	}
	return width
}
