// Package strategies holds the built-in analysis strategies registered at
// startup. Each one is an isolated, stateless implementation of
// analysis.Strategy; the orchestrator treats them as opaque.
package strategies

import (
	"context"
	"regexp"
	"strings"

	"revq.app/revq/internal/model"
)

// credentialPattern pairs a compiled matcher with the finding it reports.
type credentialPattern struct {
	re       *regexp.Regexp
	message  string
	ruleID   string
	severity model.Severity
}

// SecurityStrategy flags hard-coded credentials and other secret material.
// Patterns are compiled once at construction; matching is line-oriented.
type SecurityStrategy struct {
	patterns []credentialPattern
}

func NewSecurityStrategy() *SecurityStrategy {
	return &SecurityStrategy{
		patterns: []credentialPattern{
			{
				re:       regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["'][^"']{4,}["']`),
				message:  "hard-coded password",
				ruleID:   "SEC001",
				severity: model.SeverityCritical,
			},
			{
				re:       regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key)\s*[:=]\s*["'][^"']{8,}["']`),
				message:  "hard-coded API key",
				ruleID:   "SEC002",
				severity: model.SeverityCritical,
			},
			{
				re:       regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token)\s*[:=]\s*["'][^"']{8,}["']`),
				message:  "hard-coded access token",
				ruleID:   "SEC003",
				severity: model.SeverityError,
			},
			{
				re:       regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
				message:  "private key material committed to the repository",
				ruleID:   "SEC004",
				severity: model.SeverityCritical,
			},
			{
				re:       regexp.MustCompile(`(?i)(postgres|mysql|redis|amqp|mongodb)://[^/\s]+:[^@\s]+@`),
				message:  "connection string embeds credentials",
				ruleID:   "SEC005",
				severity: model.SeverityError,
			},
		},
	}
}

func (s *SecurityStrategy) Name() string { return "security-patterns" }

// All languages: secrets leak through any file type.
func (s *SecurityStrategy) SupportedLanguages() []string { return nil }

func (s *SecurityStrategy) Analyze(ctx context.Context, file model.ReviewFile) ([]model.CodeIssue, error) {
	var issues []model.CodeIssue

	for lineNo, line := range strings.Split(file.Content, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, p := range s.patterns {
			if !p.re.MatchString(line) {
				continue
			}
			issues = append(issues, model.CodeIssue{
				Level:      p.severity,
				Category:   "security",
				Message:    p.message,
				FilePath:   file.Path,
				LineNumber: lineNo + 1,
				Suggestion: "move the secret to configuration or a secret manager",
				RuleID:     p.ruleID,
			})
		}
	}
	return issues, nil
}
