// Package review delivers finished analysis results back to the pull
// request.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"revq.app/revq/internal/model"
)

// Poster publishes one analysis result. Implementations must be safe for
// concurrent use by multiple workers.
type Poster interface {
	Post(ctx context.Context, result *model.AnalysisResult) error
}

// LogPoster writes the result to the log instead of the platform. Used when
// no platform token is configured, and as the safety net in dry-run setups.
type LogPoster struct{}

func (LogPoster) Post(ctx context.Context, result *model.AnalysisResult) error {
	if result.Failed {
		slog.WarnContext(ctx, "review not produced",
			"repository", result.Repository.String(),
			"target", result.Target,
			"reason", result.FailReason)
		return nil
	}
	slog.InfoContext(ctx, "review result",
		"repository", result.Repository.String(),
		"target", result.Target,
		"issues", result.Metrics.TotalIssues,
		"duration_ms", result.DurationMs)
	return nil
}

// RenderComment formats a result as the markdown comment body posted to the
// pull request.
func RenderComment(result *model.AnalysisResult) string {
	var b strings.Builder

	if result.Failed {
		b.WriteString("## Automated review\n\n")
		b.WriteString("The automated review could not be completed")
		if result.FailReason != "" {
			fmt.Fprintf(&b, ": %s", result.FailReason)
		}
		b.WriteString(".\n")
		return b.String()
	}

	if result.Metrics.TotalIssues == 0 {
		b.WriteString("## Automated review\n\nNo issues found. ✅\n")
		return b.String()
	}

	fmt.Fprintf(&b, "## Automated review\n\nFound **%d** issue%s across %d file%s.\n\n",
		result.Metrics.TotalIssues, plural(result.Metrics.TotalIssues),
		result.Metrics.FilesAnalyzed, plural(result.Metrics.FilesAnalyzed))

	b.WriteString("| Severity | Location | Issue |\n|---|---|---|\n")
	for _, issue := range result.Issues {
		location := issue.FilePath
		if issue.LineNumber > 0 {
			location = fmt.Sprintf("%s:%d", issue.FilePath, issue.LineNumber)
		}
		message := issue.Message
		if issue.Suggestion != "" {
			message += " — " + issue.Suggestion
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s |\n",
			severityLabel(issue.Level), location, escapePipes(message))
	}

	var failed []string
	for name, outcome := range result.Metrics.StrategyResults {
		if outcome.Failed() {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\n_%d analysis step(s) did not complete; results may be partial._\n", len(failed))
	}

	return b.String()
}

func severityLabel(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "🔴 critical"
	case model.SeverityError:
		return "🟠 error"
	case model.SeverityWarning:
		return "🟡 warning"
	default:
		return "🔵 info"
	}
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
