package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v58/github"

	"revq.app/revq/common/logger"
	"revq.app/revq/internal/model"
)

// commentAPI is the slice of go-github's IssuesService we use. PR comments
// go through the issues endpoint.
type commentAPI interface {
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

// GitHubPoster publishes the result as a single summary comment on the pull
// request.
type GitHubPoster struct {
	issues commentAPI
}

func NewGitHubPoster(client *github.Client) *GitHubPoster {
	return &GitHubPoster{issues: client.Issues}
}

func (p *GitHubPoster) Post(ctx context.Context, result *model.AnalysisResult) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "revq.review.github"})

	body := RenderComment(result)
	comment := &github.IssueComment{Body: github.String(body)}

	created, _, err := p.issues.CreateComment(ctx, result.Repository.Owner, result.Repository.Name, result.Target, comment)
	if err != nil {
		return fmt.Errorf("posting review comment to %s#%d: %w", result.Repository, result.Target, err)
	}

	slog.InfoContext(ctx, "review comment posted",
		"repository", result.Repository.String(),
		"target", result.Target,
		"comment_id", created.GetID(),
		"issues", result.Metrics.TotalIssues)
	return nil
}
