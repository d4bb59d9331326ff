// Package provider fetches the file set under review from the hosting
// platform.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v58/github"

	"revq.app/revq/common/logger"
	"revq.app/revq/internal/model"
)

// pullRequestAPI is the slice of go-github's PullRequestsService we use.
type pullRequestAPI interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error)
}

// contentAPI is the slice of go-github's RepositoriesService we use.
type contentAPI interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
}

// GitHubProviderConfig bounds how much of a pull request is pulled down.
// Zero values fall back to defaults.
type GitHubProviderConfig struct {
	MaxFiles     int
	MaxFileBytes int
}

func (c GitHubProviderConfig) withDefaults() GitHubProviderConfig {
	if c.MaxFiles <= 0 {
		c.MaxFiles = 50
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 512 * 1024
	}
	return c
}

// GitHubProvider materializes a pull request's changed files, at the PR head
// revision, into ReviewFiles.
type GitHubProvider struct {
	prs   pullRequestAPI
	repos contentAPI
	cfg   GitHubProviderConfig
}

func NewGitHubProvider(client *github.Client, cfg GitHubProviderConfig) *GitHubProvider {
	return &GitHubProvider{
		prs:   client.PullRequests,
		repos: client.Repositories,
		cfg:   cfg.withDefaults(),
	}
}

// FilesForPullRequest returns the changed files of a pull request, ordered as
// the platform lists them. Removed files and files that cannot be decoded as
// text are skipped, not fatal; a file past the size cap is skipped with a log
// line.
func (p *GitHubProvider) FilesForPullRequest(ctx context.Context, repo model.Repository, number int) ([]model.ReviewFile, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "revq.provider.github"})

	pr, _, err := p.prs.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s#%d: %w", repo, number, err)
	}
	ref := pr.GetHead().GetSHA()

	changed, err := p.listChangedFiles(ctx, repo, number)
	if err != nil {
		return nil, err
	}

	files := make([]model.ReviewFile, 0, len(changed))
	for _, cf := range changed {
		if cf.GetStatus() == "removed" {
			continue
		}
		if len(files) >= p.cfg.MaxFiles {
			slog.WarnContext(ctx, "pull request exceeds file cap, truncating",
				"cap", p.cfg.MaxFiles,
				"changed", len(changed))
			break
		}

		content, err := p.fileContent(ctx, repo, cf.GetFilename(), ref)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable file",
				"file", cf.GetFilename(),
				"error", err)
			continue
		}
		if len(content) > p.cfg.MaxFileBytes {
			slog.WarnContext(ctx, "skipping oversized file",
				"file", cf.GetFilename(),
				"bytes", len(content))
			continue
		}

		files = append(files, model.ReviewFile{
			Path:     cf.GetFilename(),
			Language: LanguageForPath(cf.GetFilename()),
			Content:  content,
		})
	}

	slog.InfoContext(ctx, "pull request files fetched",
		"repository", repo.String(),
		"number", number,
		"files", len(files))
	return files, nil
}

func (p *GitHubProvider) listChangedFiles(ctx context.Context, repo model.Repository, number int) ([]*github.CommitFile, error) {
	var all []*github.CommitFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := p.prs.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s#%d: %w", repo, number, err)
		}
		all = append(all, page...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (p *GitHubProvider) fileContent(ctx context.Context, repo model.Repository, path, ref string) (string, error) {
	fc, _, _, err := p.repos.GetContents(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("fetching contents: %w", err)
	}
	if fc == nil {
		return "", fmt.Errorf("path is a directory")
	}
	content, err := fc.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding contents: %w", err)
	}
	return content, nil
}
