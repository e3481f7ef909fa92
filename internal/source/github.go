// Package source feeds the ingestion pipeline from external document
// corpora. The GitHub source walks a repository subtree of Markdown files.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// CorpusDoc is one document fetched from a corpus.
type CorpusDoc struct {
	Path    string // relative path within the corpus
	Content []byte
	URL     string // raw source URL
	SHA     string // file's Git blob SHA
}

// GitHubSource fetches Markdown documents from a repository subtree.
type GitHubSource struct {
	client   *github.Client
	owner    string
	repo     string
	basePath string
}

// NewGitHubSource creates a GitHub-backed corpus source with rate limiting.
// When GITHUB_TOKEN is set the client authenticates for higher limits.
func NewGitHubSource(owner, repo, basePath string) (*GitHubSource, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	client := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubSource{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}, nil
}

// List returns the relative paths of all Markdown files under the subtree.
func (s *GitHubSource) List(ctx context.Context) ([]string, error) {
	return s.listRecursive(ctx, s.basePath, "")
}

func (s *GitHubSource) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}
		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(*item.Name, ".md") {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := s.listRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}
	return docs, nil
}

// Fetch downloads one document by relative path.
func (s *GitHubSource) Fetch(ctx context.Context, relativePath string) (*CorpusDoc, error) {
	fullPath := path.Join(s.basePath, relativePath)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &CorpusDoc{
		Path:    relativePath,
		Content: content,
		SHA:     *fileContent.SHA,
		URL: fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main/%s",
			s.owner, s.repo, fullPath),
	}, nil
}

// LatestCommitSHA returns the most recent commit touching the subtree, used
// to stamp a sync run.
func (s *GitHubSource) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo,
		&github.CommitsListOptions{
			Path:        s.basePath,
			ListOptions: github.ListOptions{PerPage: 1},
		})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", s.basePath)
	}
	return *commits[0].SHA, nil
}
