package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/TobiSchelling/autoblog/internal/config"
)

// GitHubPublisher commits through the Git Data API: blobs, a tree on top of
// the base commit's tree, a single-parent commit, then a fast-forward of the
// branch ref.
type GitHubPublisher struct {
	client      *github.Client
	owner       string
	repo        string
	branch      string
	authorName  string
	authorEmail string
	logger      *zap.Logger
}

// NewGitHubPublisher builds a publisher authenticated with the token found in
// the configured environment variable.
func NewGitHubPublisher(cfg config.Publish, logger *zap.Logger) (*GitHubPublisher, error) {
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrPublishFailed, cfg.TokenEnv)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return newGitHubPublisher(cfg, oauth2.NewClient(context.Background(), ts), logger)
}

func newGitHubPublisher(cfg config.Publish, httpClient *http.Client, logger *zap.Logger) (*GitHubPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHubPublisher{
		client:      client,
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		branch:      branch,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		logger:      logger,
	}, nil
}

// Name identifies the target repository and branch.
func (g *GitHubPublisher) Name() string {
	return fmt.Sprintf("github:%s/%s@%s", g.owner, g.repo, g.branch)
}

// Head returns the commit SHA the branch points at.
func (g *GitHubPublisher) Head(ctx context.Context) (string, error) {
	ref, _, err := g.client.Git.GetRef(ctx, g.owner, g.repo, "heads/"+g.branch)
	if err != nil {
		return "", fmt.Errorf("%w: reading heads/%s: %w", ErrPublishFailed, g.branch, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// Publish creates one commit holding every file of c on top of c.BaseRef, or
// the branch head when BaseRef is empty, and moves the branch to it.
func (g *GitHubPublisher) Publish(ctx context.Context, c Commit) (string, error) {
	if len(c.Files) == 0 {
		return "", fmt.Errorf("%w: nothing to commit", ErrPublishFailed)
	}
	base := c.BaseRef
	if base == "" {
		var err error
		if base, err = g.Head(ctx); err != nil {
			return "", err
		}
	}

	parent, _, err := g.client.Git.GetCommit(ctx, g.owner, g.repo, base)
	if err != nil {
		return "", fmt.Errorf("%w: reading base commit %s: %w", ErrPublishFailed, base, err)
	}

	entries := make([]*github.TreeEntry, 0, len(c.Files))
	for _, path := range sortedPaths(c.Files) {
		blob, _, err := g.client.Git.CreateBlob(ctx, g.owner, g.repo, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(c.Files[path])),
			Encoding: github.String("base64"),
		})
		if err != nil {
			return "", fmt.Errorf("%w: creating blob for %s: %w", ErrPublishFailed, path, err)
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(path),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}

	tree, _, err := g.client.Git.CreateTree(ctx, g.owner, g.repo, parent.GetTree().GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("%w: creating tree: %w", ErrPublishFailed, err)
	}

	commit, _, err := g.client.Git.CreateCommit(ctx, g.owner, g.repo, &github.Commit{
		Message: github.String(c.Message),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.String(base)}},
		Author: &github.CommitAuthor{
			Name:  github.String(g.authorName),
			Email: github.String(g.authorEmail),
			Date:  &github.Timestamp{Time: time.Now().UTC()},
		},
	}, &github.CreateCommitOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: creating commit: %w", ErrPublishFailed, err)
	}

	// No force: a concurrent writer that moved the branch makes this fail.
	_, _, err = g.client.Git.UpdateRef(ctx, g.owner, g.repo, &github.Reference{
		Ref:    github.String("refs/heads/" + g.branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return "", fmt.Errorf("%w: updating heads/%s: %w", ErrPublishFailed, g.branch, err)
	}

	g.logger.Info("published commit",
		zap.String("target", g.Name()),
		zap.String("sha", commit.GetSHA()),
		zap.Int("files", len(entries)))
	return commit.GetSHA(), nil
}
