// Package github stores documents as files in a GitHub repository through the
// repository contents API. The blob SHA of each file is the version token.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/fault"
	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 15 * time.Second
	tokenHelpURL   = "https://github.com/settings/tokens"

	// historyLimit is the number of most recent commits History returns.
	historyLimit = 100
)

// Config describes the repository holding the documents.
type Config struct {
	Token   string
	Owner   string
	Repo    string
	Branch  string        // optional; repository default branch when empty
	BaseURL string        // optional; for GitHub Enterprise or tests
	Timeout time.Duration // per-request timeout
}

// Store implements docstore.Store on top of the GitHub contents API.
type Store struct {
	client *gh.Client
	owner  string
	repo   string
	branch string
	logger zerolog.Logger

	// repoFound is set once the repository is known to exist, after which a
	// 404 from the contents API means the file is absent.
	repoFound atomic.Bool
}

var (
	_ docstore.Store     = (*Store)(nil)
	_ docstore.Historian = (*Store)(nil)
)

// New creates a Store. Missing credentials are reported by name so the
// operator can fix the environment without reading code.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	var missing []string
	if cfg.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if cfg.Owner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if cfg.Repo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if len(missing) > 0 {
		return nil, fault.StoreUnavailable("github store is not configured", fmt.Errorf("missing %s", strings.Join(missing, ", "))).
			WithHint(fmt.Sprintf("Set %s. Get a free token at %s", strings.Join(missing, ", "), tokenHelpURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := gh.NewClient(&http.Client{Timeout: timeout}).WithAuthToken(cfg.Token)
	client.UserAgent = "Mira-Memory-Storage"

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}

	return &Store{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
		logger: logger.With().Str("component", "github_store").Str("repo", cfg.Owner+"/"+cfg.Repo).Logger(),
	}, nil
}

// Read implements docstore.Store.Read.
func (s *Store) Read(ctx context.Context, path string) (*docstore.Blob, error) {
	var opts *gh.RepositoryContentGetOptions
	if s.branch != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: s.branch}
	}

	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			if err := s.checkRepository(ctx); err != nil {
				return nil, err
			}
			s.logger.Debug().Str("path", path).Msg("Document does not exist yet")
			return nil, nil
		}
		return nil, s.translate("read "+path, resp, err)
	}
	if file == nil {
		return nil, fault.StoreUnavailable("read "+path, fmt.Errorf("%s is a directory", path))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fault.StoreUnavailable("decode "+path, err)
	}
	return &docstore.Blob{Data: []byte(content), Version: file.GetSHA()}, nil
}

// Write implements docstore.Store.Write.
func (s *Store) Write(ctx context.Context, path string, data []byte, message, version string) (string, error) {
	if version == "" {
		// Pick up the current SHA so an existing file is updated rather than
		// rejected. This narrows, but does not close, the lost-update window.
		current, err := s.Read(ctx, path)
		if err != nil {
			return "", err
		}
		if current != nil {
			version = current.Version
		}
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: data,
	}
	if s.branch != "" {
		opts.Branch = gh.String(s.branch)
	}

	var (
		res  *gh.RepositoryContentResponse
		resp *gh.Response
		err  error
	)
	if version == "" {
		res, resp, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, path, opts)
	} else {
		opts.SHA = gh.String(version)
		res, resp, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, path, opts)
	}
	if err != nil {
		return "", s.translate("write "+path, resp, err)
	}

	newVersion := ""
	if res != nil && res.Content != nil {
		newVersion = res.Content.GetSHA()
	}
	s.logger.Debug().Str("path", path).Str("sha", newVersion).Str("message", message).Msg("Document written")
	return newVersion, nil
}

// checkRepository tells a missing file apart from a missing or inaccessible
// repository, which the contents API reports the same way.
func (s *Store) checkRepository(ctx context.Context) error {
	if s.repoFound.Load() {
		return nil
	}
	_, resp, err := s.client.Repositories.Get(ctx, s.owner, s.repo)
	if err != nil {
		return s.translate("open repository", resp, err)
	}
	s.repoFound.Store(true)
	return nil
}

// History implements docstore.Historian. Only the most recent historyLimit
// commits touching path are returned, oldest first.
func (s *Store) History(ctx context.Context, path string) ([]string, error) {
	opts := &gh.CommitsListOptions{
		SHA:         s.branch,
		Path:        path,
		ListOptions: gh.ListOptions{PerPage: historyLimit},
	}
	commits, resp, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo, opts)
	if err != nil {
		// GitHub answers 409 for a repository without any commits.
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return []string{}, nil
		}
		return nil, s.translate("history "+path, resp, err)
	}

	out := make([]string, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		out = append(out, commits[i].GetCommit().GetMessage())
	}
	return out, nil
}

// translate maps a GitHub failure onto the store error taxonomy.
func (s *Store) translate(op string, resp *gh.Response, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.StoreUnavailable(op, err).
			WithHint("Request timeout - GitHub API took too long to respond. Try again later.").
			WithStatus(http.StatusGatewayTimeout)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fault.StoreUnavailable(op, err).
			WithHint("GitHub API rate limit reached. Wait for the limit to reset.")
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return fault.StoreConflict(op, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fault.StoreUnavailable(op+": authentication failed", err).
			WithHint(fmt.Sprintf("Your GITHUB_TOKEN may be invalid or expired. Generate a new one at %s", tokenHelpURL)).
			WithStatus(http.StatusUnauthorized)
	case status == http.StatusNotFound:
		return fault.StoreUnavailable(op+": repository not found", err).
			WithHint("Check that GITHUB_OWNER and GITHUB_REPO match your actual GitHub username and repository name")
	default:
		return fault.StoreUnavailable(op, err).
			WithHint("Ensure GITHUB_TOKEN, GITHUB_OWNER, and GITHUB_REPO are configured in environment variables")
	}
}
