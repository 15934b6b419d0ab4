package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imyashkale/mcphub/internal/logger"
)

var (
	ErrNotGitHubURL   = errors.New("not a github repository url")
	ErrReadmeNotFound = errors.New("readme not found")
	ErrGitHubAPIError = errors.New("github api error")
)

const (
	// DefaultRawBaseURL serves raw repository content
	DefaultRawBaseURL    = "https://raw.githubusercontent.com"
	// DefaultReadmeTimeout bounds a single README request
	DefaultReadmeTimeout = 10 * time.Second
	// maxReadmeBytes caps how much of a README is read
	maxReadmeBytes       = 1 << 20
)

// readmeBranches are tried in order
var readmeBranches = []string{"main", "master"}

// ParseGitHubURL extracts owner and repo from a github.com repository URL.
// Any host containing "github.com" is accepted, and the path needs at
// least two segments.
func ParseGitHubURL(raw string) (owner, repo string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	if !strings.Contains(u.Hostname(), "github.com") {
		return "", "", false
	}

	parts := make([]string, 0, 2)
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}

// ReadmeFetcher retrieves README.md files from GitHub raw content
type ReadmeFetcher struct {
	baseURL string
	client  *http.Client
}

// NewReadmeFetcher creates a fetcher. Empty baseURL or zero timeout select the defaults.
func NewReadmeFetcher(baseURL string, timeout time.Duration) *ReadmeFetcher {
	if baseURL == "" {
		baseURL = DefaultRawBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultReadmeTimeout
	}
	return &ReadmeFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchReadme returns the README of the repository at repoURL. ok is false
// when the URL is not a GitHub repository or neither branch has a README.
// Failures are logged and never returned.
func (f *ReadmeFetcher) FetchReadme(ctx context.Context, repoURL string) (content string, ok bool) {
	content, err := f.Fetch(ctx, repoURL)
	if err != nil {
		if !errors.Is(err, ErrNotGitHubURL) {
			logger.WithFields(map[string]interface{}{
				"url":   repoURL,
				"error": err.Error(),
			}).Debug("README not available")
		}
		return "", false
	}
	return content, true
}

// Fetch is FetchReadme with the failure reason
func (f *ReadmeFetcher) Fetch(ctx context.Context, repoURL string) (string, error) {
	owner, repo, ok := ParseGitHubURL(repoURL)
	if !ok {
		return "", ErrNotGitHubURL
	}

	var lastErr error = ErrReadmeNotFound
	for _, branch := range readmeBranches {
		content, err := f.fetchBranch(ctx, owner, repo, branch)
		if err == nil && strings.TrimSpace(content) != "" {
			logger.WithFields(map[string]interface{}{
				"owner":  owner,
				"repo":   repo,
				"branch": branch,
			}).Debug("README fetched")
			return content, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (f *ReadmeFetcher) fetchBranch(ctx context.Context, owner, repo, branch string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/README.md",
		f.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch README: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrReadmeNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status code %d", ErrGitHubAPIError, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read README: %w", err)
	}
	return string(body), nil
}
