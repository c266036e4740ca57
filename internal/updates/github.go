package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultAPIEndpoint is the GitHub REST API base URL.
const DefaultAPIEndpoint = "https://api.github.com"

// DefaultTimeout bounds one head lookup.
const DefaultTimeout = 4 * time.Second

// maxRetries is the number of retries after a rate-limited or failed request.
const maxRetries = 2

// Head is the latest commit on a repository's main branch.
type Head struct {
	SHA  string
	Date string
}

// HeadFetcher looks up the head commit of an owner/repo.
type HeadFetcher interface {
	Head(ctx context.Context, repo string) (Head, error)
}

// GitHubClient fetches heads from the GitHub REST API. GITHUB_TOKEN is sent
// when set.
type GitHubClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// RetryDelay is the initial wait after a rate-limited response.
	RetryDelay time.Duration
}

// NewGitHubClient returns a client for the public API using GITHUB_TOKEN.
func NewGitHubClient() *GitHubClient {
	return &GitHubClient{
		BaseURL:    DefaultAPIEndpoint,
		Token:      strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		RetryDelay: time.Second,
	}
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date string `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// Head returns the head of repo's main branch. Rate-limited responses are
// retried with exponential backoff; other HTTP errors are returned at once.
func (c *GitHubClient) Head(ctx context.Context, repo string) (Head, error) {
	url := strings.TrimRight(c.BaseURL, "/") + "/repos/" + repo + "/commits/main"

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: %w", repo, err))
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: network error (%w)", repo, err)
		}
		defer func() { _ = resp.Body.Close() }()

		const maxResponseSize = 1 << 20
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("%s: read response: %w", repo, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			return fmt.Errorf("%s: HTTP %d (rate-limited)", repo, resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound && c.Token == "":
			return backoff.Permanent(fmt.Errorf("%s: HTTP 404 (missing or private; set GITHUB_TOKEN)", repo))
		case resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%s: HTTP 403 (rate-limited or token required)", repo))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("%s: HTTP %d", repo, resp.StatusCode))
		}
		return nil
	}

	delay := c.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = delay
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return Head{}, err
	}

	var commit commitResponse
	if err := json.Unmarshal(body, &commit); err != nil {
		return Head{}, fmt.Errorf("%s: decode response: %w", repo, err)
	}
	sha := strings.TrimSpace(commit.SHA)
	if sha == "" {
		return Head{}, fmt.Errorf("%s: missing commit sha from API response", repo)
	}
	return Head{SHA: sha, Date: strings.TrimSpace(commit.Commit.Committer.Date)}, nil
}
