// Package footdata provides a read-only client for the
// football-data.org v4 API: standings, current matchday, and fixtures.
// Requests are rate limited, retried with backoff on transient
// failures, and deduplicated so at most one request per URL is in
// flight at a time.
package footdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/tablecast/pkg/league"
)

const (
	// DefaultBaseURL is the football-data.org v4 base URL
	DefaultBaseURL = "https://api.football-data.org/v4"

	// Free tier allows 10 requests per minute
	defaultRateLimit = 10.0 / 60.0 // requests per second
	defaultBurst     = 10

	defaultMaxRetries = 3
	defaultRetryBase  = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// Client is a football-data.org API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	group      singleflight.Group
	maxRetries int
	retryBase  time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithToken sets the X-Auth-Token API token.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetries sets the retry budget for transient failures and the
// base backoff delay.
func WithRetries(max int, base time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBase = base
	}
}

// NewClient creates a new football-data.org client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetStandings fetches the official TOTAL table for a league.
func (c *Client) GetStandings(ctx context.Context, lg league.League) ([]league.Standing, error) {
	var resp standingsResponse
	if err := c.get(ctx, "/competitions/"+lg.String()+"/standings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.total()
}

// GetCurrentMatchday fetches the competition's current matchday.
func (c *Client) GetCurrentMatchday(ctx context.Context, lg league.League) (int, error) {
	var resp competitionResponse
	if err := c.get(ctx, "/competitions/"+lg.String(), nil, &resp); err != nil {
		return 0, err
	}
	return resp.CurrentSeason.CurrentMatchday, nil
}

// GetLeagueData fetches the official table and current matchday in one
// request; the standings payload carries both.
func (c *Client) GetLeagueData(ctx context.Context, lg league.League) (*LeagueData, error) {
	var resp standingsResponse
	if err := c.get(ctx, "/competitions/"+lg.String()+"/standings", nil, &resp); err != nil {
		return nil, err
	}
	table, err := resp.total()
	if err != nil {
		return nil, err
	}
	return &LeagueData{
		Standings:       table,
		CurrentMatchday: resp.Season.CurrentMatchday,
	}, nil
}

// GetMatches fetches the fixtures of one matchday.
func (c *Client) GetMatches(ctx context.Context, lg league.League, matchday int) ([]league.Match, error) {
	params := url.Values{}
	params.Set("matchday", strconv.Itoa(matchday))

	var resp matchesResponse
	if err := c.get(ctx, "/competitions/"+lg.String()+"/matches", params, &resp); err != nil {
		return nil, err
	}

	matches := make([]league.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, m.match())
	}
	return matches, nil
}

// GetScheduledMatches fetches every fixture of the season that is still
// to be played. Cancelled matches are dropped.
func (c *Client) GetScheduledMatches(ctx context.Context, lg league.League) ([]league.Match, error) {
	var resp matchesResponse
	if err := c.get(ctx, "/competitions/"+lg.String()+"/matches", nil, &resp); err != nil {
		return nil, err
	}

	var matches []league.Match
	for _, m := range resp.Matches {
		if m.Status == statusFinished || m.Status == statusCancelled {
			continue
		}
		matches = append(matches, m.match())
	}
	return matches, nil
}

// GetFinishedMatches fetches all finished matches with matchday <= upto,
// in matchday order. Entries without a complete full-time score are
// dropped.
func (c *Client) GetFinishedMatches(ctx context.Context, lg league.League, upto int) ([]league.FinishedMatch, error) {
	params := url.Values{}
	params.Set("status", statusFinished)

	var resp matchesResponse
	if err := c.get(ctx, "/competitions/"+lg.String()+"/matches", params, &resp); err != nil {
		return nil, err
	}

	var finished []league.FinishedMatch
	for _, m := range resp.Matches {
		if m.Matchday > upto {
			continue
		}
		fm, ok := m.finished()
		if !ok {
			continue
		}
		finished = append(finished, fm)
	}
	return finished, nil
}

func (r *standingsResponse) total() ([]league.Standing, error) {
	for _, block := range r.Standings {
		if block.Type != tableTypeTotal {
			continue
		}
		table := make([]league.Standing, 0, len(block.Table))
		for _, e := range block.Table {
			table = append(table, e.standing())
		}
		return table, nil
	}
	return nil, fmt.Errorf("no TOTAL standings in response")
}

// get performs a deduplicated GET request: concurrent calls for the
// same URL share one upstream request.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	key := path
	if len(params) > 0 {
		key += "?" + params.Encode()
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, path, params)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(v.([]byte), result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// fetch runs the rate-limited request with retries on transient
// failures (429, 5xx, timeouts, connection errors).
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}

		// Wait for rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, wrapCtxErr(err)
		}

		req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("X-Auth-Token", c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, wrapCtxErr(ctx.Err())
			}
			if isTimeout(err) {
				lastErr = fmt.Errorf("%w: %v", ErrTimeout, err)
			} else {
				lastErr = fmt.Errorf("http request: %w", err)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		statusErr := &StatusError{
			Code:       resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header),
		}
		if !retryableStatus(resp.StatusCode) {
			return nil, statusErr
		}
		lastErr = statusErr
	}

	return nil, lastErr
}

// backoff sleeps before a retry: capped exponential delay, overridden
// by a longer Retry-After from the previous attempt.
func (c *Client) backoff(ctx context.Context, attempt int, lastErr error) error {
	delay := c.retryBase << (attempt - 1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) && statusErr.RetryAfter > delay {
		delay = statusErr.RetryAfter
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return wrapCtxErr(ctx.Err())
	case <-timer.C:
		return nil
	}
}

func wrapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
