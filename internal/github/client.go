// Package github is a small GitHub Enterprise REST client covering the
// billing cost-center and enterprise-team endpoints used by gh-cc-members.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/canarys/gh-cc-members/internal/config"
)

const (
	acceptHeader = "application/vnd.github+json"
	apiVersion   = "2022-11-28"
	userAgent    = "gh-cc-members"

	otelName = "github.com/canarys/gh-cc-members/internal/github"

	// maxBodyPreview bounds how much of an error body is kept.
	maxBodyPreview = 1000

	defaultRetryBase  = time.Second
	maxBackoff        = 60 * time.Second
	rateLimitFallback = 60 * time.Second
)

// Client talks to the GitHub REST API on behalf of one enterprise.
type Client struct {
	http       *http.Client
	baseURL    string
	enterprise string
	token      string
	log        *slog.Logger

	// retries is the number of extra attempts after a transient failure.
	retries int
	// rateLimitRetries is the number of extra attempts after a rate limit.
	rateLimitRetries int
	retryBase        time.Duration
}

// Option customises a Client built by NewClient.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryBase sets the first backoff delay; later delays double.
func WithRetryBase(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

// NewClient builds a client from the resolved configuration. The token and
// enterprise must be set.
func NewClient(cfg *config.Manager, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.RequireFields(config.FieldToken, config.FieldEnterprise); err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}

	c := &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:          strings.TrimRight(cfg.APIBaseURL, "/"),
		enterprise:       cfg.Enterprise,
		token:            cfg.Token,
		log:              logger,
		retries:          cfg.Retries,
		rateLimitRetries: cfg.RateLimitRetries,
		retryBase:        defaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Enterprise returns the enterprise slug the client is bound to.
func (c *Client) Enterprise() string { return c.enterprise }

// enterpriseURL joins an enterprise-scoped path onto the base URL.
func (c *Client) enterpriseURL(path string) string {
	return fmt.Sprintf("%s/enterprises/%s%s", c.baseURL, c.enterprise, path)
}

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// doJSON sends body (if any) as JSON and decodes a 2xx response into out
// (if non-nil). It returns the final status code.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) (int, error) {
	resp, err := c.do(ctx, method, url, body)
	if err != nil {
		if resp != nil {
			return resp.StatusCode, err
		}
		return 0, err
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response from %s %s: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}

// do performs the request with retries. Transient transport failures and
// 5xx responses are retried c.retries times; 429 and secondary rate limits
// are retried c.rateLimitRetries times after the advertised wait. Any other
// non-2xx response is returned as a classified error without retrying.
func (c *Client) do(ctx context.Context, method, url string, body any) (*response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	transientLeft := c.retries
	rateLimitLeft := c.rateLimitRetries

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, url, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			netErr := &NetworkError{Method: method, URL: url, Err: err}
			if transientLeft > 0 && isTransient(err) {
				transientLeft--
				wait := c.backoff(attempt, nil)
				c.log.Warn("Transient network error, retrying",
					"method", method, "url", url, "error", err, "wait", wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, netErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.log.Debug("GitHub API request succeeded",
				"method", method, "url", url, "status", resp.StatusCode, "attempt", attempt+1)
			return resp, nil
		}

		apiErr := &APIError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       preview(resp.Body),
		}

		if isRateLimited(resp) {
			wait := c.rateLimitWait(resp)
			if rateLimitLeft > 0 {
				rateLimitLeft--
				c.log.Warn("Rate limited by GitHub API, waiting",
					"method", method, "url", url, "status", resp.StatusCode, "wait", wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return resp, err
				}
				continue
			}
			return resp, &RateLimitError{Err: apiErr, Wait: wait}
		}

		if resp.StatusCode >= 500 {
			if transientLeft > 0 {
				transientLeft--
				wait := c.backoff(attempt, resp)
				c.log.Warn("Server error from GitHub API, retrying",
					"method", method, "url", url, "status", resp.StatusCode, "wait", wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return resp, err
				}
				continue
			}
			return resp, &NetworkError{Method: method, URL: url, Err: apiErr}
		}

		return resp, classify(apiErr)
	}
}

// send performs exactly one HTTP exchange and reads the whole body.
func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// backoff returns the delay before retry number attempt (0-based). A
// Retry-After header on resp takes precedence.
func (c *Client) backoff(attempt int, resp *response) time.Duration {
	if resp != nil {
		if d, ok := retryAfter(resp.Header); ok {
			return d
		}
	}
	base := c.retryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// rateLimitWait computes how long to wait after a rate-limited response:
// Retry-After if present, else until X-RateLimit-Reset (plus one second of
// slack), else rateLimitFallback.
func (c *Client) rateLimitWait(resp *response) time.Duration {
	if d, ok := retryAfter(resp.Header); ok {
		return d
	}
	reset := resp.Header.Get("X-RateLimit-Reset")
	if reset == "" {
		return rateLimitFallback
	}
	epoch, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		c.log.Debug("Unparseable X-RateLimit-Reset header", "value", reset)
		return rateLimitFallback
	}
	wait := time.Until(time.Unix(epoch, 0)) + time.Second
	if wait < time.Second {
		return time.Second
	}
	return wait
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// isRateLimited reports whether resp is a primary (429, or 403 with no
// remaining quota) or secondary rate limit.
func isRateLimited(resp *response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return true
		}
		return strings.Contains(strings.ToLower(string(resp.Body)), "secondary rate limit")
	}
	return false
}

// isTransient reports whether a transport error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"tls handshake timeout",
		"unexpected eof",
		"no such host",
		"client.timeout exceeded",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// preview truncates a response body for error messages.
func preview(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxBodyPreview {
		return s[:maxBodyPreview] + "..."
	}
	return s
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
