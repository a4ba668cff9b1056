package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
	errorBodyReadLimit    = 4096
	maxBodyBytes          = 32 << 20
)

var errBaseURLRequired = errors.New("storefront base url is required")

// Client performs GETs against the storefront REST API. It implements
// catalog.Fetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    http.Header
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logg       *logger.Logger
	onBackoff  func(time.Duration)
}

var _ catalog.Fetcher = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger enables retry logging.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// NewClient builds a storefront client from config.
func NewClient(cfg config.StorefrontConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		headers:    requestHeaders(cfg),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
	}
	if client.maxRetries < 0 {
		client.maxRetries = 0
	}
	if client.baseDelay <= 0 {
		client.baseDelay = defaultRetryBaseDelay
	}
	if client.maxDelay <= 0 {
		client.maxDelay = defaultRetryMaxDelay
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func requestHeaders(cfg config.StorefrontConfig) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if cfg.UserAgent != "" {
		h.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.AcceptLanguage != "" {
		h.Set("Accept-Language", cfg.AcceptLanguage)
	}
	if cfg.Cookie != "" {
		h.Set("Cookie", cfg.Cookie)
	}
	return h
}

// Get fetches path with params. Transport failures, 429 and 5xx are retried
// with jittered exponential backoff, or after the server's Retry-After when
// it sends one; other 4xx fail immediately.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (catalog.RawPayload, error) {
	target := c.buildURL(path, params)

	var (
		payload catalog.RawPayload
		hint    time.Duration
		status  int
		attempt int
	)
	schedule := c.schedule()
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := schedule.Next()
		if stop {
			return 0, true
		}
		if hint > 0 {
			delay = min(hint, c.maxDelay)
		}
		if c.onBackoff != nil {
			c.onBackoff(delay)
		}
		if c.logg != nil {
			fields := map[string]any{"path": path, "attempt": attempt, "delay_ms": delay.Milliseconds(), "status": status}
			c.logg.Warn(c.logg.WithFields(ctx, fields), "storefront request retry")
		}
		return delay, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, wait, err := c.do(ctx, target)
		if err == nil {
			payload = p
			return nil
		}
		var fetchErr *catalog.FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Transient() {
			return err
		}
		hint, status = wait, fetchErr.Status
		return retry.RetryableError(err)
	})
	if err != nil {
		return catalog.RawPayload{}, err
	}
	return payload, nil
}

func (c *Client) schedule() retry.Backoff {
	b := retry.NewExponential(c.baseDelay)
	b = retry.WithJitterPercent(50, b)
	b = retry.WithCappedDuration(c.maxDelay, b)
	return retry.WithMaxRetries(uint64(c.maxRetries), b)
}

func (c *Client) do(ctx context.Context, target string) (catalog.RawPayload, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return catalog.RawPayload{}, 0, fmt.Errorf("build storefront request: %w", err)
	}
	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return catalog.RawPayload{}, 0, &catalog.FetchError{Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return catalog.RawPayload{}, retryAfter(resp.Header.Get("Retry-After")), &catalog.FetchError{
			Status:  resp.StatusCode,
			Message: errorMessage(body),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return catalog.RawPayload{}, 0, &catalog.FetchError{Status: resp.StatusCode, Message: "read body: " + err.Error(), Err: err}
	}
	if !gjson.ValidBytes(body) {
		return catalog.RawPayload{}, 0, &catalog.ParseError{Message: fmt.Sprintf("response from %s is not json", req.URL.Path)}
	}
	return catalog.RawPayload{Body: body}, 0, nil
}

// errorMessage prefers the storefront's typed error body, e.g.
// {"errors":[{"type":"UnknownIdentifierError","message":"..."}]}.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		first := gjson.GetBytes(body, "errors.0")
		if errType := first.Get("type").String(); errType != "" {
			if msg := first.Get("message").String(); msg != "" {
				return errType + ": " + msg
			}
			return errType
		}
	}
	return strings.TrimSpace(string(body))
}

// retryAfter parses delta-seconds or an HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) buildURL(path string, params url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}
