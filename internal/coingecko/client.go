// Package coingecko provides the CoinGecko REST API client used to fetch
// the coin catalog and market data. It handles the free/pro host split,
// request pacing, retries with exponential backoff, and response caching.
package coingecko

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seenimoa/geckomap/internal/config"
	"github.com/seenimoa/geckomap/internal/infra"
	"github.com/seenimoa/geckomap/internal/logger"
)

// --- Sentinel errors ---

// ErrRateLimited is returned when CoinGecko keeps answering 429 after retries.
var ErrRateLimited = fmt.Errorf("rate limited by coingecko")

// ErrEmptyResponse is returned when an endpoint answers 200 with no usable data.
var ErrEmptyResponse = fmt.Errorf("empty response from coingecko")

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// --- Client ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "geckomap/1.0 (+https://github.com/seenimoa/geckomap)"

// ProKeyHeader is the header CoinGecko expects the pro API key in.
const ProKeyHeader = "x-cg-pro-api-key"

// MaxIDsPerPage is the hard CoinGecko cap on ids per /coins/markets call.
const MaxIDsPerPage = 250

// retryAfterCap bounds how long a Retry-After header can make us sleep.
const retryAfterCap = 60 * time.Second

// Client talks to the CoinGecko v3 API. All requests flow through a shared
// rate limiter so concurrent callers cannot exceed the configured pace.
type Client struct {
	cfg     config.CoinGeckoConfig
	http    *http.Client
	cache   *infra.Cache
	limiter *rate.Limiter
}

// NewClient creates a CoinGecko client from config. With an API key set,
// requests go to the pro host with the key header attached.
func NewClient(cfg config.CoinGeckoConfig) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout()},
		cache:   infra.NewCache(30 * time.Minute),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// CacheStats exposes the client cache counters for the status endpoint.
func (c *Client) CacheStats() infra.CacheStats {
	return c.cache.Stats()
}

// doGet performs a GET against the configured host with pacing and retries.
// Responses with 429/5xx are retried with exponential backoff; other 4xx
// fail immediately. A Retry-After header on 429 is honored up to a cap.
func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.cfg.Host() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", DefaultUserAgent)
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set(ProKeyHeader, c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("HTTP GET %s: %w", path, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			io.Copy(io.Discard, resp.Body)
			if delay := retryAfterDelay(resp.Header.Get("Retry-After")); delay > 0 {
				logger.Warn("coingecko rate limited, honoring Retry-After",
					zap.String("path", path), zap.Duration("delay", delay))
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(delay):
				}
			}
			return fmt.Errorf("%w: %s", ErrRateLimited, path)

		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &ErrHTTP{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(&ErrHTTP{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(body),
			})
		}

		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute

	retries := c.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return payload, nil
}

// retryAfterDelay parses a Retry-After header value (delta-seconds or
// HTTP-date) into a bounded wait duration. Returns 0 when unparseable.
func retryAfterDelay(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return min(time.Duration(secs)*time.Second, retryAfterCap)
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return min(d, retryAfterCap)
		}
	}
	return 0
}
