// Package reddit implements the platform interfaces against Reddit's JSON
// API. An axonet HTTP client provides the reliability layer: circuit
// breaking, retries with backoff, request deduplication and Redis-backed
// response caching.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jaxron/axonet/middleware/circuitbreaker"
	axonetRedis "github.com/jaxron/axonet/middleware/redis"
	"github.com/jaxron/axonet/middleware/retry"
	"github.com/jaxron/axonet/middleware/singleflight"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/redis"
	"github.com/redlytics/redlytics/internal/setup/config"
	"go.uber.org/zap"
)

// ErrUnexpectedStatus is returned when the API answers with a status code
// the adapter has no mapping for.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// settingsPage is the wiki page operators edit to adjust runtime options.
// Its JSON body becomes the raw settings mapping.
const settingsPage = "redlytics/config"

// Client talks to Reddit's JSON API for a single subreddit.
type Client struct {
	http      *client.Client
	baseURL   string
	subreddit string
	logger    *zap.Logger
}

var _ platform.Client = (*Client)(nil)

// NewClient constructs the API client with a middleware chain for
// reliability and performance. Middleware order is important; each layer
// wraps the next in specified priority.
func NewClient(cfg *config.Config, redisManager *redis.Manager, zapLogger *zap.Logger) (*Client, error) {
	cacheClient, err := redisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		return nil, err
	}

	middlewares := []middleware.Middleware{
		newUserAgent(cfg.Reddit.UserAgent),
		circuitbreaker.New(
			cfg.Breaker.MaxFailures,
			time.Duration(cfg.Breaker.FailureThreshold)*time.Millisecond,
			time.Duration(cfg.Breaker.RecoveryTimeout)*time.Millisecond,
		),
		retry.New(
			cfg.Retry.MaxRetries,
			time.Duration(cfg.Retry.Delay)*time.Millisecond,
			time.Duration(cfg.Retry.MaxDelay)*time.Millisecond,
		),
		singleflight.New(),
		axonetRedis.New(cacheClient, time.Duration(cfg.Reddit.CacheTTL)*time.Millisecond),
	}

	httpClient := client.NewClient(
		client.WithMarshalFunc(sonic.Marshal),
		client.WithUnmarshalFunc(sonic.Unmarshal),
		client.WithLogger(NewLogger(zapLogger.Named("reddit"))),
		client.WithTimeout(time.Duration(cfg.Reddit.RequestTimeout)*time.Millisecond),
		client.WithMiddleware(middlewares...),
	)

	return &Client{
		http:      httpClient,
		baseURL:   cfg.Reddit.BaseURL,
		subreddit: cfg.Reddit.Subreddit,
		logger:    zapLogger.Named("reddit"),
	}, nil
}

// get performs a GET request against the API and decodes the JSON response
// into out. A nil out discards the body after the status check.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req := c.http.NewRequest().
		Method(http.MethodGet).
		URL(c.baseURL + path)

	for key, values := range query {
		for _, value := range values {
			req = req.Query(key, value)
		}
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.decode(resp, path, out)
}

// post performs a POST request with a JSON body and decodes the response
// into out if non-nil.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	resp, err := c.http.NewRequest().
		Method(http.MethodPost).
		URL(c.baseURL + path).
		MarshalBody(payload).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.decode(resp, path, out)
}

func (c *Client) decode(resp *http.Response, path string, out any) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, platform.ErrNotFound)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("%s: %w: %d", path, ErrUnexpectedStatus, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
