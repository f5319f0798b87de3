// Package httpclient provides the HTTP client the api ranking source fetches players with
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/panorama-game/rating-server/internal/versions"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResponseSize is the default limit on response bodies (32MB)
	DefaultMaxResponseSize = 32 * 1024 * 1024
)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithTimeout sets the per-request timeout. Zero keeps DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *DefaultClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithMaxResponseSize limits how many bytes of a response body are accepted
func WithMaxResponseSize(size int64) Option {
	return func(c *DefaultClient) {
		if size > 0 {
			c.maxResponseSize = size
		}
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client          *http.Client
	maxResponseSize int64
	userAgent       string
}

var _ Client = (*DefaultClient)(nil)

// NewDefaultClient creates a new HTTP client
func NewDefaultClient(opts ...Option) *DefaultClient {
	c := &DefaultClient{
		client:          &http.Client{Timeout: DefaultTimeout},
		maxResponseSize: DefaultMaxResponseSize,
		userAgent:       versions.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request expecting a JSON body
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	if resp.ContentLength > c.maxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, c.maxResponseSize)
	}

	// One extra byte tells an oversized body apart from one exactly at the limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", c.maxResponseSize)
	}

	return body, nil
}
