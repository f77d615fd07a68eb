// Package chatclient consumes the relay's chat endpoints. It streams answers
// over SSE and falls back to a single non-streaming request when every
// streaming attempt fails.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
)

const (
	defaultChatPath       = "/chat"
	defaultRequestTimeout = 100 * time.Second
	readBufferSize        = 4096
	maxErrorBody          = 1024
)

var (
	// ErrNoBody is returned when a streaming response has no body
	ErrNoBody = errors.New("stream response has no body")
	// ErrIncompleteStream is returned when a stream ends before its terminal frame
	ErrIncompleteStream = errors.New("stream ended before the terminal frame")
	// ErrNoBaseURL is returned by New without any base URL
	ErrNoBaseURL = errors.New("at least one base URL is required")
)

// StatusError is a non-2xx answer from a relay
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Session identifies the analysis a question is about. When ID is set only
// the ID is sent; otherwise the payload travels inline.
type Session struct {
	ID      string
	Payload entities.AnalysisPayload
}

// Client talks to one or more relays, trying base URLs in order
type Client struct {
	baseURLs       []string
	chatPath       string
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Its Timeout also bounds streams, so
// leave it zero unless that is intended.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestTimeout bounds each non-streaming request
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithChatPath overrides the chat endpoint path
func WithChatPath(path string) Option {
	return func(c *Client) {
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		c.chatPath = path
	}
}

// New creates a client for the given base URLs, tried in order
func New(baseURLs []string, opts ...Option) (*Client, error) {
	c := &Client{
		chatPath:       defaultChatPath,
		requestTimeout: defaultRequestTimeout,
		httpClient:     &http.Client{},
		logger:         zap.NewNop(),
	}
	for _, raw := range baseURLs {
		if base := strings.TrimRight(strings.TrimSpace(raw), "/"); base != "" {
			c.baseURLs = append(c.baseURLs, base)
		}
	}
	if len(c.baseURLs) == 0 {
		return nil, ErrNoBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chatPath == "" {
		c.chatPath = defaultChatPath
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	return c, nil
}

// BaseURLs returns the configured base URLs
func (c *Client) BaseURLs() []string {
	return append([]string(nil), c.baseURLs...)
}

// fetchWithFallback sends the request to each base URL until accept
// succeeds on a 2xx response. Per-URL failures are aggregated.
func (c *Client) fetchWithFallback(ctx context.Context, method, path string, body []byte, accept func(*http.Response) error) error {
	var errs error
	for _, base := range c.baseURLs {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		url := base + path
		err := c.fetchOnce(ctx, method, url, body, accept)
		if err == nil {
			return nil
		}
		c.logger.Warn("Request failed, trying next endpoint",
			zap.String("url", url),
			zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", url, err))
	}
	return fmt.Errorf("all API endpoints failed: %w", errs)
}

func (c *Client) fetchOnce(ctx context.Context, method, url string, body []byte, accept func(*http.Response) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if accept == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return accept(resp)
}

func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func decodeInto(v interface{}) func(*http.Response) error {
	return func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}
