// Package client provides the HTTP client for an ocrserve endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/wayli-app/ocrserve/internal/inference"
)

// DefaultTimeout is the per-request timeout
const DefaultTimeout = 60 * time.Second

// Client posts OCR requests to an endpoint
type Client struct {
	// Endpoint is the full URL requests are POSTed to
	Endpoint string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// UserAgent to use for requests
	UserAgent string

	// Debug prints each request to DebugOut
	Debug bool

	// DebugOut receives debug lines. Defaults to stderr so stdout stays machine readable.
	DebugOut io.Writer

	limiter *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new OCR client
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		UserAgent: "ocrload/1.0",
		DebugOut:  os.Stderr,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.Debug = debug
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.HTTPClient.Timeout = timeout
		}
	}
}

// WithRateLimit caps requests per second. Zero or negative disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Result is a decoded OCR response with its raw body
type Result struct {
	Response inference.Response
	Raw      json.RawMessage
}

// TextLines sums total_lines across all images of a successful response
func (r *Result) TextLines() int {
	if !r.Response.Success {
		return 0
	}
	n := 0
	for _, img := range r.Response.Results {
		n += img.TotalLines
	}
	return n
}

// OCR posts base64 images and decodes the response. Any status other than 200 is an
// *APIError carrying the body.
func (c *Client) OCR(ctx context.Context, images []string) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	data, err := json.Marshal(inference.Request{Images: images})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	if c.Debug {
		fmt.Fprintf(c.DebugOut, "DEBUG: POST %s (%d bytes)\n", c.Endpoint, len(data))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	result := &Result{Raw: body}
	if err := json.Unmarshal(body, &result.Response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

// APIError is a non-200 response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
