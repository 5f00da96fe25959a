package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trader-consensus-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// InfoClient queries the venue's HTTP info endpoint for historical fills
// and current mid prices.
type InfoClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures InfoClient.
type ClientOption func(*InfoClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *InfoClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *InfoClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *InfoClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *InfoClient) {
		c.client = client
	}
}

// NewInfoClient creates a new info endpoint client.
func NewInfoClient(endpoint string, opts ...ClientOption) *InfoClient {
	c := &InfoClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// infoRequest is the generic request envelope for the info endpoint.
type infoRequest struct {
	Type      string `json:"type"`
	User      string `json:"user,omitempty"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
}

// UserFills retrieves fills for one account within [start, end] (inclusive).
// Returned fills may be unordered; callers enforce deterministic ordering.
func (c *InfoClient) UserFills(ctx context.Context, address string, start, end int64) ([]*domain.Fill, error) {
	req := infoRequest{
		Type:      "userFillsByTime",
		User:      address,
		StartTime: start,
		EndTime:   end,
	}

	var raw []wireFill
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, fmt.Errorf("user fills for %s: %w", address, err)
	}

	fills := make([]*domain.Fill, 0, len(raw))
	for _, wf := range raw {
		f, err := toDomainFill(address, wf)
		if err != nil {
			return nil, fmt.Errorf("user fills for %s: %w", address, err)
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// AllMids retrieves the current mid price per asset.
func (c *InfoClient) AllMids(ctx context.Context) (map[string]float64, error) {
	var mids map[string]float64
	if err := c.post(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return nil, fmt.Errorf("all mids: %w", err)
	}
	return mids, nil
}

// post performs an info request with retries and exponential backoff.
func (c *InfoClient) post(ctx context.Context, reqBody infoRequest, result interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
