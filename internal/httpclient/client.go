package httpclient

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	SingleRetry
	BackoffRetry
)

// RetryStrategyFunc decides the retry strategy for a given response status.
type RetryStrategyFunc func(statusCode int) RetryStrategy

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	strategyFunc RetryStrategyFunc
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   1,
		baseDelay:    500 * time.Millisecond,
		strategyFunc: DefaultRetryStrategy,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// DefaultRetryStrategy retries server-side failures once and gives up on
// everything else.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return SingleRetry
	default:
		return NoRetry
	}
}

// NoRetryStrategy disables status-based retries entirely. Callers that own
// their retry policy (the LLM provider, the tool transport) use this.
func NoRetryStrategy(statusCode int) RetryStrategy {
	return NoRetry
}

// Do executes the request, retrying per the configured strategy. Responses
// outside 2xx are returned together with a *StatusError so callers can
// branch on the status code.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// The response being retried over is superseded; drain it so
			// the connection goes back to the pool instead of leaking.
			if lastResp != nil {
				_, _ = io.Copy(io.Discard, lastResp.Body)
				lastResp.Body.Close()
				lastResp = nil
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
				}
				req.Body = body
			}
			delay := c.delayFor(attempt)
			slog.Warn("retrying request", "url", req.URL.String(), "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastResp, lastErr = nil, err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if c.strategyFunc(resp.StatusCode) == NoRetry {
			return resp, statusErr
		}

		lastResp, lastErr = resp, statusErr
		if c.strategyFunc(resp.StatusCode) == SingleRetry && attempt >= 1 {
			break
		}
	}

	return lastResp, lastErr
}

func (c *Client) delayFor(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 4
	}
	return delay
}
