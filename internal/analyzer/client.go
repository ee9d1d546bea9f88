// Package analyzer is the HTTP client for the tick-analyzer backend API.
package analyzer

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

	"github.com/rewired-gh/derivwatch/internal/models"
)

// RecentTicketsLimit is how many of the newest tickets are kept for display.
const RecentTicketsLimit = 10

// ClientConfig holds transport tuning.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client provides access to the backend API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a client rooted at baseURL (for example http://localhost:5000/api).
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = 200 * time.Millisecond
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 4
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout, Transport: transport},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// FetchData retrieves the current market snapshot.
func (c *Client) FetchData(ctx context.Context) (*models.DataResponse, error) {
	var out models.DataResponse
	if err := c.getJSON(ctx, "/data", &out); err != nil {
		return nil, fmt.Errorf("failed to fetch data: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("failed to fetch data: %s", orUnknown(out.Error))
	}
	return &out, nil
}

// FetchStatus retrieves the collection status.
func (c *Client) FetchStatus(ctx context.Context) (*models.Status, error) {
	var out models.Status
	if err := c.getJSON(ctx, "/status", &out); err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("failed to fetch status: %s", orUnknown(out.Error))
	}
	return &out, nil
}

// FetchRecentTickets retrieves the newest tickets, trimmed to RecentTicketsLimit.
func (c *Client) FetchRecentTickets(ctx context.Context) ([]models.Ticket, error) {
	var out models.TicketsResponse
	if err := c.getJSON(ctx, "/recent-tickets", &out); err != nil {
		return nil, fmt.Errorf("failed to fetch recent tickets: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("failed to fetch recent tickets: %s", orUnknown(out.Error))
	}
	tickets := out.Tickets
	if len(tickets) > RecentTicketsLimit {
		tickets = tickets[len(tickets)-RecentTicketsLimit:]
	}
	return tickets, nil
}

// Start asks the backend to begin collecting ticks.
func (c *Client) Start(ctx context.Context) (*models.ActionResponse, error) {
	return c.action(ctx, "/start", nil)
}

// Stop asks the backend to stop collecting ticks.
func (c *Client) Stop(ctx context.Context) (*models.ActionResponse, error) {
	return c.action(ctx, "/stop", nil)
}

// Reset clears all collected data on the backend.
func (c *Client) Reset(ctx context.Context) (*models.ActionResponse, error) {
	return c.action(ctx, "/reset", nil)
}

// SetFilter changes the analysed tick window. Invalid filters are rejected
// without a request.
func (c *Client) SetFilter(ctx context.Context, f models.Filter) (*models.ActionResponse, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return c.action(ctx, "/filter", map[string]models.Filter{"filter": f})
}

// ErrRejected wraps a success:false answer to an action.
var ErrRejected = errors.New("request rejected")

// action posts once; a success:false body is returned along with ErrRejected.
func (c *Client) action(ctx context.Context, path string, body interface{}) (*models.ActionResponse, error) {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	var out models.ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response (status %d): %w", path, resp.StatusCode, err)
	}
	if !out.Success {
		return &out, fmt.Errorf("%w: %s", ErrRejected, out.Reason())
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.doRequest(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs a GET with linear-backoff retry on transport errors and 5xx.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}
