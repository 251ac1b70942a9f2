// Package pricefeed is the REST client for the external quote API the
// oracle polls for pair prices.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// Client is the REST client for the quote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new quote API client.
//
// baseURL is the API root, e.g. "http://localhost:8090/v1".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Quote returns the latest price for a pair such as "QU/USDT".
func (c *Client) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("pair", pair)

	body, err := c.doGet(ctx, "/quotes?"+params.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("pricefeed: quote %s: %w", pair, err)
	}

	var resp struct {
		Pair      string  `json:"pair"`
		Price     float64 `json:"price"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("pricefeed: decode quote: %w", err)
	}
	if resp.Price <= 0 {
		return domain.Quote{}, fmt.Errorf("pricefeed: quote %s: non-positive price %g", pair, resp.Price)
	}

	return domain.Quote{
		Pair:  resp.Pair,
		Price: resp.Price,
		Ts:    time.Unix(resp.Timestamp, 0),
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the quote API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
