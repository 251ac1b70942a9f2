// Package qubic is the REST client for the ledger gateway. The gateway
// owns all signing capability; this client only reads chain state and
// submits join, sweep, and refund requests against it.
package qubic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/qupredict/qupredict/internal/domain"
)

// Client is the REST client for the ledger gateway API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new gateway client.
//
// baseURL is the gateway API root, e.g. "http://localhost:8080/v1".
// ratePerSec and burst bound outgoing request throughput; zero values
// fall back to 10 req/s with a burst of 20.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64, burst int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	if burst < 1 {
		burst = 20
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// GetBalance returns the current balance of an address.
func (c *Client) GetBalance(ctx context.Context, address string) (Balance, error) {
	path := fmt.Sprintf("/balances/%s", url.PathEscape(address))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Balance{}, fmt.Errorf("qubic: get balance %s: %w", address, err)
	}

	var resp apiBalance
	if err := json.Unmarshal(body, &resp); err != nil {
		return Balance{}, fmt.Errorf("qubic: decode balance: %w", err)
	}

	return resp.toBalance(), nil
}

// CurrentTick returns the gateway's view of the current chain tick.
func (c *Client) CurrentTick(ctx context.Context) (TickInfo, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/tick", nil)
	if err != nil {
		return TickInfo{}, fmt.Errorf("qubic: get tick: %w", err)
	}

	var resp apiTick
	if err := json.Unmarshal(body, &resp); err != nil {
		return TickInfo{}, fmt.Errorf("qubic: decode tick: %w", err)
	}

	return resp.toTickInfo(), nil
}

// SubmitJoinBet asks the gateway to join an escrow's funds into the
// prediction contract. A gateway-side rejection wraps
// domain.ErrTxRejected.
func (c *Client) SubmitJoinBet(ctx context.Context, req JoinBetRequest) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/escrows/join", req)
	if err != nil {
		return "", fmt.Errorf("qubic: join escrow %s: %w", req.EscrowID, err)
	}

	var resp apiSubmitResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("qubic: decode join result: %w", err)
	}
	if TxStatus(resp.Status) == TxRejected {
		return "", fmt.Errorf("qubic: join escrow %s: %w: %s", req.EscrowID, domain.ErrTxRejected, resp.Message)
	}

	return resp.TxID, nil
}

// SubmitTransfer asks the gateway to transfer funds between addresses
// it controls. A gateway-side rejection wraps domain.ErrTxRejected.
func (c *Client) SubmitTransfer(ctx context.Context, req TransferRequest) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/transfers", req)
	if err != nil {
		return "", fmt.Errorf("qubic: transfer to %s: %w", req.ToAddress, err)
	}

	var resp apiSubmitResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("qubic: decode transfer result: %w", err)
	}
	if TxStatus(resp.Status) == TxRejected {
		return "", fmt.Errorf("qubic: transfer to %s: %w: %s", req.ToAddress, domain.ErrTxRejected, resp.Message)
	}

	return resp.TxID, nil
}

// GetTransaction returns the gateway's view of a submitted transaction.
// A transaction the gateway has not yet seen wraps domain.ErrNotFound.
func (c *Client) GetTransaction(ctx context.Context, txID string) (Transaction, error) {
	path := fmt.Sprintf("/transactions/%s", url.PathEscape(txID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Transaction{}, fmt.Errorf("qubic: get transaction %s: %w", txID, err)
	}

	var resp apiTransaction
	if err := json.Unmarshal(body, &resp); err != nil {
		return Transaction{}, fmt.Errorf("qubic: decode transaction: %w", err)
	}

	return resp.toTransaction(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, rate-limits, sends, and reads an HTTP request
// against the gateway. It returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
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
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
