/**
 * @description
 * This package provides a client for the external engagement supplier API.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * supplier's endpoints, handling request body construction, parsing responses,
 * and retrying transient failures.
 *
 * Requests that fail on a network error or a 5xx response are retried up to
 * three times with exponential backoff. 4xx responses are never retried: the
 * supplier has rejected the request and repeating it cannot help.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package supplierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	maxRetries       = 3
	baseRetryBackoff = 200 * time.Millisecond
)

// Client is a client for the supplier API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new supplier API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateOrderRequest is the payload for placing an order with the supplier.
type CreateOrderRequest struct {
	Service  int    `json:"service"`
	Link     string `json:"link"`
	Quantity int    `json:"quantity"`
}

// OrderResponse is the supplier's acknowledgement of a placed order. The
// supplier has been observed returning the order reference under either
// "id" or "order_id".
type OrderResponse struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ExternalID returns the supplier's order reference regardless of which
// response field carried it.
func (r *OrderResponse) ExternalID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.OrderID
}

// StatusResponse reports the supplier-side state of an order.
type StatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Service is one entry of the supplier's own service listing.
type Service struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Min  int    `json:"min"`
}

// ErrorResponse represents an error from the supplier API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supplier api error: %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supplier api error: status %d", e.StatusCode)
}

// IsClientError reports whether the supplier explicitly rejected the request.
func (e *ErrorResponse) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// CreateOrder places an order with the supplier and returns its external id.
func (c *Client) CreateOrder(ctx context.Context, serviceID int, link string, quantity int) (*OrderResponse, error) {
	body, err := json.Marshal(CreateOrderRequest{Service: serviceID, Link: link, Quantity: quantity})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	var resp OrderResponse
	if err := c.do(ctx, "POST", "/order", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOrderStatus fetches the supplier-side status of an order by its external id.
func (c *Client) GetOrderStatus(ctx context.Context, externalID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, "GET", "/order/"+externalID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListServices fetches the supplier's service listing. Callers fall back to
// the local catalog when this fails.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var resp []Service
	if err := c.do(ctx, "GET", "/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// do executes one API call with the retry policy applied.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseRetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			log.Printf("level=warn component=supplier_client op=%s path=%s attempt=%d msg=\"retrying after transient failure\" err=%v", method, path, attempt, lastErr)
		}

		retryable, err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

// doOnce performs a single request. The first return value reports whether
// the failure is worth retrying (network error or 5xx).
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create supplier request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return true, fmt.Errorf("failed to execute supplier request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read supplier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=supplier_client op=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
		}
		return resp.StatusCode >= 500, errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return false, fmt.Errorf("failed to decode supplier response: %w", err)
		}
	}
	return false, nil
}
