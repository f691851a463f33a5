// Package broker defines the brokerage client boundary. The server only
// depends on the Client interface; order semantics beyond this surface
// belong to the upstream brokerage API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the brokerage surface the tool handlers delegate to.
type Client interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetAccounts(ctx context.Context) ([]Account, error)
	GetOrder(ctx context.Context, accountHash, orderID string) (*Order, error)
	GetOrders(ctx context.Context, query OrdersQuery) ([]Order, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, accountHash, orderID string) error
}

// TokenSource supplies the current upstream bearer token for each request,
// so a storage-backed refresh is picked up without rebuilding the client.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// HTTPClient talks to the brokerage REST API over HTTPS.
type HTTPClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// Shared HTTP client with connection pooling.
var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// NewHTTPClient creates a brokerage client for the given base URL.
func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPClient {
	client := sharedHTTPClient
	if timeout > 0 && timeout != sharedHTTPClient.Timeout {
		client = &http.Client{
			Timeout:   timeout,
			Transport: sharedHTTPClient.Transport,
		}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: client,
	}
}

func (c *HTTPClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var out map[string]struct {
		Quote Quote `json:"quote"`
	}
	path := fmt.Sprintf("/marketdata/v1/%s/quotes", url.PathEscape(symbol))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	entry, ok := out[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	q := entry.Quote
	q.Symbol = symbol
	return &q, nil
}

func (c *HTTPClient) GetAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	if err := c.do(ctx, http.MethodGet, "/trader/v1/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetOrder(ctx context.Context, accountHash, orderID string) (*Order, error) {
	var out Order
	path := fmt.Sprintf("/trader/v1/accounts/%s/orders/%s", url.PathEscape(accountHash), url.PathEscape(orderID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetOrders(ctx context.Context, query OrdersQuery) ([]Order, error) {
	params := url.Values{}
	if query.MaxResults > 0 {
		params.Set("maxResults", fmt.Sprintf("%d", query.MaxResults))
	}
	if query.FromDate != "" {
		params.Set("fromEnteredTime", query.FromDate)
	}
	if query.ToDate != "" {
		params.Set("toEnteredTime", query.ToDate)
	}
	if query.Status != "" {
		params.Set("status", query.Status)
	}

	path := fmt.Sprintf("/trader/v1/accounts/%s/orders", url.PathEscape(query.AccountHash))
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out []Order
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ValidateOrderRequest(req); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/trader/v1/accounts/%s/orders", url.PathEscape(req.AccountHash))
	var out Order
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CancelOrder(ctx context.Context, accountHash, orderID string) error {
	path := fmt.Sprintf("/trader/v1/accounts/%s/orders/%s", url.PathEscape(accountHash), url.PathEscape(orderID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("brokerage token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("brokerage API %s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
