// Package aggregator talks to the external account-aggregation provider
// that serves linked-account transaction history.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive [From, To] window of transaction dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RawTransaction is one transaction exactly as the aggregator reports it.
// TransactionID may be empty when the provider has no stable id for the row.
type RawTransaction struct {
	TransactionID string          `json:"transaction_id"`
	Date          string          `json:"transaction_date"`
	Time          string          `json:"transaction_time"`
	Inflow        decimal.Decimal `json:"inflow"`
	Outflow       decimal.Decimal `json:"outflow"`
	Balance       decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description"`
}

// Gateway fetches transaction history for a linked account. Raw is the
// unmodified provider response body, kept for archival.
type Gateway interface {
	FetchTransactions(ctx context.Context, accountID string, dr DateRange) (txns []RawTransaction, raw []byte, err error)
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("aggregator returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed if repeated. Client
// errors other than rate limiting will fail the same way every time.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a Client for the given provider base URL and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type transactionsResponse struct {
	Transactions []RawTransaction `json:"transactions"`
}

// FetchTransactions implements Gateway.
func (c *Client) FetchTransactions(ctx context.Context, accountID string, dr DateRange) ([]RawTransaction, []byte, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions", c.baseURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("FetchTransactions: %w", err)
	}
	q := req.URL.Query()
	q.Set("from", dr.From.Format("2006-01-02"))
	q.Set("to", dr.To.Format("2006-01-02"))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("FetchTransactions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("FetchTransactions: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var parsed transactionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("FetchTransactions: decode response: %w", err)
	}

	return parsed.Transactions, body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
