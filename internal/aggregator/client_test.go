package aggregator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFetchTransactions(t *testing.T) {
	const responseBody = `{
		"transactions": [
			{
				"transaction_id": "tx-1001",
				"transaction_date": "2025-08-25",
				"transaction_time": "09:12:44",
				"inflow": "0",
				"outflow": "4500",
				"balance_after": "995500",
				"description": "STARBUCKS GANGNAM"
			},
			{
				"transaction_id": "tx-1002",
				"transaction_date": "2025-08-25",
				"transaction_time": "13:01:02",
				"inflow": "0",
				"outflow": "120000",
				"balance_after": "875500",
				"description": "KB CARD PAYMENT"
			}
		]
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/acc-1/transactions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization header = %q", got)
		}
		if got := r.URL.Query().Get("from"); got != "2025-08-25" {
			t.Errorf("from = %q", got)
		}
		if got := r.URL.Query().Get("to"); got != "2025-08-26" {
			t.Errorf("to = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", 5*time.Second)
	dr := DateRange{
		From: time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 8, 26, 0, 0, 0, 0, time.UTC),
	}

	txns, raw, err := c.FetchTransactions(context.Background(), "acc-1", dr)
	if err != nil {
		t.Fatalf("FetchTransactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	if txns[0].TransactionID != "tx-1001" {
		t.Errorf("TransactionID = %q", txns[0].TransactionID)
	}
	if !txns[0].Outflow.Equal(decimal.NewFromInt(4500)) {
		t.Errorf("Outflow = %s, want 4500", txns[0].Outflow)
	}
	if txns[1].Description != "KB CARD PAYMENT" {
		t.Errorf("Description = %q", txns[1].Description)
	}
	if string(raw) != responseBody {
		t.Error("raw body does not match the provider response")
	}
}

func TestFetchTransactionsStatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "t", time.Second)
			_, _, err := c.FetchTransactions(context.Background(), "acc-1", DateRange{})
			if err == nil {
				t.Fatal("expected error")
			}
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error %v is not a StatusError", err)
			}
			if se.Code != tt.status {
				t.Errorf("Code = %d, want %d", se.Code, tt.status)
			}
			if se.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", se.Retryable(), tt.retryable)
			}
		})
	}
}

func TestFetchTransactionsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	_, _, err := c.FetchTransactions(context.Background(), "acc-1", DateRange{})
	if err == nil {
		t.Fatal("expected decode error")
	}
}
