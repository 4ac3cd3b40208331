package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MonthFormat is the key format for monthly summary periods.
const MonthFormat = "2006-01"

// DateFormat is the key format for daily summary periods and date-range queries.
const DateFormat = "2006-01-02"

// TransactionRecord is one normalized transaction from a linked account.
// The natural key is (AccountID, TransactionID). When the aggregator supplies
// a stable transaction id it is used verbatim; otherwise the id is synthesized
// deterministically with SyntheticTransactionID so that re-ingesting the same
// raw data always maps to the same row.
type TransactionRecord struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`

	Date        time.Time       `json:"date"` // day granularity, UTC midnight
	Time        string          `json:"time"` // "15:04:05", as reported by the aggregator
	Inflow      decimal.Decimal `json:"inflow"`
	Outflow     decimal.Decimal `json:"outflow"`
	Balance     decimal.Decimal `json:"balance"` // post-transaction balance
	Description string          `json:"description"` // raw description from the aggregator

	CategoryID int64     `json:"category_id"` // 0 until classified
	IngestedAt time.Time `json:"ingested_at"`
}

// Key returns the natural key of the record.
func (r TransactionRecord) Key() string {
	return r.AccountID + "/" + r.TransactionID
}

// SyntheticTransactionID derives a stable transaction id for records the
// aggregator did not assign one to. The sequence number disambiguates
// identical same-day transactions within one fetched batch.
func SyntheticTransactionID(accountID string, date time.Time, timeOfDay string, inflow, outflow decimal.Decimal, seq int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%s|%d",
		accountID, date.Format(DateFormat), timeOfDay, inflow.String(), outflow.String(), seq))
	return "syn-" + hex.EncodeToString(h[:12])
}

// CategoryRule maps a keyword to a category id. Rules are evaluated in
// Priority order; the first match wins.
type CategoryRule struct {
	Priority   int
	Keyword    string
	CategoryID int64
}

// DailySummary is the income/expense rollup for one account and one day.
// Rows are written by full replacement, never by incrementing.
type DailySummary struct {
	AccountID    string
	Date         time.Time
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	ByCategory   map[int64]decimal.Decimal // expense per category id
}

// MonthlySummary is the income/expense rollup for one account and one month.
type MonthlySummary struct {
	AccountID    string
	Month        string // MonthFormat
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	ByCategory   map[int64]decimal.Decimal
}

// RunStatus is the per-batch pipeline state.
type RunStatus string

const (
	RunRequested    RunStatus = "REQUESTED"
	RunFetching     RunStatus = "FETCHING"
	RunFetched      RunStatus = "FETCHED"
	RunCategorizing RunStatus = "CATEGORIZING"
	RunCategorized  RunStatus = "CATEGORIZED"
	RunPersisting   RunStatus = "PERSISTING"
	RunPersisted    RunStatus = "PERSISTED"
	RunSummarizing  RunStatus = "SUMMARIZING"
	RunCompleted    RunStatus = "COMPLETED"
	RunFailed       RunStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// next maps each non-terminal status to its successor on the happy path.
var next = map[RunStatus]RunStatus{
	RunRequested:    RunFetching,
	RunFetching:     RunFetched,
	RunFetched:      RunCategorizing,
	RunCategorizing: RunCategorized,
	RunCategorized:  RunPersisting,
	RunPersisting:   RunPersisted,
	RunPersisted:    RunSummarizing,
	RunSummarizing:  RunCompleted,
}

// CanTransition reports whether moving from s to to is legal: one step
// forward on the happy path, or to Failed from any non-terminal state.
func (s RunStatus) CanTransition(to RunStatus) bool {
	if s.Terminal() {
		return false
	}
	if to == RunFailed {
		return true
	}
	return next[s] == to
}

// IngestionRun tracks one batch (account + date range) through the pipeline.
type IngestionRun struct {
	BatchID   string
	AccountID string
	From      time.Time
	To        time.Time

	Status       RunStatus
	ErrorMessage string
	ArchiveURI   string // GCS URI of the archived raw payload, if archiving is enabled

	StartedAt  time.Time
	FinishedAt *time.Time
}
