package store

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a batch id does not resolve to a run.
var ErrRunNotFound = errors.New("ingestion run not found")

// ErrIllegalTransition is returned when a status update would violate the
// per-batch state machine.
var ErrIllegalTransition = errors.New("illegal run status transition")

// TransactionRepository persists normalized transactions. Upserts are keyed
// by the natural key: concurrent upserts of the same key from overlapping
// runs converge to one row. CategoryID and Balance are last-write-wins;
// Date, Time, Inflow and Outflow are immutable once inserted.
type TransactionRepository interface {
	UpsertBatch(ctx context.Context, records []TransactionRecord) (inserted, updated int, err error)
	FindByAccountAndRange(ctx context.Context, accountID string, from, to time.Time) ([]TransactionRecord, error)
	// ListAccountIDs returns every account that has at least one persisted
	// transaction. Used by the scheduled re-aggregation passes.
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// SummaryRepository persists rollups. Upserts replace the whole row for the
// (account, period) key, which keeps recomputation idempotent under
// duplicate delivery.
type SummaryRepository interface {
	UpsertDaily(ctx context.Context, s DailySummary) error
	UpsertMonthly(ctx context.Context, s MonthlySummary) error
	FindDaily(ctx context.Context, accountID string, from, to time.Time) ([]DailySummary, error)
	FindMonthly(ctx context.Context, accountID string, fromMonth, toMonth string) ([]MonthlySummary, error)
}

// RunRepository tracks ingestion runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *IngestionRun) error
	GetRun(ctx context.Context, batchID string) (*IngestionRun, error)
	// UpdateRunStatus applies a state-machine transition. It returns
	// ErrIllegalTransition when the move is not legal from the current state.
	UpdateRunStatus(ctx context.Context, batchID string, status RunStatus, errorMessage string) error
	SetRunArchiveURI(ctx context.Context, batchID, uri string) error
}

// RuleRepository loads the ordered classification rule table.
type RuleRepository interface {
	ListRules(ctx context.Context) ([]CategoryRule, error)
}
