package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// RunRow mirrors the ingestion_runs table schema.
type RunRow struct {
	BatchID   string     `bigquery:"batch_id"`
	AccountID string     `bigquery:"account_id"`
	FromDate  civil.Date `bigquery:"from_date"`
	ToDate    civil.Date `bigquery:"to_date"`

	Status       string              `bigquery:"status"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"`
	ArchiveURI   bigquery.NullString `bigquery:"archive_uri"`

	StartedAt  time.Time              `bigquery:"started_at"`
	FinishedAt bigquery.NullTimestamp `bigquery:"finished_at"`
}

// Run converts the row back to the domain type.
func (r RunRow) Run() *store.IngestionRun {
	run := &store.IngestionRun{
		BatchID:      r.BatchID,
		AccountID:    r.AccountID,
		From:         r.FromDate.In(time.UTC),
		To:           r.ToDate.In(time.UTC),
		Status:       store.RunStatus(r.Status),
		ErrorMessage: r.ErrorMessage.StringVal,
		ArchiveURI:   r.ArchiveURI.StringVal,
		StartedAt:    r.StartedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Timestamp
		run.FinishedAt = &t
	}
	return run
}

// CreateRun implements store.RunRepository.
func (s *Store) CreateRun(ctx context.Context, run *store.IngestionRun) error {
	q := s.client.Query(fmt.Sprintf(`
		INSERT INTO %s (batch_id, account_id, from_date, to_date, status, started_at)
		VALUES (@batch_id, @account_id, @from_date, @to_date, @status, @started_at)
	`, s.table(ingestionRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: run.BatchID},
		{Name: "account_id", Value: run.AccountID},
		{Name: "from_date", Value: civil.DateOf(run.From)},
		{Name: "to_date", Value: civil.DateOf(run.To)},
		{Name: "status", Value: string(run.Status)},
		{Name: "started_at", Value: run.StartedAt},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("CreateRun: %w", err)
	}
	return nil
}

// GetRun implements store.RunRepository.
func (s *Store) GetRun(ctx context.Context, batchID string) (*store.IngestionRun, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT batch_id, account_id, from_date, to_date, status, error_message,
		       archive_uri, started_at, finished_at
		FROM %s
		WHERE batch_id = @batch_id
	`, s.table(ingestionRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetRun: query read: %w", err)
	}

	var row RunRow
	if err := it.Next(&row); err == iterator.Done {
		return nil, store.ErrRunNotFound
	} else if err != nil {
		return nil, fmt.Errorf("GetRun: iterate: %w", err)
	}
	return row.Run(), nil
}

// UpdateRunStatus implements store.RunRepository. The state machine check
// happens in Go against the current row; the UPDATE then requires the status
// it read, so a concurrent transition makes the statement touch zero rows
// and the caller gets ErrIllegalTransition instead of a silent overwrite.
func (s *Store) UpdateRunStatus(ctx context.Context, batchID string, status store.RunStatus, errorMessage string) error {
	current, err := s.GetRun(ctx, batchID)
	if err != nil {
		return fmt.Errorf("UpdateRunStatus: %w", err)
	}
	if !current.Status.CanTransition(status) {
		return fmt.Errorf("UpdateRunStatus: %s -> %s: %w", current.Status, status, store.ErrIllegalTransition)
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s SET
			status        = @status,
			error_message = @error_message,
			finished_at   = IF(@terminal, CURRENT_TIMESTAMP(), finished_at)
		WHERE batch_id = @batch_id AND status = @expected_status
	`, s.table(ingestionRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "error_message", Value: errorMessage},
		{Name: "terminal", Value: status.Terminal()},
		{Name: "batch_id", Value: batchID},
		{Name: "expected_status", Value: string(current.Status)},
	}

	stats, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("UpdateRunStatus: %w", err)
	}
	if stats == nil || stats.UpdatedRowCount == 0 {
		return fmt.Errorf("UpdateRunStatus: run %s changed concurrently: %w", batchID, store.ErrIllegalTransition)
	}
	return nil
}

// SetRunArchiveURI implements store.RunRepository.
func (s *Store) SetRunArchiveURI(ctx context.Context, batchID, uri string) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s SET archive_uri = @archive_uri WHERE batch_id = @batch_id
	`, s.table(ingestionRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "archive_uri", Value: uri},
		{Name: "batch_id", Value: batchID},
	}

	stats, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("SetRunArchiveURI: %w", err)
	}
	if stats == nil || stats.UpdatedRowCount == 0 {
		return store.ErrRunNotFound
	}
	return nil
}
