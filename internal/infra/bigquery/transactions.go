package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// TransactionRow mirrors the transactions table schema.
type TransactionRow struct {
	AccountID     string `bigquery:"account_id"`     // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	TransactionTime string     `bigquery:"transaction_time"` // NULLABLE

	Inflow       *big.Rat `bigquery:"inflow"`        // REQUIRED NUMERIC
	Outflow      *big.Rat `bigquery:"outflow"`       // REQUIRED NUMERIC
	BalanceAfter *big.Rat `bigquery:"balance_after"` // NULLABLE NUMERIC

	Description string             `bigquery:"description"` // REQUIRED
	CategoryID  bigquery.NullInt64 `bigquery:"category_id"` // NULLABLE until classified

	IngestedAt time.Time `bigquery:"ingested_at"` // REQUIRED
}

func transactionRowFromRecord(r store.TransactionRecord) TransactionRow {
	row := TransactionRow{
		AccountID:       r.AccountID,
		TransactionID:   r.TransactionID,
		TransactionDate: civil.DateOf(r.Date),
		TransactionTime: r.Time,
		Inflow:          ratFromDecimal(r.Inflow),
		Outflow:         ratFromDecimal(r.Outflow),
		BalanceAfter:    ratFromDecimal(r.Balance),
		Description:     r.Description,
		IngestedAt:      r.IngestedAt,
	}
	if r.CategoryID != 0 {
		row.CategoryID = bigquery.NullInt64{Int64: r.CategoryID, Valid: true}
	}
	return row
}

// Record converts the row back to the domain type.
func (r TransactionRow) Record() store.TransactionRecord {
	rec := store.TransactionRecord{
		AccountID:     r.AccountID,
		TransactionID: r.TransactionID,
		Date:          r.TransactionDate.In(time.UTC),
		Time:          r.TransactionTime,
		Inflow:        decimalFromRat(r.Inflow),
		Outflow:       decimalFromRat(r.Outflow),
		Balance:       decimalFromRat(r.BalanceAfter),
		Description:   r.Description,
		IngestedAt:    r.IngestedAt,
	}
	if r.CategoryID.Valid {
		rec.CategoryID = r.CategoryID.Int64
	}
	return rec
}

// UpsertBatch implements store.TransactionRepository. One MERGE statement
// handles the whole batch: existing rows only take the mutable columns,
// everything else stays as first ingested.
func (s *Store) UpsertBatch(ctx context.Context, records []store.TransactionRecord) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	rows := make([]TransactionRow, 0, len(records))
	for _, r := range records {
		if r.AccountID == "" || r.TransactionID == "" {
			return 0, 0, fmt.Errorf("UpsertBatch: record %q is missing its natural key", r.Description)
		}
		rows = append(rows, transactionRowFromRecord(r))
	}

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING UNNEST(@rows) S
		ON T.account_id = S.account_id AND T.transaction_id = S.transaction_id
		WHEN MATCHED THEN UPDATE SET
			category_id   = S.category_id,
			balance_after = S.balance_after,
			ingested_at   = S.ingested_at
		WHEN NOT MATCHED THEN INSERT (
			account_id, transaction_id, transaction_date, transaction_time,
			inflow, outflow, balance_after, description, category_id, ingested_at
		) VALUES (
			S.account_id, S.transaction_id, S.transaction_date, S.transaction_time,
			S.inflow, S.outflow, S.balance_after, S.description, S.category_id, S.ingested_at
		)
	`, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rows", Value: rows},
	}

	stats, err := s.runDML(ctx, q)
	if err != nil {
		return 0, 0, fmt.Errorf("UpsertBatch: %w", err)
	}

	var inserted, updated int
	if stats != nil {
		inserted = int(stats.InsertedRowCount)
		updated = int(stats.UpdatedRowCount)
	}
	s.log.Debug().Int("inserted", inserted).Int("updated", updated).Msg("Merged transaction batch")
	return inserted, updated, nil
}

// FindByAccountAndRange implements store.TransactionRepository.
func (s *Store) FindByAccountAndRange(ctx context.Context, accountID string, from, to time.Time) ([]store.TransactionRecord, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			account_id, transaction_id, transaction_date, transaction_time,
			inflow, outflow, balance_after, description, category_id, ingested_at
		FROM %s
		WHERE account_id = @account_id
		  AND transaction_date >= @from_date
		  AND transaction_date <= @to_date
		ORDER BY transaction_date, transaction_time, transaction_id
	`, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "from_date", Value: civil.DateOf(from)},
		{Name: "to_date", Value: civil.DateOf(to)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindByAccountAndRange: query read: %w", err)
	}

	var records []store.TransactionRecord
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindByAccountAndRange: iterate: %w", err)
		}
		records = append(records, row.Record())
	}
	return records, nil
}

// ListAccountIDs implements store.TransactionRepository.
func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT DISTINCT account_id FROM %s ORDER BY account_id
	`, s.table(transactionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccountIDs: query read: %w", err)
	}

	var ids []string
	for {
		var row struct {
			AccountID string `bigquery:"account_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccountIDs: iterate: %w", err)
		}
		ids = append(ids, row.AccountID)
	}
	return ids, nil
}
