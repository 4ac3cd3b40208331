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
	"github.com/shopspring/decimal"
)

// CategoryAmountRow is one entry of the repeated by_category column.
type CategoryAmountRow struct {
	CategoryID int64    `bigquery:"category_id"`
	Amount     *big.Rat `bigquery:"amount"`
}

// DailySummaryRow mirrors the daily_summaries table schema.
type DailySummaryRow struct {
	AccountID    string              `bigquery:"account_id"`
	SummaryDate  civil.Date          `bigquery:"summary_date"`
	TotalIncome  *big.Rat            `bigquery:"total_income"`
	TotalExpense *big.Rat            `bigquery:"total_expense"`
	ByCategory   []CategoryAmountRow `bigquery:"by_category"`
	UpdatedAt    time.Time           `bigquery:"updated_at"`
}

// MonthlySummaryRow mirrors the monthly_summaries table schema.
type MonthlySummaryRow struct {
	AccountID    string              `bigquery:"account_id"`
	SummaryMonth string              `bigquery:"summary_month"`
	TotalIncome  *big.Rat            `bigquery:"total_income"`
	TotalExpense *big.Rat            `bigquery:"total_expense"`
	ByCategory   []CategoryAmountRow `bigquery:"by_category"`
	UpdatedAt    time.Time           `bigquery:"updated_at"`
}

func categoryRows(byCategory map[int64]decimal.Decimal) []CategoryAmountRow {
	rows := make([]CategoryAmountRow, 0, len(byCategory))
	for id, amount := range byCategory {
		rows = append(rows, CategoryAmountRow{CategoryID: id, Amount: ratFromDecimal(amount)})
	}
	return rows
}

func categoryMap(rows []CategoryAmountRow) map[int64]decimal.Decimal {
	m := make(map[int64]decimal.Decimal, len(rows))
	for _, r := range rows {
		m[r.CategoryID] = decimalFromRat(r.Amount)
	}
	return m
}

// UpsertDaily implements store.SummaryRepository. The whole row is replaced,
// including the category breakdown.
func (s *Store) UpsertDaily(ctx context.Context, sum store.DailySummary) error {
	row := DailySummaryRow{
		AccountID:    sum.AccountID,
		SummaryDate:  civil.DateOf(sum.Date),
		TotalIncome:  ratFromDecimal(sum.TotalIncome),
		TotalExpense: ratFromDecimal(sum.TotalExpense),
		ByCategory:   categoryRows(sum.ByCategory),
		UpdatedAt:    time.Now().UTC(),
	}

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING UNNEST([@row]) S
		ON T.account_id = S.account_id AND T.summary_date = S.summary_date
		WHEN MATCHED THEN UPDATE SET
			total_income  = S.total_income,
			total_expense = S.total_expense,
			by_category   = S.by_category,
			updated_at    = S.updated_at
		WHEN NOT MATCHED THEN INSERT (
			account_id, summary_date, total_income, total_expense, by_category, updated_at
		) VALUES (
			S.account_id, S.summary_date, S.total_income, S.total_expense, S.by_category, S.updated_at
		)
	`, s.table(dailySummariesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "row", Value: row},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertDaily: %w", err)
	}
	return nil
}

// UpsertMonthly implements store.SummaryRepository.
func (s *Store) UpsertMonthly(ctx context.Context, sum store.MonthlySummary) error {
	row := MonthlySummaryRow{
		AccountID:    sum.AccountID,
		SummaryMonth: sum.Month,
		TotalIncome:  ratFromDecimal(sum.TotalIncome),
		TotalExpense: ratFromDecimal(sum.TotalExpense),
		ByCategory:   categoryRows(sum.ByCategory),
		UpdatedAt:    time.Now().UTC(),
	}

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING UNNEST([@row]) S
		ON T.account_id = S.account_id AND T.summary_month = S.summary_month
		WHEN MATCHED THEN UPDATE SET
			total_income  = S.total_income,
			total_expense = S.total_expense,
			by_category   = S.by_category,
			updated_at    = S.updated_at
		WHEN NOT MATCHED THEN INSERT (
			account_id, summary_month, total_income, total_expense, by_category, updated_at
		) VALUES (
			S.account_id, S.summary_month, S.total_income, S.total_expense, S.by_category, S.updated_at
		)
	`, s.table(monthlySummariesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "row", Value: row},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertMonthly: %w", err)
	}
	return nil
}

// FindDaily implements store.SummaryRepository.
func (s *Store) FindDaily(ctx context.Context, accountID string, from, to time.Time) ([]store.DailySummary, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT account_id, summary_date, total_income, total_expense, by_category, updated_at
		FROM %s
		WHERE account_id = @account_id
		  AND summary_date >= @from_date
		  AND summary_date <= @to_date
		ORDER BY summary_date
	`, s.table(dailySummariesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "from_date", Value: civil.DateOf(from)},
		{Name: "to_date", Value: civil.DateOf(to)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindDaily: query read: %w", err)
	}

	var out []store.DailySummary
	for {
		var row DailySummaryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindDaily: iterate: %w", err)
		}
		out = append(out, store.DailySummary{
			AccountID:    row.AccountID,
			Date:         row.SummaryDate.In(time.UTC),
			TotalIncome:  decimalFromRat(row.TotalIncome),
			TotalExpense: decimalFromRat(row.TotalExpense),
			ByCategory:   categoryMap(row.ByCategory),
		})
	}
	return out, nil
}

// FindMonthly implements store.SummaryRepository.
func (s *Store) FindMonthly(ctx context.Context, accountID string, fromMonth, toMonth string) ([]store.MonthlySummary, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT account_id, summary_month, total_income, total_expense, by_category, updated_at
		FROM %s
		WHERE account_id = @account_id
		  AND summary_month >= @from_month
		  AND summary_month <= @to_month
		ORDER BY summary_month
	`, s.table(monthlySummariesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "from_month", Value: fromMonth},
		{Name: "to_month", Value: toMonth},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindMonthly: query read: %w", err)
	}

	var out []store.MonthlySummary
	for {
		var row MonthlySummaryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindMonthly: iterate: %w", err)
		}
		out = append(out, store.MonthlySummary{
			AccountID:    row.AccountID,
			Month:        row.SummaryMonth,
			TotalIncome:  decimalFromRat(row.TotalIncome),
			TotalExpense: decimalFromRat(row.TotalExpense),
			ByCategory:   categoryMap(row.ByCategory),
		})
	}
	return out, nil
}
