// Package summary recomputes daily and monthly income/expense rollups from
// persisted transactions.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// Aggregator rebuilds summary rows from the transactions that back them.
// Every write is a full replacement of the (account, period) row, so
// recomputing the same range twice always converges to the same summaries.
type Aggregator struct {
	txns      store.TransactionRepository
	summaries store.SummaryRepository
	log       zerolog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(txns store.TransactionRepository, summaries store.SummaryRepository, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		txns:      txns,
		summaries: summaries,
		log:       log.With().Str("component", "summary").Logger(),
	}
}

// RecomputeRange rebuilds the daily summaries for every day in [from, to]
// that has transactions, and the monthly summaries for every month the range
// touches. The transaction scan is widened to whole months so a monthly row
// is always rebuilt from the full month, not just the triggering range.
func (a *Aggregator) RecomputeRange(ctx context.Context, accountID string, from, to time.Time) error {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return fmt.Errorf("RecomputeRange: range end %s precedes start %s",
			to.Format(store.DateFormat), from.Format(store.DateFormat))
	}

	scanFrom := firstOfMonth(from)
	scanTo := lastOfMonth(to)

	records, err := a.txns.FindByAccountAndRange(ctx, accountID, scanFrom, scanTo)
	if err != nil {
		return fmt.Errorf("RecomputeRange: load transactions: %w", err)
	}

	daily := make(map[string]*store.DailySummary)
	monthly := make(map[string]*store.MonthlySummary)

	for _, r := range records {
		dayKey := r.Date.Format(store.DateFormat)
		d, ok := daily[dayKey]
		if !ok {
			d = &store.DailySummary{
				AccountID:  accountID,
				Date:       truncateDay(r.Date),
				ByCategory: make(map[int64]decimal.Decimal),
			}
			daily[dayKey] = d
		}
		accumulate(&d.TotalIncome, &d.TotalExpense, d.ByCategory, r)

		monthKey := r.Date.Format(store.MonthFormat)
		m, ok := monthly[monthKey]
		if !ok {
			m = &store.MonthlySummary{
				AccountID:  accountID,
				Month:      monthKey,
				ByCategory: make(map[int64]decimal.Decimal),
			}
			monthly[monthKey] = m
		}
		accumulate(&m.TotalIncome, &m.TotalExpense, m.ByCategory, r)
	}

	written := 0
	for _, d := range daily {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		if err := a.summaries.UpsertDaily(ctx, *d); err != nil {
			return fmt.Errorf("RecomputeRange: upsert daily %s: %w", d.Date.Format(store.DateFormat), err)
		}
		written++
	}
	for _, m := range monthly {
		if err := a.summaries.UpsertMonthly(ctx, *m); err != nil {
			return fmt.Errorf("RecomputeRange: upsert monthly %s: %w", m.Month, err)
		}
		written++
	}

	a.log.Info().
		Str("account_id", accountID).
		Str("from", from.Format(store.DateFormat)).
		Str("to", to.Format(store.DateFormat)).
		Int("transactions", len(records)).
		Int("summaries_written", written).
		Msg("Recomputed summaries")
	return nil
}

// RecomputeAll rebuilds summaries over the lookback window for every account
// with persisted transactions. Used by the scheduled rebuild passes.
func (a *Aggregator) RecomputeAll(ctx context.Context, from, to time.Time) error {
	accounts, err := a.txns.ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("RecomputeAll: list accounts: %w", err)
	}

	var failed int
	for _, id := range accounts {
		if err := a.RecomputeRange(ctx, id, from, to); err != nil {
			failed++
			a.log.Error().Err(err).Str("account_id", id).Msg("Recompute failed for account")
		}
	}
	if failed > 0 {
		return fmt.Errorf("RecomputeAll: %d of %d accounts failed", failed, len(accounts))
	}
	return nil
}

func accumulate(income, expense *decimal.Decimal, byCategory map[int64]decimal.Decimal, r store.TransactionRecord) {
	if r.Inflow.IsPositive() {
		*income = income.Add(r.Inflow)
	}
	if r.Outflow.IsPositive() {
		*expense = expense.Add(r.Outflow)
		byCategory[r.CategoryID] = byCategory[r.CategoryID].Add(r.Outflow)
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func lastOfMonth(t time.Time) time.Time {
	return firstOfMonth(t).AddDate(0, 1, -1)
}
