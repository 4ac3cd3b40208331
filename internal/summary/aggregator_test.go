package summary

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/logger"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedTransactions(t *testing.T, st *memory.Store, records []store.TransactionRecord) {
	t.Helper()
	if _, _, err := st.UpsertBatch(context.Background(), records); err != nil {
		t.Fatalf("seed transactions: %v", err)
	}
}

func TestRecomputeRangeDaily(t *testing.T) {
	st := memory.NewStore()
	seedTransactions(t, st, []store.TransactionRecord{
		{
			AccountID: "acc-1", TransactionID: "t1",
			Date: day(2025, 8, 25), Time: "09:12:44",
			Outflow: decimal.NewFromInt(4500), Balance: decimal.NewFromInt(995500),
			Description: "STARBUCKS GANGNAM", CategoryID: 1,
		},
		{
			AccountID: "acc-1", TransactionID: "t2",
			Date: day(2025, 8, 25), Time: "13:01:02",
			Outflow: decimal.NewFromInt(120000), Balance: decimal.NewFromInt(875500),
			Description: "KB CARD PAYMENT", CategoryID: 8,
		},
		{
			AccountID: "acc-1", TransactionID: "t3",
			Date: day(2025, 8, 25), Time: "18:00:00",
			Inflow: decimal.NewFromInt(50000), Balance: decimal.NewFromInt(925500),
			Description: "TRANSFER FROM KIM", CategoryID: 5,
		},
	})

	agg := NewAggregator(st, st, logger.NewWithWriter(&bytes.Buffer{}))
	if err := agg.RecomputeRange(context.Background(), "acc-1", day(2025, 8, 25), day(2025, 8, 25)); err != nil {
		t.Fatalf("RecomputeRange failed: %v", err)
	}

	dailies, err := st.FindDaily(context.Background(), "acc-1", day(2025, 8, 25), day(2025, 8, 25))
	if err != nil {
		t.Fatalf("FindDaily failed: %v", err)
	}
	if len(dailies) != 1 {
		t.Fatalf("got %d daily summaries, want 1", len(dailies))
	}

	d := dailies[0]
	if !d.TotalExpense.Equal(decimal.NewFromInt(124500)) {
		t.Errorf("TotalExpense = %s, want 124500", d.TotalExpense)
	}
	if !d.TotalIncome.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("TotalIncome = %s, want 50000", d.TotalIncome)
	}
	if !d.ByCategory[1].Equal(decimal.NewFromInt(4500)) {
		t.Errorf("ByCategory[1] = %s, want 4500", d.ByCategory[1])
	}
	if !d.ByCategory[8].Equal(decimal.NewFromInt(120000)) {
		t.Errorf("ByCategory[8] = %s, want 120000", d.ByCategory[8])
	}
	if _, ok := d.ByCategory[5]; ok {
		t.Error("income transaction must not appear in the expense breakdown")
	}
}

func TestRecomputeRangeMonthlyCoversWholeMonth(t *testing.T) {
	st := memory.NewStore()
	seedTransactions(t, st, []store.TransactionRecord{
		{
			AccountID: "acc-1", TransactionID: "t1",
			Date:    day(2025, 8, 3),
			Outflow: decimal.NewFromInt(10000), CategoryID: 2,
		},
		{
			AccountID: "acc-1", TransactionID: "t2",
			Date:    day(2025, 8, 25),
			Outflow: decimal.NewFromInt(4500), CategoryID: 1,
		},
	})

	agg := NewAggregator(st, st, logger.NewWithWriter(&bytes.Buffer{}))

	// Recompute only the 25th: the monthly row must still include the 3rd.
	if err := agg.RecomputeRange(context.Background(), "acc-1", day(2025, 8, 25), day(2025, 8, 25)); err != nil {
		t.Fatalf("RecomputeRange failed: %v", err)
	}

	months, err := st.FindMonthly(context.Background(), "acc-1", "2025-08", "2025-08")
	if err != nil {
		t.Fatalf("FindMonthly failed: %v", err)
	}
	if len(months) != 1 {
		t.Fatalf("got %d monthly summaries, want 1", len(months))
	}
	if !months[0].TotalExpense.Equal(decimal.NewFromInt(14500)) {
		t.Errorf("monthly TotalExpense = %s, want 14500", months[0].TotalExpense)
	}

	// Only the triggering day gets a daily row rewritten.
	dailies, err := st.FindDaily(context.Background(), "acc-1", day(2025, 8, 1), day(2025, 8, 31))
	if err != nil {
		t.Fatalf("FindDaily failed: %v", err)
	}
	if len(dailies) != 1 {
		t.Errorf("got %d daily summaries, want 1", len(dailies))
	}
}

func TestRecomputeRangeIdempotent(t *testing.T) {
	st := memory.NewStore()
	seedTransactions(t, st, []store.TransactionRecord{
		{
			AccountID: "acc-1", TransactionID: "t1",
			Date:    day(2025, 8, 25),
			Outflow: decimal.NewFromInt(4500), CategoryID: 1,
		},
	})

	agg := NewAggregator(st, st, logger.NewWithWriter(&bytes.Buffer{}))
	for i := 0; i < 3; i++ {
		if err := agg.RecomputeRange(context.Background(), "acc-1", day(2025, 8, 25), day(2025, 8, 25)); err != nil {
			t.Fatalf("RecomputeRange run %d failed: %v", i+1, err)
		}
	}

	dailies, _ := st.FindDaily(context.Background(), "acc-1", day(2025, 8, 25), day(2025, 8, 25))
	if len(dailies) != 1 {
		t.Fatalf("got %d daily summaries after 3 runs, want 1", len(dailies))
	}
	if !dailies[0].TotalExpense.Equal(decimal.NewFromInt(4500)) {
		t.Errorf("TotalExpense = %s, want 4500 (replace, not increment)", dailies[0].TotalExpense)
	}
	months, _ := st.FindMonthly(context.Background(), "acc-1", "2025-08", "2025-08")
	if len(months) != 1 || !months[0].TotalExpense.Equal(decimal.NewFromInt(4500)) {
		t.Error("monthly summary must converge under repeated recomputation")
	}
}

func TestRecomputeRangeSpansMonths(t *testing.T) {
	st := memory.NewStore()
	seedTransactions(t, st, []store.TransactionRecord{
		{
			AccountID: "acc-1", TransactionID: "t1",
			Date:    day(2025, 7, 31),
			Outflow: decimal.NewFromInt(1000), CategoryID: 1,
		},
		{
			AccountID: "acc-1", TransactionID: "t2",
			Date:    day(2025, 8, 1),
			Outflow: decimal.NewFromInt(2000), CategoryID: 1,
		},
	})

	agg := NewAggregator(st, st, logger.NewWithWriter(&bytes.Buffer{}))
	if err := agg.RecomputeRange(context.Background(), "acc-1", day(2025, 7, 31), day(2025, 8, 1)); err != nil {
		t.Fatalf("RecomputeRange failed: %v", err)
	}

	months, err := st.FindMonthly(context.Background(), "acc-1", "2025-07", "2025-08")
	if err != nil {
		t.Fatalf("FindMonthly failed: %v", err)
	}
	if len(months) != 2 {
		t.Fatalf("got %d monthly summaries, want 2", len(months))
	}
}

func TestRecomputeRangeRejectsInvertedRange(t *testing.T) {
	st := memory.NewStore()
	agg := NewAggregator(st, st, logger.NewWithWriter(&bytes.Buffer{}))
	err := agg.RecomputeRange(context.Background(), "acc-1", day(2025, 8, 25), day(2025, 8, 24))
	if err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestRecomputeAll(t *testing.T) {
	st := memory.NewStore()
	seedTransactions(t, st, []store.TransactionRecord{
		{AccountID: "acc-1", TransactionID: "t1", Date: day(2025, 8, 25), Outflow: decimal.NewFromInt(100), CategoryID: 1},
		{AccountID: "acc-2", TransactionID: "t2", Date: day(2025, 8, 25), Outflow: decimal.NewFromInt(200), CategoryID: 2},
	})

	agg := NewAggregator(st, st, logger.NewWithWriter(&bytes.Buffer{}))
	if err := agg.RecomputeAll(context.Background(), day(2025, 8, 25), day(2025, 8, 25)); err != nil {
		t.Fatalf("RecomputeAll failed: %v", err)
	}

	for _, acc := range []string{"acc-1", "acc-2"} {
		dailies, err := st.FindDaily(context.Background(), acc, day(2025, 8, 25), day(2025, 8, 25))
		if err != nil {
			t.Fatalf("FindDaily(%s) failed: %v", acc, err)
		}
		if len(dailies) != 1 {
			t.Errorf("account %s: got %d daily summaries, want 1", acc, len(dailies))
		}
	}
}
