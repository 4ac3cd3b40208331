package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/aggregator"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

func TestNormalizeBatchKeepsProviderID(t *testing.T) {
	now := time.Date(2025, 8, 26, 10, 0, 0, 0, time.UTC)
	records, err := normalizeBatch("acc-1", []aggregator.RawTransaction{
		{
			TransactionID: "tx-1001",
			Date:          "2025-08-25",
			Time:          "09:12:44",
			Outflow:       decimal.NewFromInt(4500),
			Description:   "STARBUCKS GANGNAM",
		},
	}, now)
	if err != nil {
		t.Fatalf("normalizeBatch failed: %v", err)
	}
	if records[0].TransactionID != "tx-1001" {
		t.Errorf("TransactionID = %q, want the provider id kept verbatim", records[0].TransactionID)
	}
	if !records[0].Date.Equal(time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", records[0].Date)
	}
	if !records[0].IngestedAt.Equal(now) {
		t.Errorf("IngestedAt = %v, want %v", records[0].IngestedAt, now)
	}
}

func TestNormalizeBatchSyntheticIDs(t *testing.T) {
	// Two identical rows without provider ids must get distinct synthetic
	// ids, and re-normalizing the same batch must reproduce them.
	raws := []aggregator.RawTransaction{
		{Date: "2025-08-25", Time: "09:00:00", Outflow: decimal.NewFromInt(1000), Description: "BUS"},
		{Date: "2025-08-25", Time: "09:00:00", Outflow: decimal.NewFromInt(1000), Description: "BUS"},
		{Date: "2025-08-25", Time: "12:00:00", Outflow: decimal.NewFromInt(8000), Description: "LUNCH"},
	}
	now := time.Now()

	first, err := normalizeBatch("acc-1", raws, now)
	if err != nil {
		t.Fatalf("normalizeBatch failed: %v", err)
	}
	second, err := normalizeBatch("acc-1", raws, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("normalizeBatch failed: %v", err)
	}

	if first[0].TransactionID == first[1].TransactionID {
		t.Error("identical rows in one batch must get distinct synthetic ids")
	}
	for i := range first {
		if first[i].TransactionID != second[i].TransactionID {
			t.Errorf("row %d: synthetic id changed across re-ingestion: %q vs %q",
				i, first[i].TransactionID, second[i].TransactionID)
		}
	}
}

func TestNormalizeBatchBadDate(t *testing.T) {
	_, err := normalizeBatch("acc-1", []aggregator.RawTransaction{
		{Date: "25/08/2025", Time: "09:00:00"},
	}, time.Now())
	if err == nil {
		t.Error("expected error for unparseable transaction date")
	}
}

func TestDistinctDescriptions(t *testing.T) {
	records := []store.TransactionRecord{
		{Description: "STARBUCKS GANGNAM"},
		{Description: "KB CARD PAYMENT"},
		{Description: "STARBUCKS GANGNAM"},
	}
	got := distinctDescriptions(records)
	want := []string{"STARBUCKS GANGNAM", "KB CARD PAYMENT"}
	if len(got) != len(want) {
		t.Fatalf("got %d descriptions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("description %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBatchDateBounds(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, 8, day, 0, 0, 0, 0, time.UTC) }

	from, to, ok := batchDateBounds([]store.TransactionRecord{
		{Date: d(20)}, {Date: d(3)}, {Date: d(25)},
	})
	if !ok {
		t.Fatal("expected ok for non-empty batch")
	}
	if !from.Equal(d(3)) || !to.Equal(d(25)) {
		t.Errorf("bounds = [%v, %v], want [2025-08-03, 2025-08-25]", from, to)
	}

	if _, _, ok := batchDateBounds(nil); ok {
		t.Error("expected ok=false for empty batch")
	}
}
