package pipeline

import (
	"fmt"
	"time"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/aggregator"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// normalizeBatch converts provider rows into transaction records. Rows
// without a provider-assigned id get a deterministic synthetic one, with a
// per-tuple sequence number so identical same-day rows stay distinct yet map
// to the same ids when the batch is fetched again.
func normalizeBatch(accountID string, raws []aggregator.RawTransaction, ingestedAt time.Time) ([]store.TransactionRecord, error) {
	records := make([]store.TransactionRecord, 0, len(raws))
	seen := make(map[string]int)

	for i, raw := range raws {
		date, err := time.ParseInLocation(store.DateFormat, raw.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("normalize row %d: bad transaction date %q: %w", i, raw.Date, err)
		}

		id := raw.TransactionID
		if id == "" {
			tuple := fmt.Sprintf("%s|%s|%s|%s", raw.Date, raw.Time, raw.Inflow.String(), raw.Outflow.String())
			seq := seen[tuple]
			seen[tuple] = seq + 1
			id = store.SyntheticTransactionID(accountID, date, raw.Time, raw.Inflow, raw.Outflow, seq)
		}

		records = append(records, store.TransactionRecord{
			AccountID:     accountID,
			TransactionID: id,
			Date:          date,
			Time:          raw.Time,
			Inflow:        raw.Inflow,
			Outflow:       raw.Outflow,
			Balance:       raw.Balance,
			Description:   raw.Description,
			IngestedAt:    ingestedAt,
		})
	}
	return records, nil
}

// distinctDescriptions returns the unique descriptions in batch order.
func distinctDescriptions(records []store.TransactionRecord) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Description]; ok {
			continue
		}
		seen[r.Description] = struct{}{}
		out = append(out, r.Description)
	}
	return out
}

// batchDateBounds returns the earliest and latest transaction dates in the
// batch. ok is false for an empty batch.
func batchDateBounds(records []store.TransactionRecord) (from, to time.Time, ok bool) {
	for _, r := range records {
		if !ok {
			from, to, ok = r.Date, r.Date, true
			continue
		}
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to, ok
}
