package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of the repository contracts.
// It is safe for concurrent use. Data is lost on restart; production
// deployments use the BigQuery-backed repositories instead.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]store.TransactionRecord // natural key -> row
	daily        map[string]store.DailySummary      // accountID/date -> row
	monthly      map[string]store.MonthlySummary    // accountID/month -> row
	runs         map[string]store.IngestionRun      // batchID -> run
	rules        []store.CategoryRule
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]store.TransactionRecord),
		daily:        make(map[string]store.DailySummary),
		monthly:      make(map[string]store.MonthlySummary),
		runs:         make(map[string]store.IngestionRun),
	}
}

// SeedRules installs the rule table returned by ListRules.
func (s *Store) SeedRules(rules []store.CategoryRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]store.CategoryRule(nil), rules...)
}

// UpsertBatch implements store.TransactionRepository. Rows are keyed by the
// natural key; on conflict only CategoryID and Balance are overwritten.
func (s *Store) UpsertBatch(ctx context.Context, records []store.TransactionRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, updated := 0, 0
	for _, rec := range records {
		if rec.AccountID == "" || rec.TransactionID == "" {
			return inserted, updated, fmt.Errorf("upsert batch: record missing natural key")
		}
		key := rec.Key()
		existing, ok := s.transactions[key]
		if !ok {
			s.transactions[key] = rec
			inserted++
			continue
		}
		// Financial facts are immutable; only classification and balance move.
		existing.CategoryID = rec.CategoryID
		existing.Balance = rec.Balance
		s.transactions[key] = existing
		updated++
	}
	return inserted, updated, nil
}

// FindByAccountAndRange implements store.TransactionRepository. Bounds are
// inclusive. Results are ordered by date, then time, then transaction id.
func (s *Store) FindByAccountAndRange(ctx context.Context, accountID string, from, to time.Time) ([]store.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []store.TransactionRecord
	for _, rec := range s.transactions {
		if rec.AccountID != accountID {
			continue
		}
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].Time != result[j].Time {
			return result[i].Time < result[j].Time
		}
		return result[i].TransactionID < result[j].TransactionID
	})
	return result, nil
}

// ListAccountIDs implements store.TransactionRepository.
func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, rec := range s.transactions {
		if !seen[rec.AccountID] {
			seen[rec.AccountID] = true
			ids = append(ids, rec.AccountID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// UpsertDaily implements store.SummaryRepository by full row replacement.
func (s *Store) UpsertDaily(ctx context.Context, sum store.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[sum.AccountID+"/"+sum.Date.Format(store.DateFormat)] = copyDaily(sum)
	return nil
}

// UpsertMonthly implements store.SummaryRepository by full row replacement.
func (s *Store) UpsertMonthly(ctx context.Context, sum store.MonthlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly[sum.AccountID+"/"+sum.Month] = copyMonthly(sum)
	return nil
}

// FindDaily implements store.SummaryRepository.
func (s *Store) FindDaily(ctx context.Context, accountID string, from, to time.Time) ([]store.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []store.DailySummary
	for _, sum := range s.daily {
		if sum.AccountID != accountID || sum.Date.Before(from) || sum.Date.After(to) {
			continue
		}
		result = append(result, copyDaily(sum))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// FindMonthly implements store.SummaryRepository.
func (s *Store) FindMonthly(ctx context.Context, accountID string, fromMonth, toMonth string) ([]store.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []store.MonthlySummary
	for _, sum := range s.monthly {
		if sum.AccountID != accountID || sum.Month < fromMonth || sum.Month > toMonth {
			continue
		}
		result = append(result, copyMonthly(sum))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Month < result[j].Month })
	return result, nil
}

// CreateRun implements store.RunRepository.
func (s *Store) CreateRun(ctx context.Context, run *store.IngestionRun) error {
	if run.BatchID == "" {
		return fmt.Errorf("create run: batch id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.BatchID]; exists {
		return fmt.Errorf("create run: batch %s already exists", run.BatchID)
	}
	s.runs[run.BatchID] = *run
	return nil
}

// GetRun implements store.RunRepository.
func (s *Store) GetRun(ctx context.Context, batchID string) (*store.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[batchID]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return &run, nil
}

// UpdateRunStatus implements store.RunRepository, enforcing the state machine.
func (s *Store) UpdateRunStatus(ctx context.Context, batchID string, status store.RunStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[batchID]
	if !ok {
		return store.ErrRunNotFound
	}
	if !run.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, run.Status, status)
	}
	run.Status = status
	run.ErrorMessage = errorMessage
	if status.Terminal() {
		now := time.Now()
		run.FinishedAt = &now
	}
	s.runs[batchID] = run
	return nil
}

// SetRunArchiveURI implements store.RunRepository.
func (s *Store) SetRunArchiveURI(ctx context.Context, batchID, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[batchID]
	if !ok {
		return store.ErrRunNotFound
	}
	run.ArchiveURI = uri
	s.runs[batchID] = run
	return nil
}

// ListRules implements store.RuleRepository.
func (s *Store) ListRules(ctx context.Context) ([]store.CategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.CategoryRule(nil), s.rules...), nil
}

func copyDaily(s store.DailySummary) store.DailySummary {
	out := s
	out.ByCategory = make(map[int64]decimal.Decimal, len(s.ByCategory))
	for k, v := range s.ByCategory {
		out.ByCategory[k] = v
	}
	return out
}

func copyMonthly(s store.MonthlySummary) store.MonthlySummary {
	out := s
	out.ByCategory = make(map[int64]decimal.Decimal, len(s.ByCategory))
	for k, v := range s.ByCategory {
		out.ByCategory[k] = v
	}
	return out
}

// Interface assertions.
var _ store.TransactionRepository = (*Store)(nil)
var _ store.SummaryRepository = (*Store)(nil)
var _ store.RunRepository = (*Store)(nil)
var _ store.RuleRepository = (*Store)(nil)
