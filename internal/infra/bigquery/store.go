// Package bigquery is the durable persistence layer. One dataset holds the
// transactions, summary, run and rule tables; all writes go through DML so
// upserts are atomic per statement.
package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

const (
	transactionsTable     = "transactions"
	dailySummariesTable   = "daily_summaries"
	monthlySummariesTable = "monthly_summaries"
	ingestionRunsTable    = "ingestion_runs"
	categoryRulesTable    = "category_rules"

	// NUMERIC columns carry scale 9, which is what decimalFromRat restores.
	numericScale = 9
)

// Store implements the repository interfaces on top of BigQuery with a
// shared client.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
	log     zerolog.Logger
}

var (
	_ store.TransactionRepository = (*Store)(nil)
	_ store.SummaryRepository     = (*Store)(nil)
	_ store.RunRepository         = (*Store)(nil)
	_ store.RuleRepository        = (*Store)(nil)
)

// NewStore creates a Store with its own BigQuery client.
func NewStore(ctx context.Context, project, dataset string, log zerolog.Logger) (*Store, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewStore: bigquery client: %w", err)
	}
	return &Store{
		client:  client,
		project: project,
		dataset: dataset,
		log:     log.With().Str("component", "bigquery").Logger(),
	}, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// table returns the fully qualified, backtick-quoted table name.
func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

// runDML runs a DML query to completion and returns its row statistics.
func (s *Store) runDML(ctx context.Context, q *bigquery.Query) (*bigquery.DMLStatistics, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("job failed: %w", err)
	}
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.DMLStats, nil
	}
	return nil, nil
}

func ratFromDecimal(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func decimalFromRat(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}
