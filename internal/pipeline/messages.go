package pipeline

import (
	"time"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/broker"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// Topics, one per pipeline stage. Each topic has exactly one handler; the
// payload types below are the full message contracts between stages.
const (
	TopicFetchRequested          broker.Topic = "ingest.fetch.requested"
	TopicTransactionsFetched     broker.Topic = "ingest.transactions.fetched"
	TopicCategorizationRequested broker.Topic = "ingest.categorization.requested"
	TopicCategorizationResolved  broker.Topic = "ingest.categorization.resolved"
	TopicPersistRequested        broker.Topic = "ingest.persist.requested"
	TopicSummarizationRequested  broker.Topic = "ingest.summarization.requested"
)

// FetchRequestedPayload asks the gateway stage to pull transaction history
// for one linked account over an inclusive date range.
type FetchRequestedPayload struct {
	AccountID string    `json:"account_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// TransactionsFetchedPayload carries the normalized batch produced from the
// provider response. Records are unclassified (CategoryID zero).
type TransactionsFetchedPayload struct {
	AccountID string                    `json:"account_id"`
	Records   []store.TransactionRecord `json:"records"`
}

// CategorizationRequestedPayload carries the batch plus the distinct
// descriptions that need category resolution.
type CategorizationRequestedPayload struct {
	AccountID    string                    `json:"account_id"`
	Records      []store.TransactionRecord `json:"records"`
	Descriptions []string                  `json:"descriptions"`
}

// CategorizationResolvedPayload carries the resolved description -> category
// mapping alongside the batch it applies to.
type CategorizationResolvedPayload struct {
	AccountID  string                    `json:"account_id"`
	Records    []store.TransactionRecord `json:"records"`
	Categories map[string]int64          `json:"categories"`
}

// PersistRequestedPayload carries the fully categorized batch ready for
// upsert.
type PersistRequestedPayload struct {
	AccountID string                    `json:"account_id"`
	Records   []store.TransactionRecord `json:"records"`
}

// SummarizationRequestedPayload asks for the affected periods to be
// recomputed after a successful persist.
type SummarizationRequestedPayload struct {
	AccountID string    `json:"account_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}
