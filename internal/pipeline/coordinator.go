// Package pipeline routes ingestion batches through the fetch, categorize,
// persist and summarize stages. The coordinator itself is stateless: all
// cross-stage state travels in message payloads and in the run store.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/aggregator"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/broker"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/classify"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/summary"
)

// Archiver stores the raw provider payload of a batch and returns a
// location URI for the run record.
type Archiver interface {
	Archive(ctx context.Context, batchID string, raw []byte) (uri string, err error)
}

// Coordinator owns the stage handlers and the public fetch trigger.
type Coordinator struct {
	bus        broker.Publisher
	gateway    aggregator.Gateway
	classifier *classify.Classifier
	txns       store.TransactionRepository
	runs       store.RunRepository
	summaries  *summary.Aggregator
	archiver   Archiver // nil disables raw payload archival
	log        zerolog.Logger
	now        func() time.Time
}

// NewCoordinator wires a Coordinator. archiver may be nil.
func NewCoordinator(
	bus broker.Publisher,
	gateway aggregator.Gateway,
	classifier *classify.Classifier,
	txns store.TransactionRepository,
	runs store.RunRepository,
	summaries *summary.Aggregator,
	archiver Archiver,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		bus:        bus,
		gateway:    gateway,
		classifier: classifier,
		txns:       txns,
		runs:       runs,
		summaries:  summaries,
		archiver:   archiver,
		log:        log.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}
}

// Register subscribes every stage handler on the consumer. Must be called
// before the consumer starts.
func (c *Coordinator) Register(consumer broker.Consumer) error {
	subs := []struct {
		topic   broker.Topic
		handler broker.Handler
	}{
		{TopicFetchRequested, c.handleFetchRequested},
		{TopicTransactionsFetched, c.handleTransactionsFetched},
		{TopicCategorizationRequested, c.handleCategorizationRequested},
		{TopicCategorizationResolved, c.handleCategorizationResolved},
		{TopicPersistRequested, c.handlePersistRequested},
		{TopicSummarizationRequested, c.handleSummarizationRequested},
	}
	for _, s := range subs {
		if err := consumer.Subscribe(s.topic, s.handler); err != nil {
			return fmt.Errorf("register %s: %w", s.topic, err)
		}
	}
	return nil
}

// RequestFetch creates a run for the account and date range and emits the
// initial fetch message. It returns the batch id used to track the run.
func (c *Coordinator) RequestFetch(ctx context.Context, accountID string, from, to time.Time) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("RequestFetch: account id is required")
	}
	if to.Before(from) {
		return "", fmt.Errorf("RequestFetch: range end %s precedes start %s",
			to.Format(store.DateFormat), from.Format(store.DateFormat))
	}

	batchID := uuid.NewString()
	run := &store.IngestionRun{
		BatchID:   batchID,
		AccountID: accountID,
		From:      from,
		To:        to,
		Status:    store.RunRequested,
		StartedAt: c.now(),
	}
	if err := c.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("RequestFetch: create run: %w", err)
	}

	payload := FetchRequestedPayload{AccountID: accountID, From: from, To: to}
	if err := c.publish(ctx, TopicFetchRequested, batchID, payload); err != nil {
		return "", fmt.Errorf("RequestFetch: %w", err)
	}

	c.log.Info().
		Str("batch_id", batchID).
		Str("account_id", accountID).
		Str("from", from.Format(store.DateFormat)).
		Str("to", to.Format(store.DateFormat)).
		Msg("Ingestion run requested")
	return batchID, nil
}

// HandleDeadLetter marks the batch Failed after the broker has exhausted
// redelivery. Wire it as the consumer's dead-letter hook.
func (c *Coordinator) HandleDeadLetter(ctx context.Context, msg broker.Message, cause error) {
	if msg.BatchID == "" {
		return
	}
	if err := c.runs.UpdateRunStatus(ctx, msg.BatchID, store.RunFailed, cause.Error()); err != nil {
		c.log.Error().Err(err).Str("batch_id", msg.BatchID).Msg("Could not mark dead-lettered batch as failed")
		return
	}
	c.log.Error().
		Err(cause).
		Str("batch_id", msg.BatchID).
		Str("topic", string(msg.Topic)).
		Msg("Batch failed after retry exhaustion")
}

func (c *Coordinator) handleFetchRequested(ctx context.Context, msg broker.Message) error {
	var p FetchRequestedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return broker.Permanent(fmt.Errorf("decode fetch payload: %w", err))
	}

	if err := c.advance(ctx, msg.BatchID, store.RunFetching); err != nil {
		return err
	}

	raws, raw, err := c.gateway.FetchTransactions(ctx, p.AccountID, aggregator.DateRange{From: p.From, To: p.To})
	if err != nil {
		var se *aggregator.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return broker.Permanent(err)
		}
		return err
	}

	if c.archiver != nil {
		uri, archiveErr := c.archiver.Archive(ctx, msg.BatchID, raw)
		if archiveErr != nil {
			// Archival is best effort, the pipeline does not depend on it.
			c.log.Warn().Err(archiveErr).Str("batch_id", msg.BatchID).Msg("Raw payload archival failed")
		} else if err := c.runs.SetRunArchiveURI(ctx, msg.BatchID, uri); err != nil {
			c.log.Warn().Err(err).Str("batch_id", msg.BatchID).Msg("Could not record archive URI")
		}
	}

	records, err := normalizeBatch(p.AccountID, raws, c.now().UTC())
	if err != nil {
		return broker.Permanent(err)
	}

	if err := c.advance(ctx, msg.BatchID, store.RunFetched); err != nil {
		return err
	}

	c.log.Info().
		Str("batch_id", msg.BatchID).
		Str("account_id", p.AccountID).
		Int("records", len(records)).
		Msg("Fetched transaction batch")
	return c.publish(ctx, TopicTransactionsFetched, msg.BatchID, TransactionsFetchedPayload{
		AccountID: p.AccountID,
		Records:   records,
	})
}

func (c *Coordinator) handleTransactionsFetched(ctx context.Context, msg broker.Message) error {
	var p TransactionsFetchedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return broker.Permanent(fmt.Errorf("decode fetched payload: %w", err))
	}

	if err := c.advance(ctx, msg.BatchID, store.RunCategorizing); err != nil {
		return err
	}

	return c.publish(ctx, TopicCategorizationRequested, msg.BatchID, CategorizationRequestedPayload{
		AccountID:    p.AccountID,
		Records:      p.Records,
		Descriptions: distinctDescriptions(p.Records),
	})
}

func (c *Coordinator) handleCategorizationRequested(ctx context.Context, msg broker.Message) error {
	var p CategorizationRequestedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return broker.Permanent(fmt.Errorf("decode categorization payload: %w", err))
	}

	// Classification is total; this stage cannot fail on resolution.
	categories := c.classifier.ClassifyAll(ctx, p.Descriptions)

	return c.publish(ctx, TopicCategorizationResolved, msg.BatchID, CategorizationResolvedPayload{
		AccountID:  p.AccountID,
		Records:    p.Records,
		Categories: categories,
	})
}

func (c *Coordinator) handleCategorizationResolved(ctx context.Context, msg broker.Message) error {
	var p CategorizationResolvedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return broker.Permanent(fmt.Errorf("decode resolved payload: %w", err))
	}

	for i := range p.Records {
		id, ok := p.Categories[p.Records[i].Description]
		if !ok {
			id = c.classifier.DefaultCategoryID()
		}
		p.Records[i].CategoryID = id
	}

	if err := c.advance(ctx, msg.BatchID, store.RunCategorized); err != nil {
		return err
	}

	return c.publish(ctx, TopicPersistRequested, msg.BatchID, PersistRequestedPayload{
		AccountID: p.AccountID,
		Records:   p.Records,
	})
}

func (c *Coordinator) handlePersistRequested(ctx context.Context, msg broker.Message) error {
	var p PersistRequestedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return broker.Permanent(fmt.Errorf("decode persist payload: %w", err))
	}

	if err := c.advance(ctx, msg.BatchID, store.RunPersisting); err != nil {
		return err
	}

	inserted, updated, err := c.txns.UpsertBatch(ctx, p.Records)
	if err != nil {
		return fmt.Errorf("upsert batch %s: %w", msg.BatchID, err)
	}

	if err := c.advance(ctx, msg.BatchID, store.RunPersisted); err != nil {
		return err
	}

	c.log.Info().
		Str("batch_id", msg.BatchID).
		Int("inserted", inserted).
		Int("updated", updated).
		Msg("Persisted transaction batch")

	from, to, ok := batchDateBounds(p.Records)
	if !ok {
		// Empty batch: summarize over the originally requested range.
		run, err := c.runs.GetRun(ctx, msg.BatchID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", msg.BatchID, err)
		}
		from, to = run.From, run.To
	}

	return c.publish(ctx, TopicSummarizationRequested, msg.BatchID, SummarizationRequestedPayload{
		AccountID: p.AccountID,
		From:      from,
		To:        to,
	})
}

func (c *Coordinator) handleSummarizationRequested(ctx context.Context, msg broker.Message) error {
	var p SummarizationRequestedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return broker.Permanent(fmt.Errorf("decode summarization payload: %w", err))
	}

	if err := c.advance(ctx, msg.BatchID, store.RunSummarizing); err != nil {
		return err
	}
	if err := c.summaries.RecomputeRange(ctx, p.AccountID, p.From, p.To); err != nil {
		return err
	}
	if err := c.advance(ctx, msg.BatchID, store.RunCompleted); err != nil {
		return err
	}

	c.log.Info().Str("batch_id", msg.BatchID).Msg("Ingestion run completed")
	return nil
}

func (c *Coordinator) publish(ctx context.Context, topic broker.Topic, batchID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return broker.Permanent(fmt.Errorf("encode %s payload: %w", topic, err))
	}
	return c.bus.Publish(ctx, broker.Message{
		Topic:   topic,
		BatchID: batchID,
		Payload: data,
	})
}

// statusOrder ranks the happy-path statuses so redeliveries of an already
// processed message can be recognized.
var statusOrder = map[store.RunStatus]int{
	store.RunRequested:    0,
	store.RunFetching:     1,
	store.RunFetched:      2,
	store.RunCategorizing: 3,
	store.RunCategorized:  4,
	store.RunPersisting:   5,
	store.RunPersisted:    6,
	store.RunSummarizing:  7,
	store.RunCompleted:    8,
}

// advance moves the run one step forward. A transition that is illegal only
// because a redelivered message already advanced the run is treated as done.
func (c *Coordinator) advance(ctx context.Context, batchID string, to store.RunStatus) error {
	err := c.runs.UpdateRunStatus(ctx, batchID, to, "")
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrIllegalTransition) {
		run, getErr := c.runs.GetRun(ctx, batchID)
		if getErr == nil && run.Status != store.RunFailed && statusOrder[run.Status] >= statusOrder[to] {
			return nil
		}
	}
	return fmt.Errorf("advance batch %s to %s: %w", batchID, to, err)
}
