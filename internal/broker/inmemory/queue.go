package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/broker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config sizes the queue and its retry policy.
type Config struct {
	// QueueDepth is the per-topic backlog. When a topic's backlog is full,
	// Publish runs the handler synchronously on the publishing goroutine,
	// which gives backpressure without dropping messages.
	QueueDepth int

	// Workers is the per-topic worker pool size.
	Workers int

	// MaxAttempts bounds deliveries per message; after the last failed
	// attempt the message is dead-lettered.
	MaxAttempts int

	// Backoff is the base redelivery delay, doubled on every attempt.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 200
	}
	if c.Workers <= 0 {
		c.Workers = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

type topicQueue struct {
	ch      chan broker.Message
	handler broker.Handler
}

// Queue is an in-memory topic queue using Go channels, safe for concurrent
// use. Each topic has its own backlog and worker pool, so a slow stage
// cannot starve the others. Suitable for single-instance deployments and
// tests; the broker interfaces allow migrating to Cloud Tasks or Pub/Sub.
type Queue struct {
	cfg        Config
	log        zerolog.Logger
	deadLetter broker.DeadLetterHandler

	mu      sync.RWMutex
	topics  map[broker.Topic]*topicQueue
	dead    []deadLetter
	closed  bool
	started bool

	closeChan chan struct{}
	wg        sync.WaitGroup
}

type deadLetter struct {
	msg   broker.Message
	cause error
}

// NewQueue creates an in-memory queue.
func NewQueue(cfg Config, log zerolog.Logger) *Queue {
	return &Queue{
		cfg:       cfg.withDefaults(),
		log:       log,
		topics:    make(map[broker.Topic]*topicQueue),
		closeChan: make(chan struct{}),
	}
}

// OnDeadLetter registers the hook invoked exactly once per dead-lettered
// message. Must be called before Start.
func (q *Queue) OnDeadLetter(h broker.DeadLetterHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetter = h
}

// Subscribe implements broker.Consumer.
func (q *Queue) Subscribe(topic broker.Topic, handler broker.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("subscribe %s: queue already started", topic)
	}
	if _, exists := q.topics[topic]; exists {
		return fmt.Errorf("subscribe %s: topic already has a handler", topic)
	}
	q.topics[topic] = &topicQueue{
		ch:      make(chan broker.Message, q.cfg.QueueDepth),
		handler: handler,
	}
	return nil
}

// Publish implements broker.Publisher. It enqueues the message for its
// topic's worker pool; with a full backlog the message is processed
// synchronously on the caller instead of being dropped.
func (q *Queue) Publish(ctx context.Context, msg broker.Message) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("publish %s: queue is closed", msg.Topic)
	}
	tq, ok := q.topics[msg.Topic]
	q.mu.RUnlock()

	if !ok {
		return fmt.Errorf("publish %s: no handler subscribed", msg.Topic)
	}

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Attempt == 0 {
		msg.Attempt = 1
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}

	select {
	case tq.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("publish %s: queue is closed", msg.Topic)
	default:
		// Backlog full: run on the publishing goroutine for backpressure.
		q.process(ctx, tq, msg)
		return nil
	}
}

// Start implements broker.Consumer.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("start: queue is closed")
	}
	if q.started {
		q.mu.Unlock()
		return fmt.Errorf("start: queue already started")
	}
	q.started = true
	topics := make([]*topicQueue, 0, len(q.topics))
	for _, tq := range q.topics {
		topics = append(topics, tq)
	}
	q.mu.Unlock()

	for _, tq := range topics {
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, tq)
		}
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, tq *topicQueue) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case msg := <-tq.ch:
			q.process(ctx, tq, msg)
		}
	}
}

// process runs the handler for one delivery and applies the retry policy.
func (q *Queue) process(ctx context.Context, tq *topicQueue, msg broker.Message) {
	err := tq.handler(ctx, msg)
	if err == nil {
		return
	}

	if broker.IsPermanent(err) {
		q.log.Error().
			Err(err).
			Str("message_id", msg.MessageID).
			Str("topic", string(msg.Topic)).
			Str("batch_id", msg.BatchID).
			Msg("Permanent failure, dead-lettering without retry")
		q.toDeadLetter(ctx, msg, err)
		return
	}

	if msg.Attempt >= q.cfg.MaxAttempts {
		q.log.Error().
			Err(err).
			Str("message_id", msg.MessageID).
			Str("topic", string(msg.Topic)).
			Str("batch_id", msg.BatchID).
			Int("attempts", msg.Attempt).
			Msg("Retries exhausted, dead-lettering")
		q.toDeadLetter(ctx, msg, err)
		return
	}

	backoff := q.cfg.Backoff << (msg.Attempt - 1)
	q.log.Warn().
		Err(err).
		Str("message_id", msg.MessageID).
		Str("topic", string(msg.Topic)).
		Str("batch_id", msg.BatchID).
		Int("attempt", msg.Attempt).
		Dur("backoff", backoff).
		Msg("Handler failed, scheduling redelivery")

	retry := msg
	retry.Attempt++
	q.wg.Add(1)
	time.AfterFunc(backoff, func() {
		defer q.wg.Done()
		if err := q.Publish(ctx, retry); err != nil {
			q.log.Error().
				Err(err).
				Str("message_id", retry.MessageID).
				Str("topic", string(retry.Topic)).
				Msg("Failed to re-enqueue message for retry")
		}
	})
}

func (q *Queue) toDeadLetter(ctx context.Context, msg broker.Message, cause error) {
	q.mu.Lock()
	q.dead = append(q.dead, deadLetter{msg: msg, cause: cause})
	h := q.deadLetter
	q.mu.Unlock()

	if h != nil {
		h(ctx, msg, cause)
	}
}

// DeadLetters returns a snapshot of all dead-lettered messages, oldest first.
func (q *Queue) DeadLetters() []broker.Message {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]broker.Message, len(q.dead))
	for i, d := range q.dead {
		out[i] = d.msg
	}
	return out
}

// Stop implements broker.Consumer. It stops the workers and waits for
// in-flight messages, bounded by ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interface assertions.
var _ broker.Publisher = (*Queue)(nil)
var _ broker.Consumer = (*Queue)(nil)
