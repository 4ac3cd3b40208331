package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Topic identifies one stage queue. Every topic has exactly one handler;
// messages on it are delivered at least once.
type Topic string

// Message is the broker envelope. Payload carries the JSON-encoded stage
// payload so the envelope stays the same across queue implementations
// (in-memory today, Cloud Tasks or Pub/Sub later).
type Message struct {
	// MessageID is the unique identifier for this message.
	MessageID string `json:"message_id"`

	// Topic routes the message to its handler.
	Topic Topic `json:"topic"`

	// BatchID is the ingestion batch this message belongs to.
	BatchID string `json:"batch_id"`

	// Attempt is the delivery attempt, starting at 1.
	Attempt int `json:"attempt"`

	// Payload is the JSON-encoded stage payload.
	Payload []byte `json:"payload"`

	// EnqueuedAt is when the message was first published.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one message. Returning nil acknowledges the message.
// Returning an error triggers redelivery with backoff, unless the error is
// marked Permanent, in which case the message is dead-lettered immediately.
type Handler func(ctx context.Context, msg Message) error

// DeadLetterHandler is invoked exactly once per dead-lettered message.
type DeadLetterHandler func(ctx context.Context, msg Message, cause error)

// Publisher publishes messages to their topic queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer runs topic handlers.
type Consumer interface {
	// Subscribe registers the handler for a topic. Must be called before Start.
	Subscribe(topic Topic, handler Handler) error

	// Start begins consuming from all subscribed topics.
	Start(ctx context.Context) error

	// Stop stops consuming and waits for in-flight messages to complete.
	Stop(ctx context.Context) error
}

// permanentError marks a failure that retrying cannot fix, such as a
// malformed payload or a missing required scope.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the broker dead-letters the message without retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
