// Package notify alerts operators when a batch is dead-lettered.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/broker"
)

// Notifier reports a dead-lettered message to a human.
type Notifier interface {
	NotifyDeadLetter(ctx context.Context, msg broker.Message, cause error) error
}

// EmailNotifier sends dead-letter alerts over SMTP.
type EmailNotifier struct {
	addr     string // host:port
	username string
	password string
	from     string
	to       []string
	log      zerolog.Logger
}

// NewEmailNotifier creates an EmailNotifier. to is a comma-separated
// recipient list.
func NewEmailNotifier(addr, username, password, from, to string, log zerolog.Logger) *EmailNotifier {
	var recipients []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return &EmailNotifier{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
		to:       recipients,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// NotifyDeadLetter implements Notifier.
func (n *EmailNotifier) NotifyDeadLetter(ctx context.Context, msg broker.Message, cause error) error {
	e := email.NewEmail()
	e.From = n.from
	e.To = n.to
	e.Subject = fmt.Sprintf("Ingestion batch %s dead-lettered", msg.BatchID)

	body := fmt.Sprintf(
		"An ingestion message exhausted its retries and was dead-lettered.\n\n"+
			"Batch:    %s\n"+
			"Topic:    %s\n"+
			"Attempts: %d\n"+
			"Enqueued: %s\n"+
			"Error:    %v\n\n"+
			"The batch is marked failed; re-request the fetch after fixing the cause.\n",
		msg.BatchID, msg.Topic, msg.Attempt, msg.EnqueuedAt.Format(time.RFC3339), cause,
	)
	e.Text = []byte(body)

	host := n.addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	auth := smtp.PlainAuth("", n.username, n.password, host)
	if err := e.Send(n.addr, auth); err != nil {
		n.log.Error().Err(err).Str("batch_id", msg.BatchID).Msg("Could not send dead-letter alert")
		return fmt.Errorf("send dead-letter alert: %w", err)
	}

	n.log.Info().Str("batch_id", msg.BatchID).Msg("Dead-letter alert sent")
	return nil
}
