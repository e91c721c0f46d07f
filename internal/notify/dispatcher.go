package notify

import (
	"context"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/rs/zerolog/log"
)

// Enqueuer accepts messages for background delivery.
type Enqueuer interface {
	Enqueue(msg Message) bool
}

// Dispatcher turns site activity into mail for the site owner. It never blocks the caller
// and never reports failure back to it.
type Dispatcher struct {
	recipient string
	queue     Enqueuer
}

// NewDispatcher creates a new Dispatcher that mails recipient.
func NewDispatcher(recipient string, queue Enqueuer) *Dispatcher {
	return &Dispatcher{recipient: recipient, queue: queue}
}

// ContactSubmitted queues the contact form mail.
func (d *Dispatcher) ContactSubmitted(_ context.Context, contact models.Contact) {
	msg, err := ContactMessage(d.recipient, contact)
	if err != nil {
		log.Error().Err(err).Int64("contact_id", contact.ID).Msg("Failed to build contact notification")
		return
	}
	d.queue.Enqueue(msg)
}

// CommentCreated queues the new comment mail.
func (d *Dispatcher) CommentCreated(_ context.Context, post models.Post, comment models.Comment) {
	msg, err := CommentMessage(d.recipient, post, comment)
	if err != nil {
		log.Error().Err(err).Int64("comment_id", comment.ID).Msg("Failed to build comment notification")
		return
	}
	d.queue.Enqueue(msg)
}
