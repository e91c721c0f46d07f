package services

import (
	"context"
	"strconv"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/rs/zerolog/log"
)

// Notifier receives best-effort notifications once a write has committed.
// Implementations must not block the caller on network I/O.
type Notifier interface {
	ContactSubmitted(ctx context.Context, contact models.Contact)
	CommentCreated(ctx context.Context, post models.Post, comment models.Comment)
}

// CommentFeed pushes new comments to live viewers of a post.
type CommentFeed interface {
	PublishComment(comment models.Comment)
}

type nopNotifier struct{}

func (nopNotifier) ContactSubmitted(context.Context, models.Contact)              {}
func (nopNotifier) CommentCreated(context.Context, models.Post, models.Comment) {}

type nopFeed struct{}

func (nopFeed) PublishComment(models.Comment) {}

// recordEvent writes an activity event; failures are logged and otherwise ignored.
func recordEvent(ctx context.Context, events EventServiceProvider, eventType, level, message string, subjectID int64) {
	if events == nil {
		return
	}
	var subject *string
	if subjectID != 0 {
		id := strconv.FormatInt(subjectID, 10)
		subject = &id
	}
	if err := events.CreateEvent(ctx, eventType, level, message, subject); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}
