// Package notify delivers outbound mail notifications for site activity.
package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/isdelr/telemed-portal/internal/models"
)

// Notification events.
const (
	EventContactSubmitted = "contact.submitted"
	EventCommentCreated   = "comment.created"
)

// Message is one mail to deliver.
type Message struct {
	Event   string `json:"event"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

var (
	contactTemplate = template.Must(template.New("contact").Parse(`<html>
<body>
	<p>Name: {{.Name}}</p>
	<p>Email: {{.Email}}</p>
	<p>Phone: {{.Phone}}</p>
	<p>Message: {{.Message}}</p>
</body>
</html>`))

	commentTemplate = template.Must(template.New("comment").Parse(`<html>
<body>
	<p>New comment on <strong>{{.Post.Title}}</strong></p>
	<p>From: {{.Comment.AuthorUsername}}</p>
	<p>{{.Comment.Text}}</p>
</body>
</html>`))
)

// ContactMessage renders the mail sent for a contact form submission.
func ContactMessage(to string, contact models.Contact) (Message, error) {
	var buf bytes.Buffer
	if err := contactTemplate.Execute(&buf, contact); err != nil {
		return Message{}, fmt.Errorf("failed to render contact message: %w", err)
	}
	return Message{
		Event:   EventContactSubmitted,
		To:      to,
		Subject: "New Contact Form Submission from " + contact.Name,
		HTML:    buf.String(),
	}, nil
}

// CommentMessage renders the mail sent when a comment is added to a post.
func CommentMessage(to string, post models.Post, comment models.Comment) (Message, error) {
	var buf bytes.Buffer
	data := struct {
		Post    models.Post
		Comment models.Comment
	}{post, comment}
	if err := commentTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render comment message: %w", err)
	}
	return Message{
		Event:   EventCommentCreated,
		To:      to,
		Subject: fmt.Sprintf("New comment on '%s'", post.Title),
		HTML:    buf.String(),
	}, nil
}

// NotificationError reports a notification that could not be delivered.
type NotificationError struct {
	Event    string
	Attempts int
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s failed after %d attempt(s): %v", e.Event, e.Attempts, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
