package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/models"
)

// ContactServiceProvider defines the interface for the contact form.
type ContactServiceProvider interface {
	Submit(ctx context.Context, input ContactInput) (models.Contact, error)
}

// ContactInput is the contact form.
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// ContactService stores contact submissions and forwards them by mail.
type ContactService struct {
	db       *database.DB
	events   EventServiceProvider
	notifier Notifier
}

// NewContactService creates a new ContactService. notifier may be nil.
func NewContactService(db *database.DB, events EventServiceProvider, notifier Notifier) *ContactService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ContactService{db: db, events: events, notifier: notifier}
}

// Submit persists the submission, then hands it to the notifier. A failed notification
// never undoes the stored submission.
func (s *ContactService) Submit(ctx context.Context, input ContactInput) (models.Contact, error) {
	var v validator
	v.required("name", input.Name)
	v.length("name", input.Name, 0, 120)
	if v.required("email", input.Email) {
		v.email("email", input.Email)
	}
	v.length("phone", input.Phone, 0, 120)
	v.required("message", input.Message)
	if err := v.err(); err != nil {
		return models.Contact{}, err
	}

	contact := models.Contact{
		Name:      strings.TrimSpace(input.Name),
		Email:     input.Email,
		Phone:     strings.TrimSpace(input.Phone),
		Message:   input.Message,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO contacts (name, email, phone, message, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		contact.Name, contact.Email, contact.Phone, contact.Message, contact.CreatedAt,
	).Scan(&contact.ID)
	if err != nil {
		return models.Contact{}, storeErr("create contact", err)
	}

	recordEvent(ctx, s.events, "contact.submit", "info", fmt.Sprintf("Contact message from %s.", contact.Name), contact.ID)
	s.notifier.ContactSubmitted(ctx, contact)
	return contact, nil
}
