package handlers

import (
	"net/http"

	"github.com/isdelr/telemed-portal/internal/services"
)

// ContactHandler handles the contact form.
type ContactHandler struct {
	service services.ContactServiceProvider
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(service services.ContactServiceProvider) *ContactHandler {
	return &ContactHandler{service: service}
}

// Submit stores a contact message. The mail to the site owner is sent in the background.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload services.ContactInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	contact, err := h.service.Submit(r.Context(), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}
