package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles registration, login and the current account.
type UserHandler struct {
	service services.UserServiceProvider
	auth    *auth.Authenticator
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, authenticator *auth.Authenticator) *UserHandler {
	return &UserHandler{service: service, auth: authenticator}
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Register handles new user registration and signs the new member in.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if auth.CurrentUser(r.Context()) != nil {
		writeError(w, http.StatusConflict, "already logged in")
		return
	}

	var payload services.RegisterInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		if !errors.Is(err, services.ErrDuplicate) {
			log.Warn().Err(err).Str("username", payload.Username).Msg("Failed to register user")
		}
		writeServiceError(w, r, err)
		return
	}

	if err := h.auth.Sessions().Login(w, r, user.ID, false); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to start session")
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication and starts a cookie session.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	if auth.CurrentUser(r.Context()) != nil {
		writeError(w, http.StatusConflict, "already logged in")
		return
	}

	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			log.Warn().Str("username", payload.Username).Msg("Failed authentication attempt")
		}
		writeServiceError(w, r, err)
		return
	}

	if err := h.auth.Sessions().Login(w, r, user.ID, payload.Remember); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "operation failed")
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, user)
}

// IssueToken hands a short-lived bearer token to a client holding a cookie session.
// A bearer token cannot be used to mint another one.
func (h *UserHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.auth.Sessions().UserID(r); !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}
	user := auth.CurrentUser(r.Context())
	token, expiresAt, err := h.auth.Tokens().GenerateJWT(*user, auth.APITokenTTL)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to generate JWT")
		writeError(w, http.StatusInternalServerError, "operation failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Logout ends the cookie session.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Sessions().Logout(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to clear session")
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMe returns the authenticated user.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.CurrentUser(r.Context()))
}

// ChangePassword handles changing the current user's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	var payload struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
