package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userContextKey = contextKey("currentUser")

// UserLookup loads the account behind a session or token.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
}

// Authenticator resolves the caller of every request.
type Authenticator struct {
	sessions *SessionManager
	tokens   *TokenIssuer
	users    UserLookup
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(sessions *SessionManager, tokens *TokenIssuer, users UserLookup) *Authenticator {
	return &Authenticator{sessions: sessions, tokens: tokens, users: users}
}

// Sessions exposes the session manager to the login and logout handlers.
func (a *Authenticator) Sessions() *SessionManager {
	return a.sessions
}

// Tokens exposes the token issuer to the login handler.
func (a *Authenticator) Tokens() *TokenIssuer {
	return a.tokens
}

// Authenticate loads the current user from the session cookie, then from a Bearer token.
// Requests carrying neither, or naming an account that no longer exists, continue
// anonymously.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.sessions.UserID(r)
		if !ok {
			userID, ok = a.bearerUserID(r)
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.users.GetUserByID(r.Context(), userID)
		if errors.Is(err, services.ErrNotFound) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load current user")
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &user)))
	})
}

func (a *Authenticator) bearerUserID(r *http.Request) (int64, bool) {
	authHeader := r.Header.Get("Authorization")
	tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenStr == "" {
		return 0, false
	}
	claims, err := a.tokens.ValidateJWT(tokenStr)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected bearer token")
		return 0, false
	}
	return claims.UserID, true
}

// WithUser returns a context carrying user as the current identity.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// IsAdmin reports whether user may perform administrative operations.
func IsAdmin(user *models.User) bool {
	return user.IsAdmin()
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and everyone but the admin with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r.Context())
		if user == nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		if !IsAdmin(user) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
