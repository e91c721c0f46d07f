package auth

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	SessionCookieName = "telemed_session"

	// SessionTTL bounds a session opened without "remember me".
	SessionTTL = 24 * time.Hour
	// RememberTTL bounds a remembered session.
	RememberTTL = 30 * 24 * time.Hour
	// APITokenTTL bounds a bearer token. Logout cannot revoke one, so it stays short.
	APITokenTTL = 15 * time.Minute
)

const (
	sessionUserID  = "uid"
	sessionExpires = "exp"
)

// SessionManager stores the logged-in user id in a signed cookie.
type SessionManager struct {
	store *sessions.CookieStore
}

// NewSessionManager creates a SessionManager. secure marks cookies for HTTPS only.
func NewSessionManager(secret string, secure bool) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

// Login starts a session for userID. Without remember the cookie dies with the browser and
// the session expires after SessionTTL.
func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, userID int64, remember bool) error {
	// A tampered or stale cookie yields a fresh session alongside the error.
	sess, _ := m.store.Get(r, SessionCookieName)

	ttl := SessionTTL
	sess.Options.MaxAge = 0
	if remember {
		ttl = RememberTTL
		sess.Options.MaxAge = int(RememberTTL.Seconds())
	}
	sess.Values[sessionUserID] = userID
	sess.Values[sessionExpires] = time.Now().Add(ttl).Unix()
	return sess.Save(r, w)
}

// Logout clears the session cookie.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, SessionCookieName)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// UserID returns the user id stored in an unexpired session.
func (m *SessionManager) UserID(r *http.Request) (int64, bool) {
	sess, err := m.store.Get(r, SessionCookieName)
	if err != nil || sess.IsNew {
		return 0, false
	}
	id, ok := sess.Values[sessionUserID].(int64)
	if !ok {
		return 0, false
	}
	exp, ok := sess.Values[sessionExpires].(int64)
	if !ok || time.Now().Unix() >= exp {
		return 0, false
	}
	return id, true
}
