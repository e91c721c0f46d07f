package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[int64]models.User

func (f fakeUsers) GetUserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %w", services.ErrNotFound)
	}
	return u, nil
}

type brokenUsers struct{}

func (brokenUsers) GetUserByID(context.Context, int64) (models.User, error) {
	return models.User{}, &services.StoreError{Op: "load user", Err: errors.New("disk I/O error")}
}

var (
	admin  = models.User{ID: 1, Username: "admin", Role: models.RoleAdmin}
	member = models.User{ID: 2, Username: "alice", Role: models.RoleMember}
)

func newTestAuthenticator(users UserLookup) *Authenticator {
	return NewAuthenticator(NewSessionManager("session-secret", false), NewTokenIssuer("jwt-secret"), users)
}

// whoami echoes the resolved identity.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if u := CurrentUser(r.Context()); u != nil {
		fmt.Fprint(w, u.Username)
		return
	}
	fmt.Fprint(w, "anonymous")
})

func loginCookies(t *testing.T, a *Authenticator, userID int64, remember bool) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	require.NoError(t, a.Sessions().Login(rec, req, userID, remember))
	return rec.Result().Cookies()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("jwt-secret")

	token, exp, err := issuer.GenerateJWT(member, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := issuer.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer("jwt-secret")

	expired, _, err := issuer.GenerateJWT(member, -time.Minute)
	require.NoError(t, err)
	_, err = issuer.ValidateJWT(expired)
	require.Error(t, err)

	foreign, _, err := NewTokenIssuer("other-secret").GenerateJWT(member, time.Hour)
	require.NoError(t, err)
	_, err = issuer.ValidateJWT(foreign)
	require.Error(t, err)
}

func TestSessionCookieLifetimes(t *testing.T) {
	a := newTestAuthenticator(fakeUsers{})

	session := loginCookies(t, a, member.ID, false)
	require.Len(t, session, 1)
	assert.Equal(t, SessionCookieName, session[0].Name)
	assert.Zero(t, session[0].MaxAge)
	assert.True(t, session[0].HttpOnly)

	remembered := loginCookies(t, a, member.ID, true)
	require.Len(t, remembered, 1)
	assert.Equal(t, int(RememberTTL.Seconds()), remembered[0].MaxAge)
}

func TestAuthenticateFromSession(t *testing.T) {
	a := newTestAuthenticator(fakeUsers{member.ID: member})
	handler := a.Authenticate(whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range loginCookies(t, a, member.ID, false) {
		req.AddCookie(c)
	}
	assert.Equal(t, "alice", serve(handler, req).Body.String())
}

func TestAuthenticateFromBearerToken(t *testing.T) {
	a := newTestAuthenticator(fakeUsers{admin.ID: admin})
	handler := a.Authenticate(whoami)

	token, _, err := a.Tokens().GenerateJWT(admin, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, "admin", serve(handler, req).Body.String())

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, "anonymous", serve(handler, bad).Body.String())
}

func TestAuthenticateUnknownUserIsAnonymous(t *testing.T) {
	a := newTestAuthenticator(fakeUsers{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range loginCookies(t, a, 99, true) {
		req.AddCookie(c)
	}
	assert.Equal(t, "anonymous", serve(a.Authenticate(whoami), req).Body.String())
}

func TestAuthenticateStoreFailure(t *testing.T) {
	a := newTestAuthenticator(brokenUsers{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range loginCookies(t, a, member.ID, false) {
		req.AddCookie(c)
	}
	assert.Equal(t, http.StatusServiceUnavailable, serve(a.Authenticate(whoami), req).Code)
}

func TestLogoutExpiresCookie(t *testing.T) {
	a := newTestAuthenticator(fakeUsers{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range loginCookies(t, a, member.ID, false) {
		req.AddCookie(c)
	}
	require.NoError(t, a.Sessions().Logout(rec, req))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(whoami)

	anon := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(handler, anon).Code)

	asMember := httptest.NewRequest(http.MethodPost, "/", nil)
	asMember = asMember.WithContext(WithUser(asMember.Context(), &member))
	assert.Equal(t, http.StatusForbidden, serve(handler, asMember).Code)

	asAdmin := httptest.NewRequest(http.MethodPost, "/", nil)
	asAdmin = asAdmin.WithContext(WithUser(asAdmin.Context(), &admin))
	assert.Equal(t, http.StatusOK, serve(handler, asAdmin).Code)
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(whoami)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(handler, anon).Code)

	asMember := httptest.NewRequest(http.MethodGet, "/", nil)
	asMember = asMember.WithContext(WithUser(asMember.Context(), &member))
	assert.Equal(t, http.StatusOK, serve(handler, asMember).Code)
}

func TestIsAdmin(t *testing.T) {
	assert.False(t, IsAdmin(nil))
	assert.False(t, IsAdmin(&member))
	assert.True(t, IsAdmin(&admin))
}
