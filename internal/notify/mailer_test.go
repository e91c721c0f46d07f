package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraph stands in for both the token endpoint and the mail API.
type fakeGraph struct {
	mu            sync.Mutex
	tokenStatus   int
	sendStatus    int
	tokenCalls    int
	refreshTokens []string
	sent          []sendMailRequest
	authHeaders   []string
}

func newFakeGraph(t *testing.T) (*fakeGraph, *httptest.Server) {
	t.Helper()
	g := &fakeGraph{tokenStatus: http.StatusOK, sendStatus: http.StatusAccepted}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		g.mu.Lock()
		defer g.mu.Unlock()
		g.tokenCalls++
		g.refreshTokens = append(g.refreshTokens, r.PostForm.Get("refresh_token"))
		if g.tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"server_error"}`, g.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-%d"}`, g.tokenCalls, g.tokenCalls+1)
	})
	mux.HandleFunc("/v1.0/me/sendMail", func(w http.ResponseWriter, r *http.Request) {
		var body sendMailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		g.mu.Lock()
		defer g.mu.Unlock()
		g.sent = append(g.sent, body)
		g.authHeaders = append(g.authHeaders, r.Header.Get("Authorization"))
		w.WriteHeader(g.sendStatus)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return g, srv
}

func (g *fakeGraph) set(tokenStatus, sendStatus int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokenStatus = tokenStatus
	g.sendStatus = sendStatus
}

func (g *fakeGraph) calls() (tokens, sends int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokenCalls, len(g.sent)
}

func newTestMailer(srv *httptest.Server) *GraphMailer {
	return newTestMailerWithCache(srv, NewMemoryTokenCache())
}

func newTestMailerWithCache(srv *httptest.Server, cache TokenCache) *GraphMailer {
	return NewGraphMailer(GraphConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		APIBase:      srv.URL + "/v1.0",
		RefreshToken: "rt-1",
		HTTPClient:   srv.Client(),
	}, cache)
}

func TestGraphMailerSendsMail(t *testing.T) {
	g, srv := newFakeGraph(t)
	mailer := newTestMailer(srv)
	ctx := context.Background()

	msg := Message{Event: EventContactSubmitted, To: "owner@example.com", Subject: "Hello", HTML: "<p>hi</p>"}
	require.NoError(t, mailer.Send(ctx, msg))
	require.NoError(t, mailer.Send(ctx, msg))

	tokens, sends := g.calls()
	assert.Equal(t, 1, tokens, "access token should be cached")
	assert.Equal(t, 2, sends)

	sent := g.sent[0].Message
	require.Len(t, sent.ToRecipients, 1)
	assert.Equal(t, "owner@example.com", sent.ToRecipients[0].EmailAddress.Address)
	assert.Equal(t, "html", sent.Body.ContentType)
	assert.Equal(t, "normal", sent.Importance)
	assert.Equal(t, "Bearer access-1", g.authHeaders[0])
}

func TestGraphMailerRotatesRefreshToken(t *testing.T) {
	g, srv := newFakeGraph(t)
	mailer := newTestMailer(srv)
	ctx := context.Background()

	require.NoError(t, mailer.Warmup(ctx))
	require.NoError(t, mailer.cache.Invalidate(ctx))
	require.NoError(t, mailer.Warmup(ctx))

	assert.Equal(t, []string{"rt-1", "rt-2"}, g.refreshTokens)
}

func TestGraphMailerSharesRotatedRefreshToken(t *testing.T) {
	g, srv := newFakeGraph(t)
	cache := NewMemoryTokenCache()
	ctx := context.Background()

	require.NoError(t, newTestMailerWithCache(srv, cache).Warmup(ctx))
	stored, ok, err := cache.RefreshToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rt-2", stored)

	// A second instance configured with the original token picks up the rotated one.
	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, newTestMailerWithCache(srv, cache).Warmup(ctx))

	assert.Equal(t, []string{"rt-1", "rt-2"}, g.refreshTokens)
}

func TestGraphMailerUnauthorizedInvalidatesToken(t *testing.T) {
	g, srv := newFakeGraph(t)
	mailer := newTestMailer(srv)
	ctx := context.Background()

	g.set(http.StatusOK, http.StatusUnauthorized)
	err := mailer.Send(ctx, Message{Event: EventCommentCreated, To: "owner@example.com"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Temporary())

	_, cached, err := mailer.cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, cached)

	g.set(http.StatusOK, http.StatusAccepted)
	require.NoError(t, mailer.Send(ctx, Message{Event: EventCommentCreated, To: "owner@example.com"}))
	tokens, _ := g.calls()
	assert.Equal(t, 2, tokens)
}

func TestGraphMailerTokenEndpointFailure(t *testing.T) {
	g, srv := newFakeGraph(t)
	g.set(http.StatusInternalServerError, http.StatusAccepted)

	err := newTestMailer(srv).Send(context.Background(), Message{Event: EventCommentCreated})
	require.Error(t, err)
	_, sends := g.calls()
	assert.Zero(t, sends)
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: http.StatusServiceUnavailable}).Temporary())
	assert.True(t, (&StatusError{StatusCode: http.StatusTooManyRequests}).Temporary())
	assert.False(t, (&StatusError{StatusCode: http.StatusBadRequest}).Temporary())
	assert.False(t, (&StatusError{StatusCode: http.StatusForbidden}).Temporary())
}

func TestMessagesEscapeUserContent(t *testing.T) {
	msg, err := ContactMessage("owner@example.com", models.Contact{
		Name:    "Mallory",
		Email:   "m@example.com",
		Message: "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.Equal(t, EventContactSubmitted, msg.Event)
	assert.Equal(t, "New Contact Form Submission from Mallory", msg.Subject)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")

	msg, err = CommentMessage("owner@example.com", models.Post{Title: "Hello"}, models.Comment{AuthorUsername: "alice", Text: "Nice"})
	require.NoError(t, err)
	assert.Equal(t, EventCommentCreated, msg.Event)
	assert.True(t, strings.Contains(msg.HTML, "Hello") && strings.Contains(msg.HTML, "alice"))
}
