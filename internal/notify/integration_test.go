package notify

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCommentSurvivesTokenEndpointFailure(t *testing.T) {
	db, err := database.New("sqlite", filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	ctx := context.Background()
	users := services.NewUserService(db, bcrypt.MinCost)
	admin, _, err := users.EnsureAdmin(ctx, services.RegisterInput{Username: "admin", Email: "admin@example.com", Password: "admin-password"})
	require.NoError(t, err)
	alice, err := users.Register(ctx, services.RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "alice-password", ConfirmPassword: "alice-password",
	})
	require.NoError(t, err)

	g, srv := newFakeGraph(t)
	g.set(http.StatusInternalServerError, http.StatusAccepted)

	events := services.NewEventService(db)
	queue := NewQueue(newTestMailer(srv), events, QueueOptions{Workers: 1, MaxAttempts: 2, RetryInterval: time.Millisecond, Timeout: time.Second})
	queue.Start(ctx)
	posts := services.NewPostService(db, events, NewDispatcher("owner@example.com", queue), nil)

	failedBefore := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(EventCommentCreated, "failed"))

	post, err := posts.CreatePost(ctx, &admin, services.PostInput{Title: "Hello", Subtitle: "s", Body: "World"})
	require.NoError(t, err)
	comment, err := posts.AddComment(ctx, &alice, post.ID, "Nice post")
	require.NoError(t, err)

	stopQueue(t, queue)

	comments, err := posts.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, comment.ID, comments[0].ID)

	tokens, sends := g.calls()
	assert.Equal(t, 2, tokens)
	assert.Zero(t, sends)
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(EventCommentCreated, "failed")))

	recent, err := events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	var failures int
	for _, e := range recent {
		if e.Type == "notify.fail" {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}
