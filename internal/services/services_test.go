package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New("sqlite", filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestUsers(db *database.DB) *UserService {
	return NewUserService(db, bcrypt.MinCost)
}

func mustRegister(t *testing.T, users *UserService, username, email string) models.User {
	t.Helper()
	u, err := users.Register(context.Background(), RegisterInput{
		Username:        username,
		Email:           email,
		FirstName:       "First",
		LastName:        "Last",
		Password:        "pw-at-least-min-length",
		ConfirmPassword: "pw-at-least-min-length",
	})
	require.NoError(t, err)
	return u
}

func mustAdmin(t *testing.T, users *UserService) models.User {
	t.Helper()
	u, created, err := users.EnsureAdmin(context.Background(), RegisterInput{
		Username:  "admin",
		Email:     "admin@example.com",
		FirstName: "Nobu",
		LastName:  "Admin",
		Password:  "admin-password",
	})
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func countRows(t *testing.T, db *database.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(db.Rebind(query), args...).Scan(&n))
	return n
}

// recordingNotifier captures notifications handed over by the services.
type recordingNotifier struct {
	mu       sync.Mutex
	contacts []models.Contact
	comments []models.Comment
}

func (r *recordingNotifier) ContactSubmitted(_ context.Context, c models.Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, c)
}

func (r *recordingNotifier) CommentCreated(_ context.Context, _ models.Post, c models.Comment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = append(r.comments, c)
}

type recordingFeed struct {
	published []models.Comment
}

func (f *recordingFeed) PublishComment(c models.Comment) {
	f.published = append(f.published, c)
}
