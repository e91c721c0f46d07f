package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestRebind(t *testing.T) {
	q := "SELECT id FROM posts WHERE id = ? AND draft = ?"
	assert.Equal(t, q, Rebind("sqlite", q))
	assert.Equal(t, "SELECT id FROM posts WHERE id = $1 AND draft = $2", Rebind("pgx", q))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(db))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO contacts (name, email, message) VALUES (?, ?, ?)", "a", "a@example.com", "hi"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&n))
	assert.Zero(t, n)
}

func TestUniqueAndForeignKeyViolations(t *testing.T) {
	db := newTestDB(t)

	insertUser := "INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)"
	_, err := db.Exec(insertUser, "alice", "alice@example.com", "x")
	require.NoError(t, err)

	_, err = db.Exec(insertUser, "alice", "other@example.com", "x")
	assert.True(t, IsUniqueViolation(err))

	_, err = db.Exec("INSERT INTO comments (text, post_id, author_id) VALUES (?, ?, ?)", "hi", 999, 1)
	assert.True(t, IsForeignKeyViolation(err))
	assert.False(t, IsUniqueViolation(err))

	// Only driver error codes count, not message text.
	assert.False(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: users.username")))
	assert.False(t, IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")))
	assert.False(t, IsUniqueViolation(nil))
}
