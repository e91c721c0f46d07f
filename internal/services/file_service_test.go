package services

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileServiceSave(t *testing.T) {
	files := NewFileService(t.TempDir(), nil)
	admin := &models.User{ID: 1, Role: models.RoleAdmin}
	ctx := context.Background()

	stored, err := files.Save(ctx, admin, "../../etc/cheat sheet.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.Name, "-cheat sheet.pdf"))
	assert.Equal(t, "cheat sheet.pdf", stored.OriginalName)
	assert.EqualValues(t, 8, stored.Size)
	assert.Equal(t, "/uploads/"+stored.Name, stored.URL)

	path, err := files.Path(stored.Name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestFileServiceSaveRequiresAdmin(t *testing.T) {
	dir := t.TempDir()
	files := NewFileService(dir, nil)

	_, err := files.Save(context.Background(), &models.User{ID: 2, Role: models.RoleMember}, "a.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrForbidden)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileServicePathRejectsTraversal(t *testing.T) {
	files := NewFileService(t.TempDir(), nil)

	for _, name := range []string{"", "..", "../secret", "nested/file", ".env", "missing.pdf"} {
		_, err := files.Path(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}
