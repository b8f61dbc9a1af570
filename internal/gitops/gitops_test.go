package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var author = Author{Name: "Test Author", Email: "test@example.com"}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestInit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir))

	_, err := os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err, ".git directory should exist")
}

func TestIsRepo(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	assert.False(t, IsRepo(dir), "empty dir should not be a repo")

	require.NoError(t, Init(context.Background(), dir))
	assert.True(t, IsRepo(dir), "initialized dir should be a repo")
}

func TestCommit(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.yaml"), []byte("business: {}\n"), 0o644))

	hash, err := Commit(ctx, dir, "init: test commit", author)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	log := exec.Command("git", "log", "--format=%s|%an <%ae>", "-1")
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "init: test commit|Test Author <test@example.com>")

	_, err = Commit(ctx, dir, "again", author)
	assert.ErrorIs(t, err, ErrNothingToCommit)
}

func TestCommitPaths(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "journal"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "journal", "a.csv"), []byte("x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("y\n"), 0o644))

	_, err := Commit(ctx, dir, "export: journal", author, "journal")
	require.NoError(t, err)

	dirty, err := Dirty(ctx, dir, "journal")
	require.NoError(t, err)
	assert.False(t, dirty)

	dirty, err = Dirty(ctx, dir)
	require.NoError(t, err)
	assert.True(t, dirty, "notes.txt is still untracked")
}
