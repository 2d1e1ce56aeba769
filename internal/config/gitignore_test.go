package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/contentloader/internal/config"
)

func TestEnsureGitignore_CreatesNewFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	created, err := config.EnsureGitignore(dir)
	require.NoError(t, err)
	assert.True(t, created, "should report file was created")

	data, readErr := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, readErr)
	assert.Equal(t, config.GitignoreContent(), string(data))
	assert.Contains(t, string(data), "*\n")
}

func TestEnsureGitignore_DoesNotOverwriteExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gitignorePath := filepath.Join(dir, ".gitignore")

	customContent := "# my custom gitignore\nposts.js\n"
	require.NoError(t, os.WriteFile(gitignorePath, []byte(customContent), 0o644))

	created, err := config.EnsureGitignore(dir)
	require.NoError(t, err)
	assert.False(t, created, "should report file was NOT created")

	data, readErr := os.ReadFile(gitignorePath)
	require.NoError(t, readErr)
	assert.Equal(t, customContent, string(data), "existing content must be preserved")
}

func TestEnsureGitignore_CreatesParentDirectory(t *testing.T) {
	t.Parallel()

	nestedDir := filepath.Join(t.TempDir(), "sub", "deep", ".contentloader")

	created, err := config.EnsureGitignore(nestedDir)
	require.NoError(t, err)
	assert.True(t, created)

	_, statErr := os.Stat(filepath.Join(nestedDir, ".gitignore"))
	require.NoError(t, statErr)
}

func TestEnsureGitignore_ReturnValues(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	created, err := config.EnsureGitignore(dir)
	require.NoError(t, err)
	assert.True(t, created, "first call should return true")

	created, err = config.EnsureGitignore(dir)
	require.NoError(t, err)
	assert.False(t, created, "second call should return false")
}
