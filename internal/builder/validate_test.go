package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree lays out files under root, creating parent directories. Keys
// ending in "/" become empty directories.
func writeTree(t *testing.T, root string, entries map[string]string) {
	t.Helper()
	for name, content := range entries {
		path := filepath.Join(root, name)
		if len(name) > 0 && name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func writeRecipe(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalizeLayout(t *testing.T) {
	t.Run("valid archive becomes build context", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha/start":       "#!/bin/sh\nexec ./binary\n",
			"alpha/binary":      "bin",
			"alpha/config.conf": "formation=433",
		})
		recipe := writeRecipe(t, root, "recipe.Dockerfile", "FROM ubuntu:22.04\n")

		err := normalizeLayout(extracted, docker, "alpha", recipe, recipe)
		require.NoError(t, err)

		// Team folder moved into the context as bin/
		assert.FileExists(t, filepath.Join(docker, "bin", "start"))
		assert.FileExists(t, filepath.Join(docker, "bin", "config.conf"))
		assert.NoDirExists(t, filepath.Join(extracted, "alpha"))

		// Recipe injected
		content, err := os.ReadFile(filepath.Join(docker, "Dockerfile"))
		require.NoError(t, err)
		assert.Equal(t, "FROM ubuntu:22.04\n", string(content))

		// Entry point marked executable
		info, err := os.Stat(filepath.Join(docker, "bin", "start"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	})

	t.Run("uploader recipe files are stripped", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha/start":         "run",
			"alpha/Dockerfile":    "FROM malicious\n",
			"alpha/.dockerignore": "*",
		})
		recipe := writeRecipe(t, root, "recipe.Dockerfile", "FROM ubuntu:22.04\n")

		err := normalizeLayout(extracted, docker, "alpha", recipe, recipe)
		require.NoError(t, err)

		assert.NoFileExists(t, filepath.Join(docker, "bin", "Dockerfile"))
		assert.NoFileExists(t, filepath.Join(docker, "bin", ".dockerignore"))

		content, err := os.ReadFile(filepath.Join(docker, "Dockerfile"))
		require.NoError(t, err)
		assert.Equal(t, "FROM ubuntu:22.04\n", string(content))
	})

	t.Run("multiple top-level entries", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha/start": "run",
			"README.md":   "hello",
		})
		recipe := writeRecipe(t, root, "recipe.Dockerfile", "FROM ubuntu:22.04\n")

		err := normalizeLayout(extracted, docker, "alpha", recipe, recipe)
		assert.ErrorIs(t, err, ErrArchiveLayout)
	})

	t.Run("top-level file instead of directory", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha.tar": "not a directory",
		})
		recipe := writeRecipe(t, root, "recipe.Dockerfile", "FROM ubuntu:22.04\n")

		err := normalizeLayout(extracted, docker, "alpha", recipe, recipe)
		assert.ErrorIs(t, err, ErrArchiveLayout)
	})

	t.Run("team name mismatch", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"beta/start": "run",
		})
		recipe := writeRecipe(t, root, "recipe.Dockerfile", "FROM ubuntu:22.04\n")

		err := normalizeLayout(extracted, docker, "alpha", recipe, recipe)
		require.ErrorIs(t, err, ErrTeamMismatch)
		assert.Contains(t, err.Error(), `got "beta", want "alpha"`)
	})

	t.Run("missing entry point", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha/binary": "bin",
		})
		recipe := writeRecipe(t, root, "recipe.Dockerfile", "FROM ubuntu:22.04\n")

		err := normalizeLayout(extracted, docker, "alpha", recipe, recipe)
		assert.ErrorIs(t, err, ErrEntryPointMissing)
	})

	t.Run("unreadable recipe falls back to default", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha/start": "run",
		})
		fallback := writeRecipe(t, root, "default.Dockerfile", "FROM scratch\n")

		err := normalizeLayout(extracted, docker, "alpha", filepath.Join(root, "missing.Dockerfile"), fallback)
		require.NoError(t, err)

		content, err := os.ReadFile(filepath.Join(docker, "Dockerfile"))
		require.NoError(t, err)
		assert.Equal(t, "FROM scratch\n", string(content))
	})

	t.Run("recipe and default both unreadable", func(t *testing.T) {
		root := t.TempDir()
		extracted := filepath.Join(root, "extracted")
		docker := filepath.Join(root, "docker")
		require.NoError(t, os.MkdirAll(docker, 0o755))
		writeTree(t, extracted, map[string]string{
			"alpha/start": "run",
		})

		err := normalizeLayout(extracted, docker, "alpha",
			filepath.Join(root, "missing.Dockerfile"),
			filepath.Join(root, "also-missing.Dockerfile"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to install build recipe")
	})
}
