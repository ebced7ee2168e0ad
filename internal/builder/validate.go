package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// entryPointName is the file every team folder must provide
const entryPointName = "start"

// recipeFiles are uploader-supplied build instructions. The service never
// trusts a caller's own recipe, so these are stripped before the build.
var recipeFiles = []string{"Dockerfile", ".dockerignore"}

// normalizeLayout validates the extracted archive and rearranges it into a
// build-ready context directory:
//
//	extracted/<team>/...  ->  docker/bin/...  plus an injected docker/Dockerfile
//
// The extracted tree must hold exactly one top-level directory named after
// the team, with an executable entry point inside. The resolved recipe is
// copied in as the Dockerfile; if that copy fails the built-in default is
// used instead.
func normalizeLayout(extractedDir, dockerDir, teamName, recipePath, defaultRecipe string) error {
	entries, err := os.ReadDir(extractedDir)
	if err != nil {
		return fmt.Errorf("failed to read extracted archive: %w", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return ErrArchiveLayout
	}

	folderName := entries[0].Name()
	if folderName != teamName {
		return fmt.Errorf("%w: got %q, want %q", ErrTeamMismatch, folderName, teamName)
	}

	teamDir := filepath.Join(extractedDir, folderName)
	if _, err := os.Stat(filepath.Join(teamDir, entryPointName)); err != nil {
		return ErrEntryPointMissing
	}

	for _, name := range recipeFiles {
		_ = os.Remove(filepath.Join(teamDir, name))
		_ = os.Remove(filepath.Join(extractedDir, name))
	}

	binDir := filepath.Join(dockerDir, "bin")
	if err := os.Rename(teamDir, binDir); err != nil {
		return fmt.Errorf("failed to move team folder into build context: %w", err)
	}

	dockerfile := filepath.Join(dockerDir, "Dockerfile")
	if err := copyFile(recipePath, dockerfile); err != nil {
		if err := copyFile(defaultRecipe, dockerfile); err != nil {
			return fmt.Errorf("failed to install build recipe: %w", err)
		}
	}

	if err := os.Chmod(filepath.Join(binDir, entryPointName), 0o755); err != nil {
		return fmt.Errorf("failed to mark entry point executable: %w", err)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
