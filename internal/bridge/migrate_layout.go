package bridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HasFSData reports whether dir exists and contains at least one entry.
func HasFSData(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// MigrateFromFS copies every file under legacyDir into targetDir if
// targetDir does not yet contain any data. The legacy directory is never
// moved or removed — an administrator can delete it once satisfied with
// the new layout. A no-op (not an error) if legacyDir does not exist or
// targetDir already has data.
func MigrateFromFS(legacyDir, targetDir string) error {
	if !HasFSData(legacyDir) {
		return nil
	}
	if HasFSData(targetDir) {
		return nil
	}

	if err := os.MkdirAll(targetDir, 0750); err != nil {
		return fmt.Errorf("creating target directory %q: %w", targetDir, err)
	}

	return filepath.Walk(legacyDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(legacyDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %q: %w", path, err)
		}
		dest := filepath.Join(targetDir, rel)

		if info.IsDir() {
			return os.MkdirAll(dest, 0750)
		}
		return copyFile(path, dest, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // path walked from an admin-configured legacy data directory
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("creating directory for %q: %w", dest, err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode) //nolint:gosec // dest is under the managed data directory
	if err != nil {
		return fmt.Errorf("creating %q: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %q to %q: %w", src, dest, err)
	}
	return nil
}
