package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cookia/internal/logging"
)

const (
	// FilesRootEnv overrides the application files root.
	FilesRootEnv = "COOKIA_FILES_DIR"
	// DefaultDirPermissions is used for every directory cookia creates
	DefaultDirPermissions = 0o750
	// DefaultFilePermissions is used for state files and mirrored weights
	DefaultFilePermissions = 0o600
)

// FilesRoot returns the application-private files root from the environment
// or the provided default. It returns an absolute path when possible.
func FilesRoot(defaultDir string) string {
	if env := os.Getenv(FilesRootEnv); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}
	return defaultDir
}

// EnsureDirectory creates path and its parents with DefaultDirPermissions.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// DirHasEntries reports whether path is a directory containing at least one
// entry. A missing directory is not an error.
func DirHasEntries(path string) (bool, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// AtomicWriteFile writes data to a temp file next to path and renames it into
// place, so readers never observe a partially written file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warn("fsutil.cleanup_failed", "Failed to remove temp file", map[string]interface{}{
				"path":  tmpPath,
				"error": removeErr.Error(),
			})
		}
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// CloseWithError closes a resource and logs any error.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil {
		logger.Warn("fsutil.close_failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
			"error": err.Error(),
		})
	}
}
