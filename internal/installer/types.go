package installer

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Progress reports how many leaf files of an install run have been copied.
// TotalFiles is fixed for the run; CopiedFiles only grows.
type Progress struct {
	TotalFiles  int `json:"total_files"`
	CopiedFiles int `json:"copied_files"`
}

// ErrInvalidModelID is returned for ids that are not a single path segment.
var ErrInvalidModelID = errors.New("invalid model id")

// ValidateModelID checks that id names exactly one directory below the
// weights root.
func ValidateModelID(id string) error {
	if strings.TrimSpace(id) == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || !fs.ValidPath(id) {
		return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	return nil
}

// IOError is returned when the asset source cannot be read or the
// destination cannot be written. Files copied before the failure are left
// in place.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("install %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Receipt records what a successful install wrote, keyed by the file's path
// relative to the model destination.
type Receipt struct {
	ModelID     string            `json:"model_id"`
	Files       map[string]string `json:"files"` // relative path -> blake2b-256 hex
	TotalBytes  int64             `json:"total_bytes"`
	InstalledAt time.Time         `json:"installed_at"`
}

// VerifyReport compares a destination against its receipt.
type VerifyReport struct {
	ModelID    string   `json:"model_id"`
	Checked    int      `json:"checked"`
	Missing    []string `json:"missing,omitempty"`
	Mismatched []string `json:"mismatched,omitempty"`
	Extra      []string `json:"extra,omitempty"`
}

// OK reports whether the destination matches the receipt exactly.
func (r VerifyReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatched) == 0 && len(r.Extra) == 0
}
