package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInstalled is returned when generation is requested without an
// installed model path.
var ErrNotInstalled = errors.New("model not installed")

// ConfigError reports that the manifest has no usable library id for a model.
type ConfigError struct {
	ModelID string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("model library not found for id %s", e.ModelID)
}

// EngineLoadError reports a failed engine reload that is not a native
// linkage failure.
type EngineLoadError struct {
	ModelPath string
	Lib       string
	Err       error
}

func (e *EngineLoadError) Error() string {
	return fmt.Sprintf("failed to load %s with %s: %v", e.ModelPath, e.Lib, e.Err)
}

func (e *EngineLoadError) Unwrap() error {
	return e.Err
}

// UnsupportedEngineError reports that none of the known completion entry
// points is available on the engine.
type UnsupportedEngineError struct {
	Candidates []string
	Cause      error
}

func (e *UnsupportedEngineError) Error() string {
	msg := fmt.Sprintf("no chat completion entry point found (tried %s)", strings.Join(e.Candidates, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnsupportedEngineError) Unwrap() error {
	return e.Cause
}
