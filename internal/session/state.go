package session

import (
	"time"

	"cookia/internal/installer"
)

// State is a snapshot of one interactive session. Install and generate
// each have their own busy flag; an empty error string means no error.
type State struct {
	ModelID string `json:"model_id"`

	Installing      bool                `json:"installing"`
	InstallProgress *installer.Progress `json:"install_progress,omitempty"`
	InstallError    string              `json:"install_error,omitempty"`
	InstalledPath   string              `json:"installed_path,omitempty"`

	Generating             bool           `json:"generating"`
	Output                 string         `json:"output"`
	GenError               string         `json:"gen_error,omitempty"`
	LastGenerationDuration *time.Duration `json:"last_generation_duration,omitempty"`

	Battery     *int   `json:"battery,omitempty"` // Percent, nil when unknown
	Accelerator string `json:"accelerator,omitempty"`
}

// Installed reports whether the selected model is ready for generation.
func (s State) Installed() bool {
	return s.InstalledPath != ""
}

// LastGenerationMillis returns the last generation time in milliseconds.
func (s State) LastGenerationMillis() (int64, bool) {
	if s.LastGenerationDuration == nil {
		return 0, false
	}
	return s.LastGenerationDuration.Milliseconds(), true
}
