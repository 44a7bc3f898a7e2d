package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cookia/internal/fsutil"
	"cookia/internal/logging"
)

const (
	// UIStateFileName is the name of the UI state file
	UIStateFileName = "ui_state.json"
)

// UIStateManager persists the UI state between runs
type UIStateManager struct {
	stateDir string
	logger   *logging.Logger
}

// NewUIStateManager creates a new UI state manager
func NewUIStateManager(stateDir string, logger *logging.Logger) *UIStateManager {
	return &UIStateManager{
		stateDir: stateDir,
		logger:   logger,
	}
}

func (m *UIStateManager) statePath() string {
	return filepath.Join(m.stateDir, UIStateFileName)
}

func defaultUIState() *UIState {
	return &UIState{
		CurrentScreen: ScreenMain,
		Updated:       time.Now().UTC(),
	}
}

// Load loads the UI state; a missing file yields the default state
func (m *UIStateManager) Load() (*UIState, error) {
	data, err := os.ReadFile(m.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return defaultUIState(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state UIState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.CurrentScreen == "" {
		state.CurrentScreen = ScreenMain
	}

	return &state, nil
}

// Save writes the UI state atomically
func (m *UIStateManager) Save(state *UIState) error {
	if err := fsutil.EnsureDirectory(m.stateDir); err != nil {
		return err
	}

	state.Updated = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := fsutil.AtomicWriteFile(m.statePath(), data, fsutil.DefaultFilePermissions, m.logger); err != nil {
		return err
	}

	m.logger.Debug("tui.state.saved", "UI state saved", map[string]interface{}{
		"screen": state.CurrentScreen,
		"model":  state.ModelID,
	})

	return nil
}

// SaveError records errorMsg as the last error
func (m *UIStateManager) SaveError(errorMsg string) error {
	state, err := m.Load()
	if err != nil {
		state = defaultUIState()
	}
	state.LastError = errorMsg

	return m.Save(state)
}

// ClearError clears the last error
func (m *UIStateManager) ClearError() error {
	state, err := m.Load()
	if err != nil {
		return err
	}

	state.LastError = ""
	return m.Save(state)
}
