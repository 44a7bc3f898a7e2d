package tui

import "time"

// Screen identifies a TUI screen
type Screen string

const (
	// ScreenMain shows install, prompt and output
	ScreenMain Screen = "main"
	// ScreenModels lists the manifest for model selection
	ScreenModels Screen = "models"
	// ScreenHelp shows the key bindings
	ScreenHelp Screen = "help"
)

// MenuItem is one action shown on the main screen
type MenuItem struct {
	Key         string // Key binding
	Label       string // Display label
	Description string // Short description
}

// UIState is the persisted UI state in ui_state.json
type UIState struct {
	CurrentScreen Screen    `json:"screen"`
	ModelID       string    `json:"model_id,omitempty"`    // Last selected model
	LastPrompt    string    `json:"last_prompt,omitempty"` // Restored into the prompt field
	LastError     string    `json:"last_error"`
	Updated       time.Time `json:"updated"`
}

// DefaultMenuItems returns the main screen actions
func DefaultMenuItems() []MenuItem {
	return []MenuItem{
		{Key: "i", Label: "Install", Description: "Copy the model weights from the bundled assets"},
		{Key: "g", Label: "Generate", Description: "Type a prompt, Enter sends it"},
		{Key: "m", Label: "Models", Description: "Choose another model from the manifest"},
		{Key: "?", Label: "Help", Description: "Show help"},
	}
}
