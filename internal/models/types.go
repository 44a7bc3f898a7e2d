package models

import "time"

// ModelInfo describes one installed model's weights
type ModelInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`      // Size in bytes
	Path     string    `json:"path"`      // Installed weights directory
	LastUsed time.Time `json:"last_used"` // Last generation or install
}

// State is the content of models_state.json
type State struct {
	Items   []ModelInfo `json:"items"`
	Updated time.Time   `json:"updated"`
}

// Stats summarizes the installed inventory
type Stats struct {
	TotalSize   int64      `json:"total_size"`
	ModelCount  int        `json:"model_count"`
	OldestModel *ModelInfo `json:"oldest_model,omitempty"` // By last_used
}
