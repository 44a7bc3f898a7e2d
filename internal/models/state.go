package models

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cookia/internal/fsutil"
	"cookia/internal/logging"
)

const (
	// StateFileName is the name of the inventory file under the files root
	StateFileName = "models_state.json"
)

// StateManager keeps the inventory of installed model weights
type StateManager struct {
	stateDir string
	logger   *logging.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewStateManager creates a state manager writing into stateDir
func NewStateManager(stateDir string, logger *logging.Logger) *StateManager {
	return &StateManager{
		stateDir: stateDir,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StatePath returns the full path to the state file
func (m *StateManager) StatePath() string {
	return filepath.Join(m.stateDir, StateFileName)
}

// Load loads the inventory from disk; a missing file is an empty inventory
func (m *StateManager) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *StateManager) load() (*State, error) {
	data, err := os.ReadFile(m.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Items: []ModelInfo{}, Updated: m.now()}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Items == nil {
		state.Items = []ModelInfo{}
	}

	return &state, nil
}

// Save writes the inventory atomically
func (m *StateManager) Save(state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(state)
}

func (m *StateManager) save(state *State) error {
	if err := fsutil.EnsureDirectory(m.stateDir); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	state.Updated = m.now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := fsutil.AtomicWriteFile(m.StatePath(), data, fsutil.DefaultFilePermissions, m.logger); err != nil {
		return err
	}

	m.logger.Debug("models.state.saved", "Models state saved", map[string]interface{}{
		"count": len(state.Items),
	})

	return nil
}

// update loads, mutates and saves the inventory under the lock
func (m *StateManager) update(fn func(state *State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return m.save(state)
}

// AddModel adds or replaces a model entry
func (m *StateManager) AddModel(model ModelInfo) error {
	return m.update(func(state *State) error {
		for i, item := range state.Items {
			if item.Name == model.Name {
				state.Items[i] = model
				return nil
			}
		}
		state.Items = append(state.Items, model)
		return nil
	})
}

// Record measures an installed weights directory and stores it as used now
func (m *StateManager) Record(name, path string) (ModelInfo, error) {
	size, err := DirSize(path)
	if err != nil {
		return ModelInfo{}, err
	}

	info := ModelInfo{Name: name, Size: size, Path: path, LastUsed: m.now()}
	if err := m.AddModel(info); err != nil {
		return ModelInfo{}, err
	}

	m.logger.Info("models.state.recorded", "Installed model recorded", map[string]interface{}{
		"model": name,
		"size":  size,
	})
	return info, nil
}

// RemoveModel drops a model entry; unknown names are ignored
func (m *StateManager) RemoveModel(modelName string) error {
	return m.update(func(state *State) error {
		filtered := make([]ModelInfo, 0, len(state.Items))
		for _, item := range state.Items {
			if item.Name != modelName {
				filtered = append(filtered, item)
			}
		}
		state.Items = filtered
		return nil
	})
}

// UpdateLastUsed touches the last used timestamp of a model
func (m *StateManager) UpdateLastUsed(modelName string) error {
	return m.update(func(state *State) error {
		for i, item := range state.Items {
			if item.Name == modelName {
				state.Items[i].LastUsed = m.now()
				return nil
			}
		}
		return fmt.Errorf("model not found: %s", modelName)
	})
}

// List returns the installed models sorted by name
func (m *StateManager) List() ([]ModelInfo, error) {
	state, err := m.Load()
	if err != nil {
		return nil, err
	}

	items := make([]ModelInfo, len(state.Items))
	copy(items, state.Items)
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// GetStats returns inventory totals
func (m *StateManager) GetStats() (*Stats, error) {
	state, err := m.Load()
	if err != nil {
		return nil, err
	}

	stats := &Stats{ModelCount: len(state.Items)}

	var oldest *ModelInfo
	for i := range state.Items {
		stats.TotalSize += state.Items[i].Size
		if oldest == nil || state.Items[i].LastUsed.Before(oldest.LastUsed) {
			model := state.Items[i]
			oldest = &model
		}
	}
	stats.OldestModel = oldest

	return stats, nil
}

// DirSize sums the sizes of all regular files below root
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", root, err)
	}
	return total, nil
}
