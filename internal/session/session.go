package session

import (
	"context"
	"errors"
	"sync"

	"cookia/internal/dispatch"
	"cookia/internal/engine"
	"cookia/internal/installer"
	"cookia/internal/logging"
	"cookia/internal/models"
)

// ErrBusy is returned when the model is changed while work is in flight.
var ErrBusy = errors.New("session is busy")

// Installer mirrors a model's weights and returns where they live.
type Installer interface {
	InstallIfNeeded(ctx context.Context, modelID string, onProgress func(installer.Progress)) (string, error)
}

// Generator runs one prompt against an installed model.
type Generator interface {
	Generate(ctx context.Context, modelID, installedPath, prompt string) (dispatch.Result, error)
}

// Inventory records installed models. Optional.
type Inventory interface {
	Record(name, path string) (models.ModelInfo, error)
	UpdateLastUsed(name string) error
}

// Session holds the observable state and runs install and generate in the
// background. All mutations go through its transition methods.
type Session struct {
	installer Installer
	generator Generator
	inventory Inventory
	logger    *logging.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
	closed bool

	wg sync.WaitGroup
}

// New creates a session for modelID. inventory may be nil.
func New(modelID string, inst Installer, gen Generator, inventory Inventory, logger *logging.Logger) *Session {
	return &Session{
		installer: inst,
		generator: gen,
		inventory: inventory,
		logger:    logger,
		state:     State{ModelID: modelID},
		subs:      make(map[int]chan State),
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel receiving state snapshots, starting with the
// current one. A slow reader misses intermediate snapshots but always gets
// the latest. The channel is closed by cancel or Close.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.state

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// update applies fn and publishes the result. Callers must not hold mu.
func (s *Session) update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.publishLocked()
}

func (s *Session) publishLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- s.state:
			continue
		default:
		}
		// drop the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.state:
		default:
		}
	}
}

// SelectModel switches to another model. The new model must be installed
// before it can generate.
func (s *Session) SelectModel(modelID string) error {
	if err := installer.ValidateModelID(modelID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Installing || s.state.Generating {
		return ErrBusy
	}
	if s.state.ModelID == modelID {
		return nil
	}

	s.state.ModelID = modelID
	s.state.InstalledPath = ""
	s.state.InstallProgress = nil
	s.state.InstallError = ""
	s.publishLocked()

	s.logger.Info("session.model.selected", "Model selected", map[string]interface{}{
		"model": modelID,
	})
	return nil
}

// SetBattery records the latest battery level; nil means unknown.
func (s *Session) SetBattery(level *int) {
	s.update(func(st *State) { st.Battery = level })
}

// SetAccelerator records a one-line accelerator summary.
func (s *Session) SetAccelerator(summary string) {
	s.update(func(st *State) { st.Accelerator = summary })
}

// Install starts installing the selected model in the background. It
// returns false without doing anything when an install is already running.
func (s *Session) Install(ctx context.Context) bool {
	s.mu.Lock()
	if s.closed || s.state.Installing {
		s.mu.Unlock()
		return false
	}
	s.state.Installing = true
	s.state.InstallError = ""
	s.state.InstallProgress = nil
	modelID := s.state.ModelID
	s.publishLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("session.install.started", "Install started", map[string]interface{}{
		"model": modelID,
	})

	go func() {
		defer s.wg.Done()
		s.runInstall(ctx, modelID)
	}()
	return true
}

func (s *Session) runInstall(ctx context.Context, modelID string) {
	path, err := s.installer.InstallIfNeeded(ctx, modelID, func(p installer.Progress) {
		s.update(func(st *State) { st.InstallProgress = &p })
	})
	if err != nil {
		s.logger.Error("session.install.failed", "Install failed", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
		s.update(func(st *State) {
			st.Installing = false
			st.InstallError = ErrorMessage(err)
		})
		return
	}

	if s.inventory != nil {
		if _, err := s.inventory.Record(modelID, path); err != nil {
			s.logger.Warn("session.inventory.record_failed", "Failed to record installed model", map[string]interface{}{
				"model": modelID,
				"error": err.Error(),
			})
		}
	}

	s.update(func(st *State) {
		st.Installing = false
		st.InstalledPath = path
	})

	s.logger.Info("session.install.completed", "Install completed", map[string]interface{}{
		"model": modelID,
		"path":  path,
	})
}

// Generate starts a generation for prompt in the background. It returns
// false when a generation is already running or the model is not installed;
// in the latter case GenError says so.
func (s *Session) Generate(ctx context.Context, prompt string) bool {
	s.mu.Lock()
	if s.closed || s.state.Generating {
		s.mu.Unlock()
		return false
	}
	if s.state.InstalledPath == "" {
		s.state.GenError = ErrorMessage(dispatch.ErrNotInstalled)
		s.publishLocked()
		s.mu.Unlock()
		return false
	}
	s.state.Generating = true
	s.state.GenError = ""
	s.state.Output = ""
	modelID := s.state.ModelID
	path := s.state.InstalledPath
	s.publishLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runGenerate(ctx, modelID, path, prompt)
	}()
	return true
}

func (s *Session) runGenerate(ctx context.Context, modelID, path, prompt string) {
	result, err := s.generator.Generate(ctx, modelID, path, prompt)
	if err != nil {
		s.logger.Error("session.generate.failed", "Generation failed", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
		s.update(func(st *State) {
			st.Generating = false
			st.GenError = ErrorMessage(err)
		})
		return
	}

	if s.inventory != nil {
		if err := s.inventory.UpdateLastUsed(modelID); err != nil {
			s.logger.Debug("session.inventory.touch_failed", "Failed to update last used", map[string]interface{}{
				"model": modelID,
				"error": err.Error(),
			})
		}
	}

	duration := result.Duration
	s.update(func(st *State) {
		st.Generating = false
		st.Output = result.Text
		st.LastGenerationDuration = &duration
	})
}

// Wait blocks until all background work has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close rejects new work, waits for in-flight work and closes all
// subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// ErrorMessage renders err for display.
func ErrorMessage(err error) string {
	var nativeErr *engine.NativeLibraryError
	if errors.As(err, &nativeErr) {
		diagnostic := nativeErr.Diagnostic
		if diagnostic == "" {
			diagnostic = nativeErr.Error()
		}
		return "native library not loaded: " + diagnostic
	}
	if err == nil || err.Error() == "" {
		return "Error"
	}
	return err.Error()
}
