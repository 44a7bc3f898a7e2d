package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cookia/internal/catalog"
	"cookia/internal/logging"
	"cookia/internal/session"
)

// Session is the part of session.Session the TUI drives and observes.
type Session interface {
	Snapshot() session.State
	Subscribe() (<-chan session.State, func())
	Install(ctx context.Context) bool
	Generate(ctx context.Context, prompt string) bool
	SelectModel(modelID string) error
}

// Catalog lists the models the manifest knows about.
type Catalog interface {
	Entries() ([]catalog.Entry, error)
}

// stateMsg carries a session snapshot into the update loop.
type stateMsg session.State

// sessionClosedMsg signals that the subscription ended.
type sessionClosedMsg struct{}

// Model is the bubbletea model. It only renders session snapshots and turns
// key presses into session transitions.
type Model struct {
	startTime time.Time
	quitting  bool

	ctx          context.Context
	logger       *logging.Logger
	session      Session
	catalog      Catalog
	stateManager *UIStateManager

	updates     <-chan session.State
	unsubscribe func()

	state         session.State
	currentScreen Screen
	prompt        textinput.Model
	lastPrompt    string
	lastError     string
	statusMessage string

	entries        []catalog.Entry
	entriesError   string
	modelSelection int
}

const (
	keyUp    = "up"
	keyDown  = "down"
	keyEnter = "enter"
	keyEsc   = "esc"
)

// NewModel creates the TUI for sess and restores the persisted UI state
// from stateDir.
func NewModel(ctx context.Context, sess Session, cat Catalog, stateDir string, logger *logging.Logger) Model {
	prompt := textinput.New()
	prompt.Placeholder = "Ask for a cookie fact"
	prompt.CharLimit = 280
	prompt.Width = 60
	prompt.Prompt = "› "

	updates, unsubscribe := sess.Subscribe()

	m := Model{
		startTime:     time.Now(),
		ctx:           ctx,
		logger:        logger,
		session:       sess,
		catalog:       cat,
		stateManager:  NewUIStateManager(stateDir, logger),
		updates:       updates,
		unsubscribe:   unsubscribe,
		state:         sess.Snapshot(),
		currentScreen: ScreenMain,
		prompt:        prompt,
	}

	if state, err := m.stateManager.Load(); err == nil {
		m.lastError = state.LastError
		m.lastPrompt = state.LastPrompt
		m.prompt.SetValue(state.LastPrompt)
		if state.CurrentScreen == ScreenModels {
			m = m.openModels()
		} else {
			m.currentScreen = state.CurrentScreen
		}
	} else {
		logger.Warn("tui.state.load_failed", "Failed to load UI state", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return m
}

// waitForState blocks on the subscription for the next snapshot.
func waitForState(updates <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return stateMsg(st)
	}
}

// Init starts listening for session snapshots
func (m Model) Init() tea.Cmd {
	return waitForState(m.updates)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		return m.applyState(session.State(msg)), waitForState(m.updates)
	case sessionClosedMsg:
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.prompt.Focused() {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) applyState(st session.State) Model {
	m.state = st

	current := st.GenError
	if current == "" {
		current = st.InstallError
	}
	if current != "" && current != m.lastError {
		m.lastError = current
		if err := m.stateManager.SaveError(current); err != nil {
			m.logger.Warn("tui.state.save_failed", "Failed to persist last error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m.quit()
	}

	if m.prompt.Focused() {
		return m.handlePromptKeys(msg)
	}

	if key == "q" {
		return m.quit()
	}

	if key == keyEsc && m.currentScreen != ScreenMain {
		m.currentScreen = ScreenMain
		m.statusMessage = ""
		return m, nil
	}

	switch m.currentScreen {
	case ScreenModels:
		return m.handleModelsKeys(key), nil
	case ScreenHelp:
		return m, nil
	}

	return m.handleMainKeys(key)
}

func (m Model) handleMainKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "i":
		if m.session.Install(m.ctx) {
			m.statusMessage = ""
		} else {
			m.statusMessage = "Install already running"
		}
		return m, nil
	case "g", keyEnter:
		m.statusMessage = ""
		cmd := m.prompt.Focus()
		return m, cmd
	case "m":
		return m.openModels(), nil
	case "?":
		m.currentScreen = ScreenHelp
		return m, nil
	}
	return m, nil
}

func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEnter:
		text := strings.TrimSpace(m.prompt.Value())
		if text == "" {
			return m, nil
		}
		m.prompt.Blur()
		m.lastPrompt = text
		switch {
		case m.session.Generate(m.ctx, text):
			m.statusMessage = ""
		case m.state.Generating:
			m.statusMessage = "Generation already running"
		}
		return m, nil
	case keyEsc:
		m.prompt.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) openModels() Model {
	m.currentScreen = ScreenModels
	m.entriesError = ""

	entries, err := m.catalog.Entries()
	if err != nil {
		m.entries = nil
		m.entriesError = fmt.Sprintf("Error loading manifest: %v", err)
		return m
	}

	m.entries = entries
	m.modelSelection = 0
	for i, e := range entries {
		if e.ModelID == m.state.ModelID {
			m.modelSelection = i
			break
		}
	}
	return m
}

func (m Model) handleModelsKeys(key string) Model {
	if len(m.entries) == 0 {
		return m
	}

	switch key {
	case keyUp, "k":
		m.modelSelection = (m.modelSelection - 1 + len(m.entries)) % len(m.entries)
	case keyDown, "j":
		m.modelSelection = (m.modelSelection + 1) % len(m.entries)
	case keyEnter, " ":
		id := m.entries[m.modelSelection].ModelID
		if err := m.session.SelectModel(id); err != nil {
			m.statusMessage = fmt.Sprintf("Cannot switch model: %v", err)
			return m
		}
		m.state.ModelID = id
		m.currentScreen = ScreenMain
		m.statusMessage = fmt.Sprintf("Selected %s, press i to install", id)
		m.saveState()
	}
	return m
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.saveState()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

func (m Model) saveState() {
	state := &UIState{
		CurrentScreen: m.currentScreen,
		ModelID:       m.state.ModelID,
		LastPrompt:    m.lastPrompt,
		LastError:     m.lastError,
	}
	if err := m.stateManager.Save(state); err != nil {
		m.logger.Warn("tui.state.save_failed", "Failed to save UI state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// View renders the current screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case ScreenModels:
		return m.renderModelsScreen()
	case ScreenHelp:
		return m.renderHelpScreen()
	default:
		return m.renderMainScreen()
	}
}

// prettyDuration formats a duration for display
func prettyDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Truncate(time.Second).String()
}
