package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)
	outputStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5f5f87")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00d7ff")).Bold(true)
)

func (m Model) renderMainScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("cookia 🍪"))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusLine())

	b.WriteString(sectionStyle.Render("Model"))
	b.WriteString("\n")
	b.WriteString(m.renderInstallSection())

	b.WriteString(sectionStyle.Render("Prompt"))
	b.WriteString("\n")
	b.WriteString(m.prompt.View())
	b.WriteString("\n")
	b.WriteString(m.renderGenerateSection())

	if m.statusMessage != "" {
		b.WriteString("\n")
		b.WriteString(valueStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}

	if m.state.InstallError == "" && m.state.GenError == "" && m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Last error: " + m.lastError))
		b.WriteString("\n")
	}

	b.WriteString(m.renderHints())
	return b.String()
}

func (m Model) renderStatusLine() string {
	var b strings.Builder

	battery := "unknown"
	if m.state.Battery != nil {
		battery = fmt.Sprintf("%d%%", *m.state.Battery)
	}
	b.WriteString(labelStyle.Render("Battery: "))
	b.WriteString(valueStyle.Render(battery))

	if m.state.Accelerator != "" {
		b.WriteString("  ")
		b.WriteString(labelStyle.Render("Accelerator: "))
		b.WriteString(valueStyle.Render(m.state.Accelerator))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderInstallSection() string {
	var b strings.Builder

	b.WriteString(labelStyle.Render("ID: "))
	b.WriteString(valueStyle.Render(m.state.ModelID))
	b.WriteString("\n")

	switch {
	case m.state.Installing:
		b.WriteString(valueStyle.Render("Installing… "))
		if p := m.state.InstallProgress; p != nil {
			b.WriteString(valueStyle.Render(fmt.Sprintf("%d/%d files", p.CopiedFiles, p.TotalFiles)))
		}
		b.WriteString("\n")
	case m.state.InstallError != "":
		b.WriteString(errorStyle.Render("Error: " + m.state.InstallError))
		b.WriteString("\n")
	case m.state.InstalledPath != "":
		b.WriteString(labelStyle.Render("Installed: "))
		b.WriteString(valueStyle.Render(m.state.InstalledPath))
		b.WriteString("\n")
	default:
		b.WriteString(mutedStyle.Render("Not installed, press i"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderGenerateSection() string {
	var b strings.Builder

	switch {
	case m.state.Generating:
		b.WriteString(valueStyle.Render("Generating…"))
		b.WriteString("\n")
	case m.state.GenError != "":
		b.WriteString(errorStyle.Render("Error: " + m.state.GenError))
		b.WriteString("\n")
	case m.state.Output != "":
		b.WriteString(outputStyle.Render(m.state.Output))
		b.WriteString("\n")
	}

	if ms, ok := m.state.LastGenerationMillis(); ok && !m.state.Generating {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Last generation: %d ms", ms)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderHints() string {
	if m.prompt.Focused() {
		return hintStyle.Render("Send: Enter | Cancel: Esc | Quit: Ctrl+C") + "\n"
	}

	items := DefaultMenuItems()
	parts := make([]string, 0, len(items)+1)
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s: %s", item.Label, item.Key))
	}
	parts = append(parts, "Quit: q")
	return hintStyle.Render(strings.Join(parts, " | ")) + "\n"
}

func (m Model) renderModelsScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Models"))
	b.WriteString("\n\n")

	switch {
	case m.entriesError != "":
		b.WriteString(errorStyle.Render(m.entriesError))
		b.WriteString("\n")
	case len(m.entries) == 0:
		b.WriteString(mutedStyle.Render("The manifest lists no models"))
		b.WriteString("\n")
	default:
		for i, e := range m.entries {
			line := e.ModelID
			if e.ModelLib == "" {
				line += " (no library)"
			}
			if e.ModelID == m.state.ModelID {
				line += " *"
			}
			if i == m.modelSelection {
				b.WriteString(selectedStyle.Render(line))
			} else {
				b.WriteString(valueStyle.Render(line))
			}
			b.WriteString("\n")
		}
	}

	if m.statusMessage != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}

	b.WriteString(hintStyle.Render("Navigate: ↑/↓ | Select: Enter | Back: Esc | Quit: q"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderHelpScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Help"))
	b.WriteString("\n\n")

	for _, item := range DefaultMenuItems() {
		b.WriteString(labelStyle.Render(fmt.Sprintf("[%s] %s", item.Key, item.Label)))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("    " + item.Description))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Uptime: " + prettyDuration(time.Since(m.startTime))))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Back: Esc | Quit: q"))
	b.WriteString("\n")
	return b.String()
}
