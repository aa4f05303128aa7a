package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input       textinput.Model
	suggestions *Suggestions
	focused     bool
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "/open <path> | /path <jar>... | @<transformer> | /reset"
	ti.CharLimit = 1024
	ti.Prompt = ""
	return &CmdBarModel{
		input:       ti,
		suggestions: NewSuggestions(),
	}
}

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
	m.suggestions.Update("")
}

// Focused reports whether the command bar has the keyboard.
func (m *CmdBarModel) Focused() bool {
	return m.focused
}

// SetWidth sets the input width
func (m *CmdBarModel) SetWidth(w int) {
	m.input.Width = w
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := strings.TrimSpace(m.input.Value())
	m.Blur()
	return val
}

// Accept completes the selected suggestion. It reports false when no
// suggestion is shown.
func (m *CmdBarModel) Accept() bool {
	selected := m.suggestions.Selected()
	if selected == nil {
		return false
	}
	text := selected.Text
	if selected.Type == "command" {
		text += " "
	}
	m.input.SetValue(text)
	m.input.CursorEnd()
	m.suggestions.Update(text)
	return true
}

// Update handles messages
func (m *CmdBarModel) Update(msg tea.Msg) (*CmdBarModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && m.suggestions.IsVisible() {
		switch msg.String() {
		case "up":
			m.suggestions.Prev()
			return m, nil
		case "down":
			m.suggestions.Next()
			return m, nil
		case "tab":
			m.Accept()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.suggestions.Update(m.input.Value())
	return m, cmd
}

// View renders the command bar
func (m *CmdBarModel) View(width int) string {
	if !m.focused {
		return helpStyle.Render(" Press : to enter a command")
	}
	view := cmdBarStyle.Render(promptStyle.Render(": ") + m.input.View())
	if m.suggestions.IsVisible() {
		view += "\n" + m.suggestions.Render(width)
	}
	return view
}
