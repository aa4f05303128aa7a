package tui

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/transformer"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

// OutputModel shows a transformation result or the run history
type OutputModel struct {
	viewport viewport.Model
	title    string
	width    int
	height   int
}

// NewOutputModel creates a new output model
func NewOutputModel() *OutputModel {
	return &OutputModel{
		viewport: viewport.New(80, 20),
	}
}

// SetSize sets the dimensions
func (m *OutputModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w
	m.viewport.Height = h - 2
}

// SetResult shows the output stored under key, or explains its absence.
func (m *OutputModel) SetResult(title, key string, res *transformer.Result) {
	m.title = title

	var b strings.Builder
	out, ok := res.Outputs[key]
	if ok {
		b.WriteString(printable(out))
	} else {
		b.WriteString(statusFailed.Render("No output for "+key) + "\n")
	}

	if diag := res.Diagnostics(); diag != "" {
		if ok {
			b.WriteString("\n")
		}
		b.WriteString(sectionStyle.Render("Diagnostics"))
		b.WriteString("\n")
		if res.Message != "" {
			b.WriteString(m.renderField("Message", res.Message))
		}
		if s := strings.TrimSpace(res.Stdout); s != "" {
			b.WriteString(m.renderField("Stdout", s))
		}
		if s := strings.TrimSpace(res.Stderr); s != "" {
			b.WriteString(m.renderField("Stderr", s))
		}
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// SetHistory shows recorded runs, newest first.
func (m *OutputModel) SetHistory(runs []models.TransformRun) {
	m.title = fmt.Sprintf("History [%d runs]", len(runs))

	var b strings.Builder
	if len(runs) == 0 {
		b.WriteString("No transformations recorded yet.\n")
	}
	for _, run := range runs {
		outcome := statusCompleted.Render(string(run.Outcome))
		switch run.Outcome {
		case models.RunOutcomeFailed:
			outcome = statusFailed.Render(string(run.Outcome))
		case models.RunOutcomeRejected:
			outcome = statusPending.Render(string(run.Outcome))
		}
		b.WriteString(fmt.Sprintf("%s  %-10s %s!%s (%s)\n",
			run.StartedAt.Local().Format("15:04:05"), run.Transformer, run.Archive, run.Entry, outcome))
		if run.Message != "" {
			b.WriteString(fmt.Sprintf("    → %s\n", truncate(run.Message, 100)))
		}
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// Update handles messages
func (m *OutputModel) Update(msg tea.Msg) (*OutputModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the output
func (m *OutputModel) View() string {
	footer := labelStyle.Render(fmt.Sprintf(" %3.f%%", m.viewport.ScrollPercent()*100))
	return headerStyle.Render(m.title) + "\n" + m.viewport.View() + "\n" + footer
}

func (m *OutputModel) renderField(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

// printable returns text outputs as is and binary ones as a hex dump.
func printable(out []byte) string {
	if utf8.Valid(out) {
		return string(out)
	}
	return hex.Dump(out)
}
