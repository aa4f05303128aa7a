package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/helios/internal/models"
)

var (
	statusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

func formatState(state models.TaskState) string {
	switch state {
	case models.TaskStatePending:
		return statusPending.Render("○ PENDING")
	case models.TaskStateRunning:
		return statusRunning.Render("◑ RUNNING")
	case models.TaskStateCompleted:
		return statusCompleted.Render("● DONE")
	case models.TaskStateCancelled:
		return statusPending.Render("✗ CANCELLED")
	case models.TaskStateFailed:
		return statusFailed.Render("✗ FAILED")
	default:
		return string(state)
	}
}

func renderTasks(tasks []models.TaskSnapshot, selected, height int) string {
	var b strings.Builder

	b.WriteString("\n  ⚙️  Background Tasks\n")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n\n")

	if len(tasks) == 0 {
		b.WriteString("  " + lipgloss.NewStyle().Foreground(mutedColor).Render("No running tasks") + "\n")
		return b.String()
	}

	var lines []string
	for i, t := range tasks {
		elapsed := ""
		if !t.Started.IsZero() {
			elapsed = formatDuration(time.Since(t.Started))
		}
		label := truncate(t.Label, 40)
		if !t.Cancelable {
			label += lipgloss.NewStyle().Foreground(mutedColor).Render(" (not cancelable)")
		}
		if i == selected {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %-12s %-40s %s", t.State, label, elapsed)))
		} else {
			lines = append(lines, fmt.Sprintf("    %s  %-40s %s", formatState(t.State), label, elapsed))
		}
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n  " + helpStyle.Render("x: cancel selected | Esc: back") + "\n")
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
