package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for commands
type Suggestions struct {
	items        []SuggestionItem
	filtered     []SuggestionItem
	selectedIdx  int
	visible      bool
	prefix       string // "/" or "@"
	currentInput string
	references   []SuggestionItem
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command", "transformer", "archive"
}

var commandSuggestions = []SuggestionItem{
	{Text: "/open", Description: "Open an archive or class file", Type: "command"},
	{Text: "/close", Description: "Close the current archive", Type: "command"},
	{Text: "/path", Description: "Replace the auxiliary classpath", Type: "command"},
	{Text: "/rescan", Description: "Reload the current archive from disk", Type: "command"},
	{Text: "/reset", Description: "Cancel everything and close all archives", Type: "command"},
	{Text: "/set", Description: "Set a transformer option (key=value)", Type: "command"},
	{Text: "/history", Description: "Show recent transformations", Type: "command"},
	{Text: "/tasks", Description: "Show background tasks", Type: "command"},
	{Text: "/quit", Description: "Exit Helios", Type: "command"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{
		items:   commandSuggestions,
		visible: false,
	}
}

// Update updates suggestions based on current input
func (s *Suggestions) Update(input string) {
	s.currentInput = input
	if input == "" || strings.Contains(input, " ") {
		s.visible = false
		s.filtered = nil
		s.prefix = ""
		return
	}

	// Check for trigger characters
	switch input[0] {
	case '/':
		s.prefix = "/"
		s.items = commandSuggestions
		s.visible = true
		s.filter(strings.ToLower(input))
	case '@':
		s.prefix = "@"
		s.items = s.references
		s.visible = true
		s.filter(strings.ToLower(input))
	default:
		s.visible = false
		s.filtered = nil
		s.prefix = ""
	}
}

// SetReferences updates the transformer and archive suggestions
func (s *Suggestions) SetReferences(transformers, archives []string) {
	s.references = make([]SuggestionItem, 0, len(transformers)+len(archives))
	for _, id := range transformers {
		s.references = append(s.references, SuggestionItem{Text: "@" + id, Description: "Use this transformer", Type: "transformer"})
	}
	for _, name := range archives {
		s.references = append(s.references, SuggestionItem{Text: "@" + name, Description: "Switch to this archive", Type: "archive"})
	}
	if s.prefix == "@" {
		s.items = s.references
		s.filter(strings.ToLower(s.currentInput))
	}
}

func (s *Suggestions) filter(query string) {
	if query == s.prefix {
		s.filtered = s.items
		s.selectedIdx = 0
		return
	}

	s.filtered = []SuggestionItem{}
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
	s.selectedIdx = 0
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	suggestionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(width - 4)

	itemStyle := lipgloss.NewStyle().
		Foreground(fgColor)

	descStyle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true)

	// Header
	var header string
	switch s.prefix {
	case "/":
		header = "💡 Commands"
	case "@":
		header = "🔗 Transformers & Archives"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	// Show max 5 suggestions
	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			more := len(s.filtered) - maxVisible
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", more)))
			break
		}

		line := ""
		if i == s.selectedIdx {
			line = selectedStyle.Render("▶ " + item.Text)
			if item.Description != "" {
				line += " " + selectedStyle.Render(item.Description)
			}
		} else {
			line = itemStyle.Render("  " + item.Text)
			if item.Description != "" {
				line += " " + descStyle.Render(item.Description)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return suggestionStyle.Render(b.String())
}
