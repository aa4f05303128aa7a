package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fentz26/helios/internal/archive"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	kindClass    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	kindResource = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
)

// EntryItem implements list.Item for archive entries
type EntryItem struct {
	Name string
	Size int
}

// IsClass reports whether the entry is a class file.
func (i EntryItem) IsClass() bool { return strings.HasSuffix(i.Name, archive.ClassSuffix) }

func (i EntryItem) FilterValue() string { return i.Name }
func (i EntryItem) Title() string       { return i.Name }
func (i EntryItem) Description() string {
	kind := kindResource.Render("resource")
	if i.IsClass() {
		kind = kindClass.Render("class")
	}
	return fmt.Sprintf("%s • %s", kind, humanize.Bytes(uint64(i.Size)))
}

// EntryListModel lists the entries of one archive
type EntryListModel struct {
	list    list.Model
	archive string
	width   int
	height  int
}

// NewEntryListModel creates a new entry list model
func NewEntryListModel() *EntryListModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Entries"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.Styles.Title = listTitleStyle

	return &EntryListModel{
		list: l,
	}
}

// SetSize sets the list dimensions
func (m *EntryListModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.list.SetSize(w, h)
}

// SetArchive replaces the listed entries. The selection is kept when the
// archive is unchanged.
func (m *EntryListModel) SetArchive(a *archive.Archive) tea.Cmd {
	if a == nil {
		m.archive = ""
		m.list.Title = "Entries"
		return m.list.SetItems(nil)
	}

	entries := a.Entries()
	names := a.Names()
	items := make([]list.Item, len(names))
	for i, name := range names {
		items[i] = EntryItem{Name: name, Size: len(entries[name])}
	}

	keep := m.archive == a.Name
	idx := m.list.Index()
	m.archive = a.Name
	m.list.Title = fmt.Sprintf("%s [%d entries]", a.Name, len(items))
	cmd := m.list.SetItems(items)
	if keep && idx < len(items) {
		m.list.Select(idx)
	} else {
		m.list.Select(0)
	}
	return cmd
}

// Selected returns the currently selected entry
func (m *EntryListModel) Selected() *EntryItem {
	if item := m.list.SelectedItem(); item != nil {
		entry := item.(EntryItem)
		return &entry
	}
	return nil
}

// Filtering reports whether the filter prompt has the keyboard.
func (m *EntryListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// Len returns the number of entries.
func (m *EntryListModel) Len() int {
	return len(m.list.Items())
}

// Update handles messages
func (m *EntryListModel) Update(msg tea.Msg) (*EntryListModel, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the entry list
func (m *EntryListModel) View() string {
	if m.archive == "" {
		return "\n  No archive open. Type :open <path> to open one.\n"
	}
	return m.list.View()
}
