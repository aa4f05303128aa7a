// Package tui provides the interactive terminal workspace browser for Helios.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fentz26/helios/internal/archive"
	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/workspace"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(cyanColor).
			Bold(true).
			Underline(true).
			Padding(0, 1)
)

const (
	modeBrowse = "browse"
	modeOutput = "output"
	modeTasks  = "tasks"
)

// App is the main TUI application model.
type App struct {
	ws         *workspace.Workspace
	dispatcher *Dispatcher
	initial    []string

	archives       []models.ArchiveSummary
	archiveIdx     int
	entries        *EntryListModel
	transformers   []transformer.Descriptor
	transformerIdx int
	preferred      string
	overrides      map[string]transformer.Values

	tasks    []models.TaskSnapshot
	taskIdx  int
	spinner  spinner.Model
	spinning bool

	cmdbar  *CmdBarModel
	output  *OutputModel
	width   int
	height  int
	mode    string
	message string
}

// New creates a new TUI application. d must be the dispatcher ws was built
// with; paths are opened once the program starts.
func New(ws *workspace.Workspace, d *Dispatcher, paths []string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(cyanColor)

	a := &App{
		ws:         ws,
		dispatcher: d,
		initial:    paths,
		entries:    NewEntryListModel(),
		preferred:  "javap",
		overrides:  map[string]transformer.Values{},
		spinner:    sp,
		cmdbar:     NewCmdBarModel(),
		output:     NewOutputModel(),
		mode:       modeBrowse,
	}
	ws.Runner().SetOnChange(func() {
		d.Dispatch(a.syncTasks)
	})
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	a.ws.Runner().SetOnChange(nil)
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	for _, p := range a.initial {
		a.open(p)
	}
	a.reloadArchives()
	return a.dispatcher.wait()
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.cmdbar.Focused() {
			return a, a.updateCmdBar(msg)
		}
		if a.mode == modeBrowse && a.entries.Filtering() {
			return a, a.updateEntries(msg)
		}
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.cmdbar.SetWidth(msg.Width - 8)
		a.entries.SetSize(msg.Width, a.contentHeight())
		a.output.SetSize(msg.Width, a.contentHeight())

	case dispatchMsg:
		for _, fn := range msg {
			fn()
		}
		cmds = append(cmds, a.dispatcher.wait())
		if len(a.tasks) > 0 && !a.spinning {
			a.spinning = true
			cmds = append(cmds, a.spinner.Tick)
		}

	case spinner.TickMsg:
		if len(a.tasks) == 0 {
			a.spinning = false
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case commandResultMsg:
		a.message = msg.message
		a.reloadArchives()

	case historyMsg:
		a.output.SetHistory(msg.runs)
		a.mode = modeOutput

	case errMsg:
		a.message = "Error: " + msg.err.Error()

	default:
		if a.mode == modeBrowse {
			cmds = append(cmds, a.updateEntries(msg))
		}
	}

	return a, tea.Batch(cmds...)
}

func (a *App) updateCmdBar(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.cmdbar.Blur()
		return nil
	case "enter":
		if a.cmdbar.suggestions.IsVisible() && !strings.Contains(a.cmdbar.input.Value(), " ") {
			a.cmdbar.Accept()
			if !strings.HasPrefix(a.cmdbar.input.Value(), "@") {
				return nil
			}
		}
		return a.executeCommand(a.cmdbar.Submit())
	}
	var cmd tea.Cmd
	a.cmdbar, cmd = a.cmdbar.Update(msg)
	return cmd
}

func (a *App) updateEntries(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	a.entries, cmd = a.entries.Update(msg)
	a.loadTransformers()
	return cmd
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case ":":
		a.message = ""
		a.refreshReferences()
		cmd := a.cmdbar.Focus()
		a.cmdbar.input.SetValue("/")
		a.cmdbar.input.CursorEnd()
		a.cmdbar.suggestions.Update("/")
		return cmd
	case "q":
		return tea.Quit
	case "esc":
		a.mode = modeBrowse
		return nil
	case "T":
		if a.mode == modeTasks {
			a.mode = modeBrowse
		} else {
			a.mode = modeTasks
			a.syncTasks()
		}
		return nil
	}

	switch a.mode {
	case modeBrowse:
		switch msg.String() {
		case "enter":
			a.transform()
			return nil
		case "tab":
			a.cycleTransformer(1)
			return nil
		case "shift+tab":
			a.cycleTransformer(-1)
			return nil
		case "]":
			a.selectArchive(a.archiveIdx + 1)
			return nil
		case "[":
			a.selectArchive(a.archiveIdx - 1)
			return nil
		case "r":
			return a.rescan()
		}
		return a.updateEntries(msg)

	case modeOutput:
		var cmd tea.Cmd
		a.output, cmd = a.output.Update(msg)
		return cmd

	case modeTasks:
		switch msg.String() {
		case "up", "k":
			if a.taskIdx > 0 {
				a.taskIdx--
			}
		case "down", "j":
			if a.taskIdx < len(a.tasks)-1 {
				a.taskIdx++
			}
		case "x":
			a.cancelSelectedTask()
		}
	}
	return nil
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	header := titleStyle.Render("☕ HELIOS")
	if len(a.tasks) > 0 {
		header += "  " + a.spinner.View() + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("%d running", len(a.tasks)))
	}
	header += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf("[%d on path]", len(a.ws.Path())))
	b.WriteString(header + "\n")
	b.WriteString(a.renderArchiveTabs() + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	switch a.mode {
	case modeBrowse:
		b.WriteString(a.entries.View())
		b.WriteString("\n" + a.renderTransformerBar())
	case modeOutput:
		b.WriteString(a.output.View())
	case modeTasks:
		b.WriteString(renderTasks(a.tasks, a.taskIdx, a.contentHeight()))
	}

	// Message bar
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(a.cmdbar.View(a.width))
	b.WriteString("\n")

	// Status bar
	var status string
	switch a.mode {
	case modeBrowse:
		status = fmt.Sprintf(" Entries: %d | ↑↓:nav | Enter:transform | Tab:transformer | []:archive | r:rescan | T:tasks | ::command | q:quit", a.entries.Len())
	case modeOutput:
		status = " ↑↓/PgUp/PgDn:scroll | Esc:back | T:tasks | ::command"
	case modeTasks:
		status = fmt.Sprintf(" Tasks: %d | ↑↓:nav | x:cancel | Esc:back", len(a.tasks))
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) contentHeight() int {
	h := a.height - 10
	if h < 5 {
		h = 5
	}
	return h
}

func (a *App) renderArchiveTabs() string {
	if len(a.archives) == 0 {
		return helpStyle.Render(" no archives open")
	}
	var tabs []string
	for i, s := range a.archives {
		label := fmt.Sprintf("%s (%s)", s.Name, humanize.Bytes(uint64(s.Size)))
		if i == a.archiveIdx {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a *App) renderTransformerBar() string {
	if len(a.transformers) == 0 {
		return helpStyle.Render(" no transformer applies to this entry")
	}
	var names []string
	for i, d := range a.transformers {
		if i == a.transformerIdx {
			names = append(names, activeTabStyle.Render(d.Name))
		} else {
			names = append(names, tabStyle.Render(d.Name))
		}
	}
	return " Transformer:" + lipgloss.JoinHorizontal(lipgloss.Top, names...)
}

// --- Workspace state ---

func (a *App) currentArchive() string {
	if a.archiveIdx < len(a.archives) {
		return a.archives[a.archiveIdx].Name
	}
	return ""
}

func (a *App) currentTransformer() *transformer.Descriptor {
	if a.transformerIdx < len(a.transformers) {
		return &a.transformers[a.transformerIdx]
	}
	return nil
}

func (a *App) reloadArchives() {
	current := a.currentArchive()
	a.archives = a.ws.Archives()
	a.archiveIdx = 0
	for i, s := range a.archives {
		if s.Name == current {
			a.archiveIdx = i
		}
	}
	a.loadEntries()
}

func (a *App) selectArchive(idx int) {
	if len(a.archives) == 0 {
		return
	}
	a.archiveIdx = (idx + len(a.archives)) % len(a.archives)
	a.loadEntries()
}

func (a *App) loadEntries() {
	var arch *archive.Archive
	if name := a.currentArchive(); name != "" {
		arch, _ = a.ws.Archive(name)
	}
	a.entries.SetArchive(arch)
	a.loadTransformers()
}

func (a *App) loadTransformers() {
	a.transformers = nil
	a.transformerIdx = 0
	sel := a.entries.Selected()
	if sel == nil {
		return
	}
	ds, err := a.ws.TransformersFor(a.currentArchive(), sel.Name)
	if err != nil {
		return
	}
	a.transformers = ds
	for i, d := range ds {
		if d.ID == a.preferred {
			a.transformerIdx = i
		}
	}
}

func (a *App) cycleTransformer(step int) {
	if len(a.transformers) == 0 {
		return
	}
	a.transformerIdx = (a.transformerIdx + step + len(a.transformers)) % len(a.transformers)
	a.preferred = a.transformers[a.transformerIdx].ID
}

func (a *App) syncTasks() {
	a.tasks = a.ws.Tasks()
	if a.taskIdx >= len(a.tasks) {
		a.taskIdx = max(0, len(a.tasks)-1)
	}
}

func (a *App) refreshReferences() {
	ids := make([]string, 0, len(a.transformers))
	for _, d := range a.ws.Transformers() {
		ids = append(ids, d.ID)
	}
	names := make([]string, len(a.archives))
	for i, s := range a.archives {
		names[i] = s.Name
	}
	a.cmdbar.suggestions.SetReferences(ids, names)
}

// --- Actions ---

// open submits path to the runner; the callback runs inside Update.
func (a *App) open(path string) {
	_, err := a.ws.OpenAsync(path, func(arch *archive.Archive, err error) {
		if err != nil {
			a.message = "Error: " + err.Error()
			return
		}
		a.reloadArchives()
		for i, s := range a.archives {
			if s.Name == arch.Name {
				a.selectArchive(i)
			}
		}
		a.message = fmt.Sprintf("✓ Opened %s (%d entries)", arch.Name, arch.Len())
	})
	if err != nil {
		a.message = "Error: " + err.Error()
		return
	}
	a.message = "Opening " + path + "..."
}

func (a *App) transform() {
	sel := a.entries.Selected()
	d := a.currentTransformer()
	if sel == nil || d == nil {
		a.message = "Nothing to transform"
		return
	}

	req := workspace.TransformRequest{
		Archive:     a.currentArchive(),
		Entry:       sel.Name,
		Transformer: d.ID,
		Settings:    a.overrides[d.ID],
	}
	key := strings.TrimSuffix(sel.Name, archive.ClassSuffix)
	if !sel.IsClass() {
		key = sel.Name
	}
	title := fmt.Sprintf("%s: %s!%s", d.Name, req.Archive, req.Entry)

	_, err := a.ws.TransformAsync(req, func(res *transformer.Result, err error) {
		if errors.Is(err, context.Canceled) {
			a.message = "Cancelled " + title
			return
		}
		if err != nil {
			a.message = "Error: " + err.Error()
			return
		}
		a.output.SetResult(title, key, res)
		a.mode = modeOutput
		a.message = ""
	})
	if err != nil {
		a.message = "Error: " + err.Error()
		return
	}
	a.message = "Running " + title + "..."
}

func (a *App) rescan() tea.Cmd {
	name := a.currentArchive()
	if name == "" {
		return nil
	}
	h, err := a.ws.ResetArchive(name)
	if err != nil {
		a.message = "Error: " + err.Error()
		return nil
	}
	a.reloadArchives()
	a.message = "Reparsing " + name + "..."
	return func() tea.Msg {
		if err := h.Wait(context.Background()); err != nil {
			return errMsg{err}
		}
		return commandResultMsg{fmt.Sprintf("✓ Reparsed %s", name)}
	}
}

func (a *App) cancelSelectedTask() {
	if a.taskIdx >= len(a.tasks) {
		return
	}
	t := a.tasks[a.taskIdx]
	if err := a.ws.CancelTask(t.ID); err != nil {
		a.message = "Error: " + err.Error()
		return
	}
	a.message = "✓ Cancelled " + t.Label
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	if strings.HasPrefix(cmd, "@") {
		ref := strings.TrimPrefix(cmd, "@")
		for i, s := range a.archives {
			if s.Name == ref {
				a.selectArchive(i)
				return nil
			}
		}
		for _, d := range a.ws.Transformers() {
			if d.ID == ref {
				a.preferred = d.ID
				a.loadTransformers()
				if cur := a.currentTransformer(); cur == nil || cur.ID != d.ID {
					a.message = fmt.Sprintf("%s does not apply to the selected entry", d.Name)
				}
				return nil
			}
		}
		a.message = "Error: unknown transformer or archive " + ref
		return nil
	}

	switch cmd {
	case "open", "o":
		if len(args) < 1 {
			a.message = "Usage: /open <path>..."
			return nil
		}
		for _, p := range args {
			a.open(p)
		}
		return nil

	case "close":
		name := a.currentArchive()
		if len(args) > 0 {
			name = args[0]
		}
		if err := a.ws.Close(name); err != nil {
			a.message = "Error: " + err.Error()
			return nil
		}
		a.reloadArchives()
		a.message = "✓ Closed " + name
		return nil

	case "set":
		d := a.currentTransformer()
		if d == nil || len(args) < 1 {
			a.message = "Usage: /set <key>=<value> (applies to the current transformer)"
			return nil
		}
		values := a.overrides[d.ID]
		if values == nil {
			values = transformer.Values{}
		}
		for _, kv := range args {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				a.message = "Usage: /set <key>=<value>"
				return nil
			}
			values[k] = v
		}
		if _, err := d.Resolve(values); err != nil {
			a.message = "Error: " + err.Error()
			return nil
		}
		a.overrides[d.ID] = values
		a.message = fmt.Sprintf("✓ %s: %s", d.Name, strings.Join(args, " "))
		return nil

	case "tasks":
		a.mode = modeTasks
		a.syncTasks()
		return nil

	case "q", "quit", "exit":
		return tea.Quit
	}

	// Commands that touch the disk or wait on processes run off the UI goroutine.
	return func() tea.Msg {
		switch cmd {
		case "path":
			n, err := a.ws.SetPath(args)
			if err != nil {
				return commandResultMsg{fmt.Sprintf("Error: loaded %d of %d: %v", n, len(args), err)}
			}
			return commandResultMsg{fmt.Sprintf("✓ Classpath set (%d archives)", n)}

		case "reset":
			if err := a.ws.Reset(); err != nil {
				return errMsg{err}
			}
			return commandResultMsg{"✓ Workspace reset"}

		case "history":
			runs, err := a.ws.History(store.RunFilter{Archive: strings.Join(args, ""), Limit: 200})
			if err != nil {
				return errMsg{err}
			}
			return historyMsg{runs}

		default:
			return commandResultMsg{fmt.Sprintf("Unknown: %s (try: /open, /path, /reset, /history)", cmd)}
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type commandResultMsg struct {
	message string
}

type historyMsg struct {
	runs []models.TransformRun
}

type errMsg struct {
	err error
}
