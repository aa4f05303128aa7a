// Package workspace ties the archive registry, transformers, background
// tasks and external processes into one application context.
package workspace

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fentz26/helios/internal/archive"
	"github.com/fentz26/helios/internal/audit"
	"github.com/fentz26/helios/internal/config"
	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/process"
	"github.com/fentz26/helios/internal/registry"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/tasks"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/transformer/backends"
	"go.uber.org/multierr"
)

// Dispatcher runs fn on the goroutine that owns the user interface.
type Dispatcher func(fn func())

// Immediate runs fn on the calling goroutine.
func Immediate(fn func()) { fn() }

// Deps are the collaborators a Workspace is built from.
type Deps struct {
	Store        *store.Store
	Runner       *tasks.Runner
	Processes    *process.Controller
	Registry     *registry.Registry
	Transformers *transformer.Registry
	// Settings holds configured setting values per transformer id.
	Settings map[string]transformer.Values
	// Tools is the external tool configuration; it is part of the cache
	// key of external transformers.
	Tools backends.Tools
	// Dispatch delivers async callbacks. Nil means Immediate.
	Dispatch Dispatcher
}

// Workspace is the application context.
type Workspace struct {
	store        *store.Store
	pdr          *audit.PDRWriter
	runner       *tasks.Runner
	processes    *process.Controller
	registry     *registry.Registry
	transformers *transformer.Registry
	settings     map[string]transformer.Values
	toolsHash    string
	dispatch     Dispatcher

	shutdown sync.Once
	closed   atomic.Bool
}

// New creates a workspace from its collaborators.
func New(deps Deps) *Workspace {
	dispatch := deps.Dispatch
	if dispatch == nil {
		dispatch = Immediate
	}
	settings := deps.Settings
	if settings == nil {
		settings = map[string]transformer.Values{}
	}
	return &Workspace{
		store:        deps.Store,
		pdr:          audit.NewPDRWriter(deps.Store),
		runner:       deps.Runner,
		processes:    deps.Processes,
		registry:     deps.Registry,
		transformers: deps.Transformers,
		settings:     settings,
		toolsHash:    audit.HashInputs(deps.Tools),
		dispatch:     dispatch,
	}
}

// FromConfig builds a workspace with the built-in transformers and loads
// the configured classpath. Path entries that fail to open are logged.
func FromConfig(cfg *config.Config, s *store.Store, dispatch Dispatcher) (*Workspace, error) {
	runner := tasks.New(&tasks.Config{Workers: cfg.Workers})
	procs := process.NewController(runner)

	transformers, err := transformer.NewRegistry(backends.All(cfg.Tools, procs)...)
	if err != nil {
		runner.Stop()
		return nil, err
	}

	w := New(Deps{
		Store:        s,
		Runner:       runner,
		Processes:    procs,
		Registry:     registry.New(),
		Transformers: transformers,
		Settings:     cfg.Transformers,
		Tools:        cfg.Tools,
		Dispatch:     dispatch,
	})
	if len(cfg.Path) > 0 {
		n, err := w.registry.LoadPath(cfg.Path)
		if err != nil {
			log.Printf("Classpath loaded with errors: %v", err)
		}
		log.Printf("Loaded %d classpath archives", n)
	}
	return w, nil
}

// Runner returns the background task runner.
func (w *Workspace) Runner() *tasks.Runner { return w.runner }

// Processes returns the external process controller.
func (w *Workspace) Processes() *process.Controller { return w.processes }

// --- Archive Operations ---

// Open reads the file at path and adds it to the opened archives.
func (w *Workspace) Open(path string) (*archive.Archive, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	inputs := map[string]string{"path": path}

	a, err := archive.Open(path)
	if err == nil {
		err = w.registry.Add(a)
	}
	if err != nil {
		w.pdr.Record(audit.ActionOpen, inputs, "error", filepath.Base(path), err.Error())
		return nil, err
	}

	w.pdr.Record(audit.ActionOpen, inputs, "success", a.Name, fmt.Sprintf("%d entries", a.Len()))
	return a, nil
}

// OpenAsync opens path on the task runner and delivers the outcome through
// the dispatcher.
func (w *Workspace) OpenAsync(path string, cb func(*archive.Archive, error)) (*tasks.Handle, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	return w.runner.Submit(tasks.Task{
		Label: "Opening " + filepath.Base(path),
		Work: func(ctx context.Context) error {
			a, err := w.Open(path)
			if cb != nil {
				w.dispatch(func() { cb(a, err) })
			}
			return err
		},
	}), nil
}

// Close removes an opened archive.
func (w *Workspace) Close(name string) error {
	if !w.registry.Remove(name) {
		return fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
	}
	w.pdr.Record(audit.ActionClose, map[string]string{"name": name}, "success", name, "")
	return nil
}

// Archive returns an opened archive by name.
func (w *Workspace) Archive(name string) (*archive.Archive, error) {
	a, ok := w.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
	}
	return a, nil
}

// Archives summarizes the opened archives in the order they were opened.
func (w *Workspace) Archives() []models.ArchiveSummary {
	opened := w.registry.Opened()
	out := make([]models.ArchiveSummary, len(opened))
	for i, a := range opened {
		out[i] = a.Summary()
	}
	return out
}

// Path summarizes the auxiliary classpath archives.
func (w *Workspace) Path() []models.ArchiveSummary {
	path := w.registry.Path()
	out := make([]models.ArchiveSummary, len(path))
	for i, a := range path {
		out[i] = a.Summary()
	}
	return out
}

// SetPath replaces the auxiliary classpath. Files that fail to open are
// skipped and reported in the returned error.
func (w *Workspace) SetPath(paths []string) (int, error) {
	n, err := w.registry.LoadPath(paths)
	outcome := "success"
	details := fmt.Sprintf("%d of %d archives", n, len(paths))
	if err != nil {
		outcome = "partial"
		details += ": " + err.Error()
	}
	w.pdr.Record(audit.ActionSetPath, paths, outcome, "", details)
	return n, err
}

// ResetArchive re-reads an opened archive and reparses its classes in the
// background.
func (w *Workspace) ResetArchive(name string) (*tasks.Handle, error) {
	a, err := w.Archive(name)
	if err != nil {
		return nil, err
	}
	return a.ResetInBackground(w.runner)
}

// Reset cancels every background task, kills every external process and
// forgets all archives.
func (w *Workspace) Reset() error {
	w.runner.CancelAll()
	err := w.processes.Clear()
	opened, path := len(w.registry.Opened()), len(w.registry.Path())
	w.registry.Clear()

	outcome := "success"
	details := fmt.Sprintf("%d opened, %d path archives", opened, path)
	if err != nil {
		outcome = "error"
		details += ": " + err.Error()
	}
	w.pdr.Record(audit.ActionReset, map[string]int{"opened": opened, "path": path}, outcome, "", details)
	log.Printf("Workspace reset (%s)", details)
	return err
}

// Shutdown stops background work and external processes. The store is
// left open for its owner to close.
func (w *Workspace) Shutdown() error {
	var err error
	w.shutdown.Do(func() {
		w.closed.Store(true)
		err = multierr.Append(err, w.processes.Clear())
		w.runner.Stop()
	})
	return err
}

// --- Task Operations ---

// Tasks lists pending and running background tasks.
func (w *Workspace) Tasks() []models.TaskSnapshot {
	return w.runner.Active()
}

// CancelTask cancels an active background task.
func (w *Workspace) CancelTask(id string) error {
	h, ok := w.runner.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return h.Cancel()
}

// --- History ---

// History lists recorded transformation runs.
func (w *Workspace) History(filter store.RunFilter) ([]models.TransformRun, error) {
	return w.store.ListRuns(filter)
}

// Audit lists recent audit records.
func (w *Workspace) Audit(limit int) ([]models.PDREntry, error) {
	return w.store.ListPDR(limit)
}

func className(entry string) string {
	if strings.HasSuffix(entry, archive.ClassSuffix) {
		return strings.TrimSuffix(entry, archive.ClassSuffix)
	}
	return ""
}
