package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/helios/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotCancelable is returned when cancelling a task submitted without Cancelable.
	ErrNotCancelable = errors.New("task is not cancelable")
	// ErrPanic wraps a panic recovered from a task's work function.
	ErrPanic = errors.New("task panicked")
)

// Task is a unit of background work.
type Task struct {
	// Label is shown in progress listings.
	Label string
	// Cancelable allows Cancel to interrupt the task.
	Cancelable bool
	// Blocking tasks only wait on outside resources such as a subprocess
	// and run without holding a worker slot.
	Blocking bool
	// Work runs on a worker goroutine. ctx is cancelled on Cancel or Stop.
	Work func(ctx context.Context) error
	// OnCancel runs exactly once when the task is cancelled.
	OnCancel func()
}

// ErrorHandler receives failures of task work functions.
type ErrorHandler func(label string, err error)

// Handle tracks a submitted task.
type Handle struct {
	ID    string
	Label string

	runner    *Runner
	task      Task
	seq       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	state     models.TaskState
	err       error
	submitted time.Time
	started   time.Time
	done      chan struct{}
}

// State returns the current task state.
func (h *Handle) State() models.TaskState {
	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	return h.state
}

// Err returns the failure or cancellation cause once the task is terminal.
func (h *Handle) Err() error {
	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	return h.err
}

// Done is closed once the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel is shorthand for h.runner.Cancel(h).
func (h *Handle) Cancel() error {
	return h.runner.Cancel(h)
}

func (h *Handle) snapshot() models.TaskSnapshot {
	return models.TaskSnapshot{
		ID:         h.ID,
		Label:      h.Label,
		State:      h.state,
		Cancelable: h.task.Cancelable,
		Submitted:  h.submitted,
		Started:    h.started,
	}
}

// Runner executes tasks on a bounded set of goroutines.
type Runner struct {
	config *Config
	sem    *semaphore.Weighted

	mu        sync.Mutex
	active    map[string]*Handle
	seq       uint64
	completed int
	failed    int
	cancelled int
	onError   ErrorHandler
	onChange  func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a runner. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		config:  cfg,
		sem:     semaphore.NewWeighted(int64(cfg.workerLimit())),
		active:  make(map[string]*Handle),
		onError: logError,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func logError(label string, err error) {
	log.Printf("Task %q failed: %v", label, err)
}

// SetErrorHandler replaces the process-wide failure handler.
func (r *Runner) SetErrorHandler(fn ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		fn = logError
	}
	r.onError = fn
}

// SetOnChange registers a listener invoked whenever the active set changes.
func (r *Runner) SetOnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Submit schedules task and returns immediately.
func (r *Runner) Submit(task Task) *Handle {
	ctx, cancel := context.WithCancel(r.ctx)
	h := &Handle{
		ID:        uuid.New().String(),
		Label:     task.Label,
		runner:    r,
		task:      task,
		ctx:       ctx,
		cancel:    cancel,
		state:     models.TaskStatePending,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.seq++
	h.seq = r.seq
	r.active[h.ID] = h
	r.mu.Unlock()
	r.notify()

	r.wg.Add(1)
	go r.run(h)
	return h
}

// run executes a task on its own goroutine.
func (r *Runner) run(h *Handle) {
	defer r.wg.Done()

	if !h.task.Blocking {
		if err := r.sem.Acquire(h.ctx, 1); err != nil {
			r.cancelHandle(h)
			return
		}
		defer r.sem.Release(1)
	}

	if !r.start(h) {
		return
	}

	err := r.execute(h)
	switch {
	case err == nil:
		r.finish(h, models.TaskStateCompleted, nil)
	case h.ctx.Err() != nil:
		r.cancelHandle(h)
	default:
		r.finish(h, models.TaskStateFailed, err)
	}
}

// start moves a pending task to running. It returns false when the task was
// cancelled before it got a worker.
func (r *Runner) start(h *Handle) bool {
	r.mu.Lock()
	if h.state != models.TaskStatePending || h.ctx.Err() != nil {
		r.mu.Unlock()
		r.cancelHandle(h)
		return false
	}
	h.state = models.TaskStateRunning
	h.started = time.Now()
	r.mu.Unlock()
	r.notify()
	return true
}

func (r *Runner) execute(h *Handle) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	if h.task.Work == nil {
		return nil
	}
	return h.task.Work(h.ctx)
}

// finish records a natural end of a task. A task already cancelled is left alone.
func (r *Runner) finish(h *Handle, state models.TaskState, err error) {
	r.mu.Lock()
	if h.state.Terminal() {
		r.mu.Unlock()
		return
	}
	h.state = state
	h.err = err
	delete(r.active, h.ID)
	if state == models.TaskStateFailed {
		r.failed++
	} else {
		r.completed++
	}
	onError := r.onError
	r.mu.Unlock()

	h.cancel()
	if state == models.TaskStateFailed {
		onError(h.Label, err)
	}
	close(h.done)
	r.notify()
}

// Cancel interrupts a task and runs its cancellation callback before the
// task leaves the active set. Cancelling a finished task is a no-op.
func (r *Runner) Cancel(h *Handle) error {
	if !h.task.Cancelable {
		return ErrNotCancelable
	}
	r.cancelHandle(h)
	return nil
}

func (r *Runner) cancelHandle(h *Handle) {
	r.mu.Lock()
	if h.state.Terminal() {
		r.mu.Unlock()
		return
	}
	h.state = models.TaskStateCancelled
	h.err = context.Canceled
	r.mu.Unlock()

	h.cancel()
	if h.task.OnCancel != nil {
		r.runCallback(h)
	}

	r.mu.Lock()
	delete(r.active, h.ID)
	r.cancelled++
	r.mu.Unlock()

	close(h.done)
	r.notify()
}

func (r *Runner) runCallback(h *Handle) {
	defer func() {
		if p := recover(); p != nil {
			r.mu.Lock()
			onError := r.onError
			r.mu.Unlock()
			onError(h.Label, fmt.Errorf("%w in cancel callback: %v", ErrPanic, p))
		}
	}()
	h.task.OnCancel()
}

func (r *Runner) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Get returns an active task by ID.
func (r *Runner) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[id]
	return h, ok
}

// Active returns pending and running tasks in submission order.
func (r *Runner) Active() []models.TaskSnapshot {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].seq < handles[j].seq
	})
	out := make([]models.TaskSnapshot, len(handles))
	for i, h := range handles {
		out[i] = h.snapshot()
	}
	r.mu.Unlock()
	return out
}

// CancelAll cancels every cancelable active task.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.active))
	for _, h := range r.active {
		if h.task.Cancelable {
			handles = append(handles, h)
		}
	}
	r.mu.Unlock()

	for _, h := range handles {
		r.cancelHandle(h)
	}
}

// Stop cancels all tasks and waits for their goroutines to return.
func (r *Runner) Stop() {
	r.CancelAll()
	r.cancel()
	r.wg.Wait()
	log.Println("Task runner stopped")
}

// GetStats returns current runner statistics.
func (r *Runner) GetStats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	running, pending := 0, 0
	for _, h := range r.active {
		switch h.state {
		case models.TaskStateRunning:
			running++
		case models.TaskStatePending:
			pending++
		}
	}

	return map[string]interface{}{
		"active":    len(r.active),
		"running":   running,
		"pending":   pending,
		"workers":   r.config.workerLimit(),
		"completed": r.completed,
		"failed":    r.failed,
		"cancelled": r.cancelled,
	}
}
