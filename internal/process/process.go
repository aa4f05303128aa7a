// Package process tracks external processes spawned for transformers and
// ties their lifetime to cancelable background tasks.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/helios/internal/tasks"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// waitDelay bounds how long Wait keeps copying output after the process exits.
const waitDelay = 2 * time.Second

// Command describes an external process to start.
type Command struct {
	Path  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader
	// Label is shown in the task list. Defaults to the executable base name.
	Label string
}

func (c Command) label() string {
	if c.Label != "" {
		return c.Label
	}
	return filepath.Base(c.Path) + " " + strings.Join(c.Args, " ")
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Info is a snapshot of a tracked process.
type Info struct {
	ID      string    `json:"id"`
	Label   string    `json:"label"`
	PID     int       `json:"pid"`
	TaskID  string    `json:"task_id"`
	Started time.Time `json:"started"`
}

// Process is a running external process owned by a Controller.
type Process struct {
	ID      string
	Command Command
	Started time.Time

	controller *Controller
	cmd        *exec.Cmd
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	task       *tasks.Handle

	waitOnce  sync.Once
	waitErr   error
	exited    chan struct{}
	killOnce  sync.Once
	killErr   error
	killed    atomic.Bool
	deregOnce sync.Once
	gone      bool // guarded by controller.mu
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Task returns the waiter task tracking the process.
func (p *Process) Task() *tasks.Handle {
	return p.task
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Cancel kills the process through its waiter task.
func (p *Process) Cancel() {
	if err := p.task.Cancel(); err != nil {
		p.terminate()
	}
}

// Wait blocks until the process exits. If ctx ends first the process is
// killed and ctx.Err() returned. A process killed by the controller returns
// its partial output together with ErrKilled.
func (p *Process) Wait(ctx context.Context) (*ExecResult, error) {
	select {
	case <-p.exited:
	case <-ctx.Done():
		p.Cancel()
		<-p.exited
		return p.result(), ctx.Err()
	}

	if p.killed.Load() {
		return p.result(), ErrKilled
	}
	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
		return nil, fmt.Errorf("wait %s: %w", p.Command.Path, p.waitErr)
	}
	return p.result(), nil
}

func (p *Process) result() *ExecResult {
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	return &ExecResult{
		Command:  p.Command.Path,
		Args:     p.Command.Args,
		ExitCode: code,
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
	}
}

func (p *Process) info() Info {
	return Info{
		ID:      p.ID,
		Label:   p.Command.label(),
		PID:     p.cmd.Process.Pid,
		TaskID:  p.task.ID,
		Started: p.Started,
	}
}

// reap waits for the process exactly once and deregisters it.
func (p *Process) reap() {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.deregister()
		close(p.exited)
	})
}

// terminate kills the process group, deregisters it and reaps in the background.
func (p *Process) terminate() error {
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		p.killed.Store(true)
		if err := kill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.killErr = fmt.Errorf("kill %s (pid %d): %w", p.Command.Path, p.cmd.Process.Pid, err)
		}
	})
	p.deregister()
	go p.reap()
	return p.killErr
}

func (p *Process) deregister() {
	p.deregOnce.Do(func() {
		p.controller.remove(p)
	})
}

// Controller spawns and tracks external processes.
type Controller struct {
	runner *tasks.Runner

	mu    sync.Mutex
	procs map[string]*Process
	// gen counts Clear calls; a Spawn that sees it change drops its process.
	gen uint64

	// registering, when set, runs between start and registration.
	registering func()
}

// NewController creates a controller whose waiter tasks run on runner.
func NewController(runner *tasks.Runner) *Controller {
	return &Controller{
		runner: runner,
		procs:  make(map[string]*Process),
	}
}

// Spawn starts cmd, registers it and submits a cancelable task that waits
// for it. Cancelling the task or ctx kills the process.
func (c *Controller) Spawn(ctx context.Context, command Command) (*Process, error) {
	if command.Path == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Stdin = command.Stdin
	cmd.WaitDelay = waitDelay
	configure(cmd)

	p := &Process{
		ID:         uuid.New().String(),
		Command:    command,
		controller: c,
		cmd:        cmd,
		exited:     make(chan struct{}),
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command.Path, err)
	}
	p.Started = time.Now()

	task := c.runner.Submit(tasks.Task{
		Label:      command.label(),
		Cancelable: true,
		Blocking:   true,
		Work: func(context.Context) error {
			p.reap()
			return nil
		},
		OnCancel: func() {
			if err := p.terminate(); err != nil {
				log.Printf("Failed to kill process: %v", err)
			}
		},
	})

	if c.registering != nil {
		c.registering()
	}

	c.mu.Lock()
	p.task = task
	cleared := c.gen != gen
	if !p.gone && !cleared {
		c.procs[p.ID] = p
	}
	c.mu.Unlock()

	if cleared {
		if err := p.terminate(); err != nil {
			log.Printf("Failed to kill process: %v", err)
		}
		_ = task.Cancel()
		return nil, fmt.Errorf("start %s: %w", command.Path, ErrCleared)
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.Cancel()
			case <-p.exited:
			}
		}()
	}

	return p, nil
}

// Run spawns command and waits for it.
func (c *Controller) Run(ctx context.Context, command Command) (*ExecResult, error) {
	p, err := c.Spawn(ctx, command)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

func (c *Controller) remove(p *Process) {
	c.mu.Lock()
	p.gone = true
	delete(c.procs, p.ID)
	c.mu.Unlock()
}

// Clear kills every tracked process. When it returns the tracked set is
// empty, and processes still starting are killed by their Spawn; kill
// failures are combined into the returned error.
func (c *Controller) Clear() error {
	c.mu.Lock()
	c.gen++
	procs := make([]*Process, 0, len(c.procs))
	handles := make([]*tasks.Handle, 0, len(c.procs))
	for _, p := range c.procs {
		procs = append(procs, p)
		handles = append(handles, p.task)
	}
	c.mu.Unlock()

	var err error
	for i, p := range procs {
		err = multierr.Append(err, p.terminate())
		_ = handles[i].Cancel()
	}

	if len(procs) > 0 {
		log.Printf("Cleared %d external processes", len(procs))
	}
	return err
}

// Tracked returns the live processes ordered by start time.
func (c *Controller) Tracked() []Info {
	c.mu.Lock()
	out := make([]Info, 0, len(c.procs))
	for _, p := range c.procs {
		out = append(out, p.info())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Len returns the number of tracked processes.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}
