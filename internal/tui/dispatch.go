package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Dispatcher queues callbacks from background tasks and hands them to the
// bubbletea event loop, so they run on the goroutine that owns the model.
// Dispatch never blocks.
type Dispatcher struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1)}
}

// Dispatch queues fn to run inside Update.
func (d *Dispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// wait returns a command that blocks until callbacks are queued and
// delivers all of them, in order, as one message.
func (d *Dispatcher) wait() tea.Cmd {
	return func() tea.Msg {
		for {
			d.mu.Lock()
			if len(d.queue) > 0 {
				q := d.queue
				d.queue = nil
				d.mu.Unlock()
				return dispatchMsg(q)
			}
			d.mu.Unlock()
			<-d.wake
		}
	}
}

type dispatchMsg []func()
