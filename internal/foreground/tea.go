package foreground

import (
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Compile-time interface satisfaction check.
var _ Dispatcher = (*TeaDispatcher)(nil)

// actionMsg carries a foreground action into a bubbletea program.
type actionMsg struct {
	run func()
}

// HandleMsg runs msg if it carries a foreground action and reports whether it
// did. A model's Update must call HandleMsg first for every message so that
// dispatched actions execute on the program's event loop:
//
//	func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
//	    if foreground.HandleMsg(msg) {
//	        return m, nil
//	    }
//	    ...
//	}
func HandleMsg(msg tea.Msg) bool {
	a, ok := msg.(actionMsg)
	if !ok {
		return false
	}
	a.run()
	return true
}

// TeaDispatcher is a Dispatcher whose foreground is a bubbletea program's
// Update loop. Actions are handed to the program one at a time by a pump
// goroutine, which keeps them in submission order.
type TeaDispatcher struct {
	q      *queue
	send   func(tea.Msg)
	logger *slog.Logger

	exited   chan struct{}
	stopOnce sync.Once
}

// NewTeaDispatcher starts a dispatcher that sends actions to p. Call Stop
// once p.Run has returned.
func NewTeaDispatcher(p *tea.Program, logger *slog.Logger) *TeaDispatcher {
	return newTeaDispatcher(p.Send, logger)
}

func newTeaDispatcher(send func(tea.Msg), logger *slog.Logger) *TeaDispatcher {
	d := &TeaDispatcher{
		q:      newQueue(),
		send:   send,
		logger: logger,
		exited: make(chan struct{}),
	}
	go d.pump()
	return d
}

func (d *TeaDispatcher) pump() {
	for {
		select {
		case <-d.q.wake:
		case <-d.q.stopCh:
			return
		}

		for _, action := range d.q.take() {
			run := action
			d.send(actionMsg{run: func() {
				if err := protect(run); err != nil {
					d.logger.Error("foreground action failed", "error", err)
				}
			}})
		}
	}
}

// Post schedules action on the program's event loop.
func (d *TeaDispatcher) Post(action func()) {
	if !d.q.push(action) {
		d.logger.Warn("tea dispatcher stopped, dropping action")
	}
}

// RunAndWait schedules action on the program's event loop and blocks until it
// has run, or until Stop is called.
func (d *TeaDispatcher) RunAndWait(action func()) error {
	return awaitRendezvous(d.q, d.exited, action)
}

// Stop releases every pending RunAndWait caller with ErrStopped and drops
// queued actions. After the program has exited nothing would run them.
func (d *TeaDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.q.stop()
		close(d.exited)
	})
}
