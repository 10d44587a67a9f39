package foreground

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrStopped is returned by RunAndWait once the dispatcher no longer accepts
// or executes actions.
var ErrStopped = errors.New("foreground dispatcher stopped")

// Dispatcher schedules actions onto the foreground context.
type Dispatcher interface {
	// Post schedules action for in-order execution and returns immediately.
	// A panic in action is recovered and logged by the dispatcher.
	Post(action func())

	// RunAndWait schedules action and blocks until it has run. A panic in
	// action is recovered and returned as a *PanicError. Calling RunAndWait
	// from inside a foreground action deadlocks.
	RunAndWait(action func()) error
}

// PanicError carries a panic recovered from a foreground action.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("foreground action panicked: %v", e.Value)
}

// protect runs action and converts a panic into a *PanicError.
func protect(action func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	action()
	return nil
}

// queue is an unbounded FIFO of pending actions. push never blocks, so
// posting from a worker can never stall on a busy foreground.
type queue struct {
	mu      sync.Mutex
	items   []func()
	stopped bool
	wake    chan struct{}
	stopCh  chan struct{}
}

func newQueue() *queue {
	return &queue{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// push appends fn and reports whether it was accepted.
func (q *queue) push(fn func()) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns every pending action.
func (q *queue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// drained reports whether the queue is stopped and empty.
func (q *queue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped && len(q.items) == 0
}

// stop rejects further pushes. It is idempotent.
func (q *queue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	close(q.stopCh)
}

// awaitRendezvous pushes action and waits for it to run or for exited to
// close. A result that raced with exit still wins.
func awaitRendezvous(q *queue, exited <-chan struct{}, action func()) error {
	done := make(chan error, 1)
	if !q.push(func() { done <- protect(action) }) {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-exited:
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	}
}
