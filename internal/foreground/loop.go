package foreground

import (
	"context"
	"log/slog"
	"sync"
)

// Compile-time interface satisfaction check.
var _ Dispatcher = (*Loop)(nil)

// Loop is a Dispatcher backed by one goroutine. Actions run strictly in the
// order they were submitted. It is safe for concurrent use.
type Loop struct {
	q      *queue
	logger *slog.Logger

	mu         sync.Mutex
	started    bool
	exited     chan struct{}
	exitedOnce sync.Once
}

// NewLoop creates a loop. Call Start or Run to begin executing actions.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		q:      newQueue(),
		logger: logger,
		exited: make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine until ctx is done or Stop is called.
// The loop counts as started once Start returns.
func (l *Loop) Start(ctx context.Context) {
	if l.claim() {
		go l.run(ctx)
	}
}

// Run executes actions on the calling goroutine until ctx is done or Stop is
// called, then drains every action that was accepted before stopping.
// Run returns immediately if the loop was already started or stopped.
func (l *Loop) Run(ctx context.Context) {
	if l.claim() {
		l.run(ctx)
	}
}

// claim marks the loop as started. It fails when the loop already runs or
// has already exited.
func (l *Loop) claim() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.q.drained() {
		return false
	}
	select {
	case <-l.exited:
		return false
	default:
	}
	l.started = true
	return true
}

func (l *Loop) run(ctx context.Context) {
	defer l.markExited()

	for {
		select {
		case <-l.q.wake:
		case <-l.q.stopCh:
		case <-ctx.Done():
			l.q.stop()
		}

		for _, action := range l.q.take() {
			if err := protect(action); err != nil {
				l.logger.Error("foreground action failed", "error", err)
			}
		}

		if l.q.drained() {
			return
		}
	}
}

// Stop rejects further actions. A running loop finishes the actions already
// queued; Stop blocks until it has done so and must therefore not be called
// from a foreground action.
func (l *Loop) Stop() {
	l.q.stop()

	l.mu.Lock()
	started := l.started
	if !started {
		l.markExited()
	}
	l.mu.Unlock()

	if started {
		<-l.exited
	}
}

// Done returns a channel that is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.exited
}

// Post schedules action. Actions posted after Stop are dropped with a warning.
func (l *Loop) Post(action func()) {
	if !l.q.push(action) {
		l.logger.Warn("foreground loop stopped, dropping action")
	}
}

// RunAndWait schedules action and blocks until it has run.
func (l *Loop) RunAndWait(action func()) error {
	return awaitRendezvous(l.q, l.exited, action)
}

func (l *Loop) markExited() {
	l.exitedOnce.Do(func() { close(l.exited) })
}
