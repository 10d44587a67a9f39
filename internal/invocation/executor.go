package invocation

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Executor runs background work.
type Executor interface {
	// Go runs task asynchronously and returns without waiting for it.
	Go(task func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func())

// Go calls f(task).
func (f ExecutorFunc) Go(task func()) {
	f(task)
}

// Goroutines runs every task in its own goroutine. It is the default
// executor of a Host.
var Goroutines Executor = ExecutorFunc(func(task func()) {
	go task()
})

// BoundedExecutor runs tasks in their own goroutines but lets at most n of
// them run at once. Excess tasks wait, in no particular order, for a slot.
type BoundedExecutor struct {
	sem *semaphore.Weighted
}

// NewBoundedExecutor creates an executor admitting n concurrent tasks. It
// panics if n is not positive.
func NewBoundedExecutor(n int64) *BoundedExecutor {
	if n <= 0 {
		panic(invalidArgument("executor limit must be positive but was %d", n))
	}
	return &BoundedExecutor{sem: semaphore.NewWeighted(n)}
}

// Go schedules task without blocking the caller.
func (b *BoundedExecutor) Go(task func()) {
	go func() {
		// Acquire only fails when its context is done.
		_ = b.sem.Acquire(context.Background(), 1)
		defer b.sem.Release(1)
		task()
	}()
}
