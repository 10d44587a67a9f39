package invocation

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/seantiz/courier/internal/observable"
	"github.com/seantiz/courier/internal/status"
)

// Messages published on the Message cell.
const (
	MessageCalling      = "Calling service"
	MessageSucceeded    = "Call was successful"
	MessageUnsuccessful = "Call was not successful"
	MessageServerError  = "Server-side error"
)

// Invocation is one execution of a Descriptor. Its observable cells are
// written only on the foreground; reading them elsewhere is safe but only
// guaranteed to be consistent once the Future has settled.
type Invocation[T any] struct {
	name            string
	supplier        Supplier[T]
	delay           time.Duration
	simulateFailure bool
	handlers        handlers[T]
	observers       []Observer[T]

	host     *Host
	executor Executor
	logger   *slog.Logger

	state     *observable.Value[State]
	value     *observable.Value[T]
	err       *observable.Value[error]
	code      *observable.Value[int]
	workDone  *observable.Value[float64]
	totalWork *observable.Value[float64]
	progress  *observable.Value[float64]
	running   *observable.Value[bool]
	message   *observable.Value[string]
	title     *observable.Value[string]

	started   atomic.Bool
	cancelled atomic.Bool
	concluded atomic.Bool
	future    *Future[T]
}

func (d *Descriptor[T]) prepare(host *Host, executor Executor) *Invocation[T] {
	var zero T
	return &Invocation[T]{
		name:            d.name,
		supplier:        d.supplier,
		delay:           d.delay,
		simulateFailure: d.simulateFailure,
		handlers:        d.handlers.clone(),
		observers:       slices.Clone(d.observers),
		host:            host,
		executor:        executor,
		logger:          host.logger.With("name", d.name),
		state:           observable.NewValue(Ready),
		value:           observable.NewValue(zero),
		err:             observable.NewValue[error](nil),
		code:            observable.NewValue(0),
		workDone:        observable.NewValue(-1.0),
		totalWork:       observable.NewValue(-1.0),
		progress:        observable.NewValue(-1.0),
		running:         observable.NewValue(false),
		message:         observable.NewValue(""),
		title:           observable.NewValue(d.name),
		future:          newFuture[T](),
	}
}

// Start moves the invocation to RUNNING on the calling goroutine and hands
// the call to the executor. Watchers attached before Start are notified on
// the calling goroutine for these first updates, so Start should be called
// from the foreground when watchers are attached. An invocation runs once:
// later calls only log a warning and return the same future.
func (inv *Invocation[T]) Start() *Future[T] {
	if !inv.started.CompareAndSwap(false, true) {
		inv.logger.Warn("invocation already started, ignoring restart")
		return inv.future
	}

	inv.state.Set(Running)
	inv.totalWork.Set(1)
	inv.workDone.Set(0)
	inv.running.Set(true)
	inv.progress.Set(0)

	inv.executor.Go(inv.run)
	return inv.future
}

// Name returns the descriptor name.
func (inv *Invocation[T]) Name() string { return inv.name }

// Future returns the future of the invocation.
func (inv *Invocation[T]) Future() *Future[T] { return inv.future }

// State returns the lifecycle state cell.
func (inv *Invocation[T]) State() observable.Cell[State] { return inv.state.ReadOnly() }

// Value returns the cell holding the successful result.
func (inv *Invocation[T]) Value() observable.Cell[T] { return inv.value.ReadOnly() }

// Err returns the cell holding the error of a failed invocation.
func (inv *Invocation[T]) Err() observable.Cell[error] { return inv.err.ReadOnly() }

// StatusCode returns the cell holding the status code of the response, or 0
// while none has been received. It stays 0 when the supplier fails.
func (inv *Invocation[T]) StatusCode() observable.Cell[int] { return inv.code.ReadOnly() }

// WorkDone returns the cell holding completed work units.
func (inv *Invocation[T]) WorkDone() observable.Cell[float64] { return inv.workDone.ReadOnly() }

// TotalWork returns the cell holding total work units.
func (inv *Invocation[T]) TotalWork() observable.Cell[float64] { return inv.totalWork.ReadOnly() }

// Progress returns the progress cell: -1 before start, 0 while running, 1 once done.
func (inv *Invocation[T]) Progress() observable.Cell[float64] { return inv.progress.ReadOnly() }

// Running returns the cell that is true while the invocation is in flight.
func (inv *Invocation[T]) Running() observable.Cell[bool] { return inv.running.ReadOnly() }

// Message returns the human readable status message cell.
func (inv *Invocation[T]) Message() observable.Cell[string] { return inv.message.ReadOnly() }

// Title returns the title cell, which holds the invocation name.
func (inv *Invocation[T]) Title() observable.Cell[string] { return inv.title.ReadOnly() }

// Cancel marks the invocation as no longer wanted and returns true. It does
// not interrupt the call, suppress any handler, or alter the future; callers
// consult IsCancelled to decide whether to use the result.
func (inv *Invocation[T]) Cancel() bool {
	inv.cancelled.Store(true)
	return true
}

// IsCancelled reports whether Cancel has been called.
func (inv *Invocation[T]) IsCancelled() bool {
	return inv.cancelled.Load()
}

// run is the worker side of the invocation.
func (inv *Invocation[T]) run() {
	value, err := inv.process()
	inv.finish()
	inv.future.settle(value, err)
}

// process performs the call and dispatches the outcome handler. Its error is
// the future's error; handler failures never reach it. A panic raised while
// the response is classified fails the invocation like a supplier error.
func (inv *Invocation[T]) process() (value T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var zero T
		perr := &PanicError{Origin: PanicInResponse, Value: r, Stack: debug.Stack()}
		value, err = zero, perr
		if inv.concluded.Load() {
			inv.logger.Error("invocation aborted by panic after its outcome was published", "error", perr)
			return
		}
		err = inv.exception(perr)
	}()

	inv.notifyStart()

	inv.logger.Debug("executing service invocation")
	if inv.delay > 0 {
		inv.logger.Debug("delaying service call", "delay_ms", inv.delay.Milliseconds())
		time.Sleep(inv.delay)
	}

	inv.host.dispatcher.Post(func() { inv.message.Set(MessageCalling) })

	start := time.Now()
	resp, err := inv.call()
	inv.logger.Info("server side call duration", "duration_ms", time.Since(start).Milliseconds())

	var zero T
	if err != nil {
		return zero, inv.exception(err)
	}

	if resp.Successful() && !inv.simulateFailure {
		return inv.success(resp), nil
	}

	// The payload can be read only once.
	payload, err := resp.ErrorPayload()
	if err != nil {
		return zero, inv.exception(fmt.Errorf("read error payload: %w", err))
	}
	return zero, inv.failure(resp, payload)
}

// call invokes the supplier, converting a panic or a nil response into an
// error.
func (inv *Invocation[T]) call() (resp Response[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, &PanicError{Origin: PanicInSupplier, Value: r, Stack: debug.Stack()}
		}
	}()

	resp, err = inv.supplier()
	if err == nil && resp == nil {
		err = ErrNilResponse
	}
	return resp, err
}

func (inv *Invocation[T]) notifyStart() {
	for _, o := range inv.observers {
		if o.Start != nil {
			inv.dispatch("observer start", func() { o.Start(inv.name) })
		}
	}
	if h := inv.handlers.onStartDefault; h != nil {
		inv.dispatch("on start default", func() { h(inv.name) })
	}
	if h := inv.handlers.onStart; h != nil {
		inv.dispatch("on start", func() { h(inv.name) })
	}
}

func (inv *Invocation[T]) exception(err error) error {
	inv.logger.Error("error when trying to invoke the service", "error", err)

	inv.concluded.Store(true)
	inv.dispatch("state", func() {
		inv.err.Set(err)
		inv.message.Set(MessageServerError)
		inv.state.Set(Failed)
	})

	for _, o := range inv.observers {
		if o.Exception != nil {
			inv.dispatch("observer exception", func() { o.Exception(inv.name, err) })
		}
	}
	if h := inv.handlers.exception(); h != nil {
		inv.dispatch("on exception", func() { h(inv.name, err) })
	}
	return err
}

func (inv *Invocation[T]) success(resp Response[T]) T {
	var value T
	code := resp.StatusCode()
	if code != status.NoContent.Int() {
		value = resp.Body()
	}

	inv.concluded.Store(true)
	inv.dispatch("state", func() {
		inv.value.Set(value)
		inv.code.Set(code)
		inv.message.Set(MessageSucceeded)
		inv.state.Set(Succeeded)
	})

	if h := inv.handlers.onSuccess; h != nil {
		inv.dispatch("on success", func() { h(value) })
	} else if h := inv.handlers.onSuccessDetailed; h != nil {
		inv.dispatch("on success detailed", func() { h(resp) })
	}
	return value
}

func (inv *Invocation[T]) failure(resp Response[T], payload string) error {
	code := resp.StatusCode()
	known, isKnown := status.FromCode(code)

	fallback := fmt.Sprintf("Unknown status code %d", code)
	if isKnown {
		fallback = known.ReasonPhrase()
	}
	failErr := &FailureError{
		Name:       inv.name,
		StatusCode: code,
		Message:    inv.failureMessage(payload, fallback),
		Simulated:  inv.simulateFailure,
	}
	msg := failErr.Message

	inv.logger.Error("service call was not successful",
		"status_code", code,
		"message", msg,
		"simulated", inv.simulateFailure,
	)

	inv.concluded.Store(true)
	inv.dispatch("state", func() {
		inv.err.Set(failErr)
		inv.code.Set(code)
		inv.message.Set(MessageUnsuccessful)
		inv.state.Set(Failed)
	})

	if isKnown {
		for _, o := range inv.observers {
			if o.Status != nil {
				inv.dispatch("observer status", func() { o.Status(inv.name, known) })
			}
		}
		if h := inv.handlers.statusCode(known); h != nil {
			inv.dispatch("on status code", func() { h(inv.name, msg) })
		} else if h := inv.handlers.anyStatusCode(); h != nil {
			inv.dispatch("on any status code", func() { h(inv.name, known) })
		}
		return failErr
	}

	for _, o := range inv.observers {
		if o.Failure != nil {
			inv.dispatch("observer failure", func() { o.Failure(inv.name, resp) })
		}
	}
	if h := inv.handlers.failure(); h != nil {
		inv.dispatch("on failure", func() { h(inv.name, msg) })
	} else if h := inv.handlers.failureDetailed(); h != nil {
		inv.dispatch("on failure detailed", func() { h(inv.name, resp) })
	}
	return failErr
}

func (inv *Invocation[T]) failureMessage(payload, fallback string) string {
	switch {
	case inv.simulateFailure:
		return SimulatedFailureMessage
	case strings.TrimSpace(payload) != "":
		return payload
	default:
		return fallback
	}
}

// finish runs the completion phase. Each finally handler is guarded on its
// own so that a failing default never suppresses the specific handler.
func (inv *Invocation[T]) finish() {
	inv.dispatch("state", func() {
		inv.running.Set(false)
		inv.workDone.Set(1)
		inv.progress.Set(1)
	})

	for _, o := range inv.observers {
		if o.Finally != nil {
			inv.dispatch("observer finally", o.Finally)
		}
	}

	if h := inv.handlers.onFinallyDefault; h != nil {
		inv.dispatch("on finally default", h)
	}
	if h := inv.handlers.onFinally; h != nil {
		inv.dispatch("on finally", h)
	}
}

// dispatch runs action on the foreground and waits for it. A failing action
// is logged and otherwise ignored.
func (inv *Invocation[T]) dispatch(what string, action func()) {
	inv.logger.Debug("dispatching to foreground", "handler", what)
	if err := inv.host.dispatcher.RunAndWait(action); err != nil {
		inv.logger.Error("foreground handler failed", "handler", what, "error", err)
	}
}
