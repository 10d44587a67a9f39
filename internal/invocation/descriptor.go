package invocation

import (
	"maps"
	"slices"
	"time"

	"github.com/seantiz/courier/internal/status"
)

// Handler signatures. Every handler runs on the foreground.
type (
	// StartHandler is called with the invocation name before the call.
	StartHandler func(name string)

	// SuccessHandler receives the response body, or the zero value for
	// 204 No Content.
	SuccessHandler[T any] func(value T)

	// DetailedSuccessHandler receives the full successful response.
	DetailedSuccessHandler[T any] func(resp Response[T])

	// StatusHandler receives the failure message for one known status code.
	StatusHandler func(name, message string)

	// AnyStatusHandler receives the known status code of a failed call.
	AnyStatusHandler func(name string, code status.Code)

	// FailureHandler receives the failure message of a call whose status
	// code is not in the known set.
	FailureHandler func(name, message string)

	// DetailedFailureHandler receives the full response of a call whose
	// status code is not in the known set.
	DetailedFailureHandler[T any] func(name string, resp Response[T])

	// ExceptionHandler receives the error returned or raised by the supplier.
	ExceptionHandler func(name string, err error)

	// FinallyHandler runs after every invocation, whatever its outcome.
	FinallyHandler func()
)

// handlers is the handler table of a descriptor. Resolution between a
// specific handler and its default is done by the accessor methods.
type handlers[T any] struct {
	onStart        StartHandler
	onStartDefault StartHandler

	onSuccess         SuccessHandler[T]
	onSuccessDetailed DetailedSuccessHandler[T]

	onStatusCode           map[status.Code]StatusHandler
	onStatusCodeDefault    map[status.Code]StatusHandler
	onAnyStatusCode        AnyStatusHandler
	onAnyStatusCodeDefault AnyStatusHandler

	onFailure                FailureHandler
	onFailureDefault         FailureHandler
	onFailureDetailed        DetailedFailureHandler[T]
	onFailureDetailedDefault DetailedFailureHandler[T]

	onException        ExceptionHandler
	onExceptionDefault ExceptionHandler

	onFinally        FinallyHandler
	onFinallyDefault FinallyHandler
}

func (h handlers[T]) clone() handlers[T] {
	c := h
	c.onStatusCode = maps.Clone(h.onStatusCode)
	c.onStatusCodeDefault = maps.Clone(h.onStatusCodeDefault)
	return c
}

func (h handlers[T]) exception() ExceptionHandler {
	if h.onException != nil {
		return h.onException
	}
	return h.onExceptionDefault
}

func (h handlers[T]) failure() FailureHandler {
	if h.onFailure != nil {
		return h.onFailure
	}
	return h.onFailureDefault
}

func (h handlers[T]) failureDetailed() DetailedFailureHandler[T] {
	if h.onFailureDetailed != nil {
		return h.onFailureDetailed
	}
	return h.onFailureDetailedDefault
}

func (h handlers[T]) statusCode(code status.Code) StatusHandler {
	if handler, ok := h.onStatusCode[code]; ok {
		return handler
	}
	return h.onStatusCodeDefault[code]
}

func (h handlers[T]) anyStatusCode() AnyStatusHandler {
	if h.onAnyStatusCode != nil {
		return h.onAnyStatusCode
	}
	return h.onAnyStatusCodeDefault
}

// Observer receives the lifecycle notices of an invocation independently of
// its handler table: it never replaces a handler and is never replaced by one.
// Observers run on the foreground before the handlers of the same phase. Nil
// fields are skipped.
type Observer[T any] struct {
	Start     StartHandler
	Exception ExceptionHandler
	Status    AnyStatusHandler
	Failure   DetailedFailureHandler[T]
	Finally   FinallyHandler
}

// Descriptor configures a service call. Configuration methods return the
// descriptor itself for chaining and panic with an error wrapping
// ErrInvalidArgument when given an invalid argument. A Descriptor is not safe
// for concurrent configuration; Execute takes a snapshot, so reconfiguring a
// descriptor never affects invocations that were already created from it.
type Descriptor[T any] struct {
	name            string
	supplier        Supplier[T]
	delay           time.Duration
	simulateFailure bool
	handlers        handlers[T]
	observers       []Observer[T]
}

// New creates a descriptor for the call performed by supplier.
func New[T any](name string, supplier Supplier[T]) *Descriptor[T] {
	if name == "" {
		panic(invalidArgument("invocation name must not be empty"))
	}
	if supplier == nil {
		panic(invalidArgument("supplier must not be nil"))
	}
	return &Descriptor[T]{name: name, supplier: supplier}
}

// Clone returns an independent copy of d. Handlers registered on the copy do
// not affect d.
func (d *Descriptor[T]) Clone() *Descriptor[T] {
	c := *d
	c.handlers = d.handlers.clone()
	c.observers = slices.Clone(d.observers)
	return &c
}

// Name returns the name of the call.
func (d *Descriptor[T]) Name() string {
	return d.name
}

// Delay returns the configured artificial delay.
func (d *Descriptor[T]) Delay() time.Duration {
	return d.delay
}

// IsSimulatingFailure reports whether failure simulation is enabled.
func (d *Descriptor[T]) IsSimulatingFailure() bool {
	return d.simulateFailure
}

// WithDelay makes the worker sleep for delay before performing the call.
func (d *Descriptor[T]) WithDelay(delay time.Duration) *Descriptor[T] {
	if delay < 0 {
		panic(invalidArgument("delay can not be negative but was %v", delay))
	}
	d.delay = delay
	return d
}

// WithSimulatingFailure routes successful responses through the failure
// path with SimulatedFailureMessage. The response itself is not altered.
func (d *Descriptor[T]) WithSimulatingFailure(simulate bool) *Descriptor[T] {
	d.simulateFailure = simulate
	return d
}

// OnStart registers the start handler.
func (d *Descriptor[T]) OnStart(h StartHandler) *Descriptor[T] {
	mustHandler(h != nil, "on start")
	d.handlers.onStart = h
	return d
}

// OnStartDefault registers the default start handler. Unlike other defaults
// it runs in addition to, and before, the specific start handler.
func (d *Descriptor[T]) OnStartDefault(h StartHandler) *Descriptor[T] {
	mustHandler(h != nil, "on start default")
	d.handlers.onStartDefault = h
	return d
}

// OnSuccess registers the value success handler. It takes precedence over
// OnSuccessDetailed.
func (d *Descriptor[T]) OnSuccess(h SuccessHandler[T]) *Descriptor[T] {
	mustHandler(h != nil, "on success")
	d.handlers.onSuccess = h
	return d
}

// OnSuccessDetailed registers the full-response success handler.
func (d *Descriptor[T]) OnSuccessDetailed(h DetailedSuccessHandler[T]) *Descriptor[T] {
	mustHandler(h != nil, "on success detailed")
	d.handlers.onSuccessDetailed = h
	return d
}

// OnStatusCode registers a handler for failures with the given status code.
// Handlers accumulate per code.
func (d *Descriptor[T]) OnStatusCode(code status.Code, h StatusHandler) *Descriptor[T] {
	mustKnownCode(code)
	mustHandler(h != nil, "on status code")
	if d.handlers.onStatusCode == nil {
		d.handlers.onStatusCode = make(map[status.Code]StatusHandler)
	}
	d.handlers.onStatusCode[code] = h
	return d
}

// OnStatusCodeDefault registers a default handler for failures with the
// given status code.
func (d *Descriptor[T]) OnStatusCodeDefault(code status.Code, h StatusHandler) *Descriptor[T] {
	mustKnownCode(code)
	mustHandler(h != nil, "on status code default")
	if d.handlers.onStatusCodeDefault == nil {
		d.handlers.onStatusCodeDefault = make(map[status.Code]StatusHandler)
	}
	d.handlers.onStatusCodeDefault[code] = h
	return d
}

// OnAnyStatusCode registers the handler for failures with a known status
// code that has no code-specific handler.
func (d *Descriptor[T]) OnAnyStatusCode(h AnyStatusHandler) *Descriptor[T] {
	mustHandler(h != nil, "on any status code")
	d.handlers.onAnyStatusCode = h
	return d
}

// OnAnyStatusCodeDefault registers the default any-status-code handler.
func (d *Descriptor[T]) OnAnyStatusCodeDefault(h AnyStatusHandler) *Descriptor[T] {
	mustHandler(h != nil, "on any status code default")
	d.handlers.onAnyStatusCodeDefault = h
	return d
}

// OnFailure registers the message handler for failures with an unknown
// status code. It takes precedence over the detailed failure handlers.
func (d *Descriptor[T]) OnFailure(h FailureHandler) *Descriptor[T] {
	mustHandler(h != nil, "on failure")
	d.handlers.onFailure = h
	return d
}

// OnFailureDefault registers the default failure message handler.
func (d *Descriptor[T]) OnFailureDefault(h FailureHandler) *Descriptor[T] {
	mustHandler(h != nil, "on failure default")
	d.handlers.onFailureDefault = h
	return d
}

// OnFailureDetailed registers the full-response handler for failures with
// an unknown status code.
func (d *Descriptor[T]) OnFailureDetailed(h DetailedFailureHandler[T]) *Descriptor[T] {
	mustHandler(h != nil, "on failure detailed")
	d.handlers.onFailureDetailed = h
	return d
}

// OnFailureDetailedDefault registers the default full-response failure
// handler.
func (d *Descriptor[T]) OnFailureDetailedDefault(h DetailedFailureHandler[T]) *Descriptor[T] {
	mustHandler(h != nil, "on failure detailed default")
	d.handlers.onFailureDetailedDefault = h
	return d
}

// OnException registers the handler for errors returned or raised by the
// supplier.
func (d *Descriptor[T]) OnException(h ExceptionHandler) *Descriptor[T] {
	mustHandler(h != nil, "on exception")
	d.handlers.onException = h
	return d
}

// OnExceptionDefault registers the default exception handler.
func (d *Descriptor[T]) OnExceptionDefault(h ExceptionHandler) *Descriptor[T] {
	mustHandler(h != nil, "on exception default")
	d.handlers.onExceptionDefault = h
	return d
}

// OnFinally registers the handler that runs after every outcome.
func (d *Descriptor[T]) OnFinally(h FinallyHandler) *Descriptor[T] {
	mustHandler(h != nil, "on finally")
	d.handlers.onFinally = h
	return d
}

// OnFinallyDefault registers the default finally handler. It runs in
// addition to, and before, the specific finally handler.
func (d *Descriptor[T]) OnFinallyDefault(h FinallyHandler) *Descriptor[T] {
	mustHandler(h != nil, "on finally default")
	d.handlers.onFinallyDefault = h
	return d
}

// Observe adds an observer. Observers accumulate and run in the order they
// were added.
func (d *Descriptor[T]) Observe(o Observer[T]) *Descriptor[T] {
	d.observers = append(d.observers, o)
	return d
}

// Prepare creates an invocation in the READY state without starting it, so
// that watchers can be attached before Start.
func (d *Descriptor[T]) Prepare(host *Host) *Invocation[T] {
	if host == nil {
		panic(invalidArgument("host must not be nil"))
	}
	return d.prepare(host, host.executor)
}

// Execute starts the call on the host's executor and returns the running
// invocation.
func (d *Descriptor[T]) Execute(host *Host) *Invocation[T] {
	inv := d.Prepare(host)
	inv.Start()
	return inv
}

// ExecuteOn starts the call on executor instead of the host's executor.
func (d *Descriptor[T]) ExecuteOn(host *Host, executor Executor) *Invocation[T] {
	if host == nil {
		panic(invalidArgument("host must not be nil"))
	}
	if executor == nil {
		panic(invalidArgument("executor must not be nil"))
	}
	inv := d.prepare(host, executor)
	inv.Start()
	return inv
}

func mustHandler(ok bool, slot string) {
	if !ok {
		panic(invalidArgument("%s handler must not be nil", slot))
	}
}

func mustKnownCode(code status.Code) {
	if _, ok := status.FromCode(int(code)); !ok {
		panic(invalidArgument("unknown status code %d", int(code)))
	}
}
