package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/courier/internal/invocation"
	"github.com/seantiz/courier/internal/model"
	"github.com/seantiz/courier/internal/status"
	"github.com/seantiz/courier/internal/store"
)

// ErrNotInFlight is returned by Cancel for invocations that are unknown or
// have already settled.
var ErrNotInFlight = errors.New("invocation is not in flight")

// Engine executes service invocations on a shared host and records their
// history.
type Engine struct {
	store  store.Store
	host   *invocation.Host
	logger *slog.Logger
	broker *EventBroker
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]*tracked
}

// tracked is the engine's handle on an unsettled invocation.
type tracked struct {
	cancel   func() bool
	recorder *recorder
}

// NewEngine creates an engine that runs invocations on host.
func NewEngine(s store.Store, host *invocation.Host, logger *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		host:     host,
		logger:   logger,
		broker:   NewEventBroker(logger),
		inFlight: make(map[string]*tracked),
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Wait blocks until every submitted invocation has settled and its outcome
// has been persisted.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// InFlight returns the number of invocations that have not settled yet.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inFlight)
}

// Cancel marks an in-flight invocation as cancelled. Cancellation is
// advisory: the call still completes and its handlers still run.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	t, ok := e.inFlight[id]
	e.mu.Unlock()
	if !ok {
		return ErrNotInFlight
	}

	t.cancel()
	t.recorder.record(model.EventCancel, "")
	e.logger.Info("invocation cancelled", "invocation_id", id)
	return nil
}

// SubmitOption customizes the history record of a submission.
type SubmitOption func(*model.Invocation)

// WithTarget records the address the invocation calls.
func WithTarget(target string) SubmitOption {
	return func(rec *model.Invocation) {
		rec.Target = target
	}
}

// Submission is an invocation started by the engine.
type Submission[T any] struct {
	ID         string
	Invocation *invocation.Invocation[T]
}

// Submit records and starts an invocation of d. The engine observes a copy of
// d, so every handler registered by the caller, defaults included, runs as
// configured and d itself is left untouched.
//
// The invocation is stored as running before Submit returns. Its outcome is
// persisted asynchronously once its future settles; use Wait to block on it.
func Submit[T any](ctx context.Context, e *Engine, d *invocation.Descriptor[T], opts ...SubmitOption) (*Submission[T], error) {
	rec := &model.Invocation{
		ID:        model.NewID(),
		Name:      d.Name(),
		Status:    model.StatusReady,
		DelayMS:   int(d.Delay().Milliseconds()),
		Simulated: d.IsSimulatingFailure(),
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(rec)
	}
	id := rec.ID

	if err := e.store.CreateInvocation(ctx, rec); err != nil {
		return nil, fmt.Errorf("create invocation: %w", err)
	}

	logger := e.logger.With("invocation_id", id)
	r := &recorder{id: id, store: e.store, broker: e.broker, logger: logger}

	d = d.Clone().Observe(observer[T](r))

	inv := d.Prepare(e.host.WithLogger(logger))
	inv.State().Watch(func(_, s invocation.State) { r.record(model.EventState, s.String()) })
	inv.Message().Watch(func(_, m string) { r.record(model.EventMessage, m) })

	if err := e.store.UpdateInvocationStatus(ctx, id, model.StatusRunning); err != nil {
		e.broker.Close(id)
		return nil, fmt.Errorf("mark invocation running: %w", err)
	}

	e.mu.Lock()
	e.inFlight[id] = &tracked{cancel: inv.Cancel, recorder: r}
	e.mu.Unlock()

	invocationsInFlight.Inc()
	logger.Debug("submitting invocation", "name", rec.Name, "target", rec.Target)

	start := time.Now()
	inv.Start()
	e.wg.Go(func() {
		settle(e, id, inv, start)
	})

	return &Submission[T]{ID: id, Invocation: inv}, nil
}

// Run submits d and waits for its result. Giving up on ctx does not stop the
// invocation.
func Run[T any](ctx context.Context, e *Engine, d *invocation.Descriptor[T], opts ...SubmitOption) (T, error) {
	sub, err := Submit(ctx, e, d, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return sub.Invocation.Future().Wait(ctx)
}

// settle waits for the invocation's future and persists the outcome.
func settle[T any](e *Engine, id string, inv *invocation.Invocation[T], start time.Time) {
	defer e.broker.Close(id)

	_, callErr := inv.Future().Wait(context.Background())
	elapsed := time.Since(start)

	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()

	invocationsInFlight.Dec()
	invocationDuration.Observe(elapsed.Seconds())
	invocationsTotal.WithLabelValues(outcomeOf(callErr)).Inc()

	now := time.Now().UTC()
	dur := int(elapsed.Milliseconds())
	rec := &model.Invocation{
		ID:         id,
		Status:     model.StatusSucceeded,
		Message:    inv.Message().Get(),
		Cancelled:  inv.IsCancelled(),
		DurationMS: &dur,
		FinishedAt: &now,
	}
	if code := inv.StatusCode().Get(); code != 0 {
		rec.StatusCode = &code
	}
	if callErr != nil {
		rec.Status = model.StatusFailed
		rec.Error = callErr.Error()
	}

	if err := e.store.UpdateInvocation(context.Background(), rec); err != nil {
		e.logger.Error("failed to persist invocation outcome", "invocation_id", id, "error", err)
	}
}

// observer records the lifecycle notices of an invocation as events.
func observer[T any](r *recorder) invocation.Observer[T] {
	return invocation.Observer[T]{
		Start: func(name string) {
			r.record(model.EventStart, name)
		},
		Exception: func(_ string, err error) {
			r.record(model.EventException, err.Error())
		},
		Status: func(_ string, code status.Code) {
			r.record(model.EventStatus, code.String())
		},
		Failure: func(_ string, resp invocation.Response[T]) {
			r.record(model.EventFailure, strconv.Itoa(resp.StatusCode()))
		},
		Finally: func() {
			r.record(model.EventFinally, "")
		},
	}
}

// recorder persists and publishes the events of one invocation. Events are
// numbered in the order they are recorded.
type recorder struct {
	id     string
	store  store.Store
	broker *EventBroker
	logger *slog.Logger
	seq    atomic.Int32
}

func (r *recorder) record(kind, data string) {
	seq := int(r.seq.Add(1) - 1)
	if err := r.store.InsertEvent(context.Background(), r.id, seq, kind, data); err != nil {
		r.logger.Error("failed to persist event", "seq", seq, "kind", kind, "error", err)
	}
	r.broker.Publish(model.Event{
		InvocationID: r.id,
		Seq:          seq,
		Kind:         kind,
		Data:         data,
		CreatedAt:    time.Now().UTC(),
	})
}
