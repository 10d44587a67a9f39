package invocation

import (
	"log/slog"

	"github.com/seantiz/courier/internal/foreground"
)

// Host bundles what every invocation needs from its environment: the
// foreground dispatcher, the default executor and the logger.
type Host struct {
	dispatcher foreground.Dispatcher
	executor   Executor
	logger     *slog.Logger
}

// HostOption customizes a Host.
type HostOption func(*Host)

// WithExecutor replaces the default executor, Goroutines.
func WithExecutor(e Executor) HostOption {
	return func(h *Host) {
		if e != nil {
			h.executor = e
		}
	}
}

// NewHost creates a host that runs handlers on dispatcher.
func NewHost(dispatcher foreground.Dispatcher, logger *slog.Logger, opts ...HostOption) *Host {
	if dispatcher == nil {
		panic(invalidArgument("dispatcher must not be nil"))
	}
	if logger == nil {
		panic(invalidArgument("logger must not be nil"))
	}
	h := &Host{
		dispatcher: dispatcher,
		executor:   Goroutines,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithLogger returns a copy of h that logs to logger.
func (h *Host) WithLogger(logger *slog.Logger) *Host {
	c := *h
	c.logger = logger
	return &c
}

// Dispatcher returns the foreground dispatcher.
func (h *Host) Dispatcher() foreground.Dispatcher {
	return h.dispatcher
}
