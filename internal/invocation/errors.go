package invocation

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is wrapped by the panics raised for invalid
// configuration, such as an empty name or a negative delay.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNilResponse is reported when a supplier returns neither a response nor
// an error.
var ErrNilResponse = errors.New("supplier returned a nil response")

// SimulatedFailureMessage is the message of every failure produced by
// failure simulation.
const SimulatedFailureMessage = "Simulated failure"

// FailureError is the error of a call that completed with an unsuccessful
// response, or whose success was overridden by failure simulation.
type FailureError struct {
	Name       string
	StatusCode int
	Message    string
	Simulated  bool
}

func (e *FailureError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service error %d", e.StatusCode)
	}
	return fmt.Sprintf("service error %d: %s", e.StatusCode, e.Message)
}

// Origins of a PanicError.
const (
	PanicInSupplier = "supplier"
	PanicInResponse = "response handling"
)

// PanicError carries a panic raised by a supplier, or by the response it
// returned while the outcome was being classified.
type PanicError struct {
	Origin string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	origin := e.Origin
	if origin == "" {
		origin = PanicInSupplier
	}
	return fmt.Sprintf("%s panicked: %v", origin, e.Value)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
