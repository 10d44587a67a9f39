// Package invocation runs a single blocking service call on a worker
// goroutine and delivers every outcome to a foreground dispatcher.
//
// A Descriptor is a fluent configuration of the call: its name, the
// supplier that performs it, an optional artificial delay, failure
// simulation, and a table of outcome handlers. Most handler slots come in a
// specific and a default flavor; the specific handler wins when both are set.
// Default handlers are meant to be registered in one central place, while
// specific handlers belong to the code that builds the call.
//
// Execute turns a Descriptor into an Invocation. The invocation moves
// READY -> RUNNING -> SUCCEEDED|FAILED, exposing its state, value, error,
// progress and message as observable cells that are only ever written on the
// foreground. Each handler dispatch is awaited by the worker before it moves
// on, so handlers of one invocation run strictly in lifecycle order:
//
//	start (default, specific) -> outcome handler -> finally (default, specific)
//
// The returned Future settles after the finally handlers have run.
//
// Nothing bounds the duration of the supplier. A supplier that never returns
// keeps its worker goroutine blocked forever, and Cancel does not change
// that: it only records that the result is no longer wanted.
package invocation
