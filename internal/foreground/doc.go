// Package foreground provides the single serialized execution context on
// which invocation state is mutated and user handlers run. A Dispatcher
// accepts fire-and-forget actions (Post) and rendezvous actions (RunAndWait)
// and executes them one at a time in submission order.
//
// Loop is a standalone foreground backed by a dedicated goroutine, suitable
// for servers. TeaDispatcher delivers actions into a bubbletea program so that
// they run inside the program's Update loop.
package foreground
