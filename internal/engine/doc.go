// Package engine is the central place where service invocations are
// submitted. It registers the default handlers that record every lifecycle
// notice, persists invocation history to the store, streams events to live
// subscribers and exports Prometheus metrics.
package engine
