// Package frame implements the call-frame stack: the chain of
// in-flight invocations walked for stack traces, current-context
// resolution, and collector root scanning.
//
// The chain is anchored by a sentinel bottom frame bound to a no-op
// dummy action, so prior-pointer walks never need nil checks. The
// sentinel's own prior pointer is poisoned; walking past the bottom
// panics instead of reading garbage.
//
// A frame moves through Allocated, Pushed (argument gathering),
// Running (body executing), and Dropped. Dropped frames donate their
// varlist to a small reuse cache so that tight call loops avoid
// reallocating locals storage.
package frame
