// Package stack implements the evaluator's data stack: a cell-array
// series used as transient scratch space for building results of
// not-yet-known length.
//
// Index 0 holds a guard sentinel that is never popped past, so depth
// N means exactly N pushed values. Access is by index only; any push
// may relocate the backing buffer, so cell pointers obtained before a
// push are invalid after it. The API returns indices from Mark and
// re-derives cell references through At to keep that rule enforceable.
package stack
