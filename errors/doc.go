// Package errors provides structured error types for the memory core.
//
// Errors carry a Phase (which subsystem detected the condition) and a Kind
// (what went wrong), plus optional detail, the offending value, and a
// wrapped cause. Two errors match with errors.Is when their Phase and Kind
// agree, so callers can classify without string matching:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseAlloc, Kind: errors.KindQuotaExceeded}) {
//	    // retry with smaller input
//	}
//
// Only recoverable conditions become errors. Contract violations inside
// the core (double free, type confusion, corrupted free list) panic at the
// point of detection instead, since safe continuation is impossible.
package errors
