package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which subsystem detected the error
type Phase string

const (
	PhaseAlloc     Phase = "alloc"     // raw allocation and node pools
	PhaseSeries    Phase = "series"    // series construction and growth
	PhaseStack     Phase = "stack"     // evaluator data stack
	PhaseFrame     Phase = "frame"     // call-frame stack
	PhaseLifecycle Phase = "lifecycle" // startup/shutdown ordering
)

// Kind categorizes the error
type Kind string

const (
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindCapacityOverflow Kind = "capacity_overflow"
	KindFixedSize        Kind = "fixed_size"
	KindFrozen           Kind = "frozen"
	KindProtected        Kind = "protected"
	KindHeld             Kind = "held"
	KindInaccessible     Kind = "inaccessible"
	KindDepthExceeded    Kind = "depth_exceeded"
	KindBadIndex         Kind = "bad_index"
	KindLeak             Kind = "leak"
	KindNotStarted       Kind = "not_started"
	KindUnbalanced       Kind = "unbalanced"
)

// Error is the structured error type used throughout the core
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// QuotaExceeded reports a refused allocation that would cross the
// configured memory limit. Usage counters are unchanged by the refusal.
func QuotaExceeded(requested, usage, limit uint64) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindQuotaExceeded,
		Detail: fmt.Sprintf("allocating %d bytes would exceed limit (%d of %d in use)", requested, usage, limit),
		Value:  requested,
	}
}

// CapacityOverflow reports a series growth request past the maximum
// representable length.
func CapacityOverflow(length, delta int) *Error {
	return &Error{
		Phase:  PhaseSeries,
		Kind:   KindCapacityOverflow,
		Detail: fmt.Sprintf("expanding length %d by %d exceeds maximum series length", length, delta),
		Value:  delta,
	}
}

// FixedSize reports an attempted reallocation of a fixed-size series.
func FixedSize(what string) *Error {
	return &Error{
		Phase:  PhaseSeries,
		Kind:   KindFixedSize,
		Detail: fmt.Sprintf("%s is fixed-size and cannot be reallocated", what),
	}
}

// Frozen reports a write to a permanently frozen series.
func Frozen(what string) *Error {
	return &Error{
		Phase:  PhaseSeries,
		Kind:   KindFrozen,
		Detail: fmt.Sprintf("%s is frozen (permanently immutable)", what),
	}
}

// Protected reports a write to a protected series.
func Protected(what string) *Error {
	return &Error{
		Phase:  PhaseSeries,
		Kind:   KindProtected,
		Detail: fmt.Sprintf("%s is protected from modification", what),
	}
}

// Held reports a mutation of a temporarily held series.
func Held(what string) *Error {
	return &Error{
		Phase:  PhaseSeries,
		Kind:   KindHeld,
		Detail: fmt.Sprintf("%s is held and cannot be relocated", what),
	}
}

// StackOverflow reports data stack growth past its configured limit.
func StackOverflow(depth, limit int) *Error {
	return &Error{
		Phase:  PhaseStack,
		Kind:   KindDepthExceeded,
		Detail: fmt.Sprintf("data stack depth %d exceeds limit %d", depth, limit),
		Value:  depth,
	}
}

// FrameDepthExceeded reports a frame push past the recursion limit.
func FrameDepthExceeded(depth, limit int) *Error {
	return &Error{
		Phase:  PhaseFrame,
		Kind:   KindDepthExceeded,
		Detail: fmt.Sprintf("frame depth %d exceeds limit %d", depth, limit),
		Value:  depth,
	}
}

// Leak reports outstanding manual allocations at shutdown.
func Leak(count int) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindLeak,
		Detail: fmt.Sprintf("%d manually managed series never freed", count),
		Value:  count,
	}
}

// Unbalanced reports a teardown attempted before unwinding completed.
func Unbalanced(what string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindUnbalanced,
		Detail: what,
	}
}
