// Package value implements the tagged cell representation and the series
// buffer abstraction, together with the heap that allocates both.
//
// # Architecture
//
// The package has three layers:
//
//	Heap
//	 ├── series node pool        (fixed-width Series records)
//	 ├── pairing pool            (two-cell allocations)
//	 ├── byte data table         (size-classed flat backing storage)
//	 ├── cell data table         (size-classed array backing storage)
//	 ├── manual registry         (leak tracking for unmanaged series)
//	 ├── symbol registry         (interned spellings)
//	 └── recently-expanded ring  (growth amortization)
//
//	Series
//	 └── growable homogeneous buffer: bytes, wide elements, or cells.
//	     Small content lives embedded in the Series record itself;
//	     larger content is a chunk from one of the heap's data tables.
//
//	Cell
//	 └── fixed-size tagged value. A cell never owns heap memory; a
//	     payload that references a Series holds identity only, and the
//	     series lifetime is settled by the manual/managed split.
//
// # Cell States
//
// END and TRASH are pseudo-states, not value kinds. END marks the
// logical tail of a cell sequence without a length lookup; TRASH marks
// a slot that was prepared but never written. Both are rejected by the
// kind-guarded payload accessors, which panic on confusion rather than
// return garbage.
//
// # Lifecycle
//
// Every series starts manual and is tracked in the heap's manual
// registry. Manage moves it to collector ownership and removes the
// registry entry; the transition is one-way in normal operation.
// Freeing a managed series directly is an invariant violation.
//
// A freed or killed series leaves a tombstone: decay hooks run and
// the backing storage returns to its table, but the node record keeps
// its inaccessible state in place until the heap shuts down. A stale
// pointer therefore panics on access instead of silently reading a
// reused node.
//
// # Expansion
//
// Expand applies three tiers in priority order: consume head bias,
// slide the tail within existing slack, or reallocate. Reallocation
// doubles the request when the same series identity appears in the
// recently-expanded ring, amortizing serial append patterns.
package value
