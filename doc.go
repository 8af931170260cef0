// Package cairncore provides the memory and value core of the Cairn
// interpreter: tagged value cells, pooled series allocation, and the
// stack machinery that tracks evaluation state.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	cairncore/       Root package with shared interfaces
//	├── runtime/     Startup/shutdown ordering and configuration
//	├── value/       Cell (tagged value) and Series (growable buffer)
//	├── mem/         Raw allocator, usage accounting, node pools
//	├── stack/       Evaluator data stack (transient cell scratch space)
//	├── frame/       Call-frame chain with sentinel bottom frame
//	└── errors/      Structured error types for debugging
//
// # Quick Start
//
// Bring up a core and allocate from it:
//
//	rt, err := runtime.New(runtime.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	s, err := rt.Heap().MakeSeries(16, 1, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Heap().Free(s)
//
// # Lifecycle Model
//
// Series begin life manually managed: the caller must Free them, and the
// heap tracks them in a registry so leaks are reported at shutdown. The
// Manage transition hands a series to the collector permanently; there is
// no implicit way back. Cells never own memory; a cell holding a series
// reference keeps it alive only through the collector's root set.
//
// # Thread Safety
//
// The entire core assumes a single mutator. Pools, the heap, and both
// stacks have no internal locking; any embedding event loop must treat
// every operation here as a non-preemptible critical section.
package cairncore
