// Package mem provides the low-level allocation layer of the core: a raw
// allocator with usage accounting and quota enforcement, fixed-width node
// pools, and size-segregated chunk tables for series data.
//
// # Node Pools
//
// A Pool hands out fixed-width nodes from segments. Nodes are identified
// by a Ref (segment + slot index) rather than a bare pointer, and the
// free list is an explicit chain of refs with a per-slot in-use bit, so a
// double free is detected immediately instead of corrupting overlaid
// free-list pointers:
//
//	pool := mem.NewPool[Thing]("things", 1, 256, acct)
//	node, ref := pool.Alloc()
//	...
//	pool.Free(ref)
//
// # Chunk Tables
//
// A Table maps a requested element count to one of a bounded set of size
// classes in O(1) and allocates whole class-width chunks, so a series can
// use the full chunk as reserve capacity. Requests above the big-size
// threshold fall through to a per-request "system" policy with the same
// usage accounting.
//
// # Quota
//
// The Accountant tracks every byte the layer hands out. When a limit is
// configured, a request that would cross it is refused *before* any
// platform allocation happens, as a recoverable error; the usage counter
// is untouched by refused requests. Exhaustion during a pool segment fill
// is not recoverable and panics.
//
// # Diagnostic Mode
//
// AlwaysDirect mode routes every table request through the system policy
// so external memory checkers observe one platform allocation per request.
// It is decided once at startup and trades speed for precise diagnostics.
package mem
