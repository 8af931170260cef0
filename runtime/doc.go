// Package runtime assembles the memory core into one interpreter
// instance and owns its lifecycle.
//
// New brings the pieces up in dependency order: the accountant and
// pools first, then the heap, the data stack, and the frame stack.
// Close tears them down in reverse and reports leaks: manual series
// still registered, or a usage counter that did not return to zero.
//
// Configuration comes from the Config struct; two environment
// variables override it at DefaultConfig time:
//
//	CAIRN_ALWAYS_ALLOC  route every data allocation to the system
//	                    allocator so external memory tools see each
//	                    one individually
//	CAIRN_MEM_LIMIT     soft memory quota in bytes
//
// Multiple instances coexist in one process; nothing here is global.
package runtime
