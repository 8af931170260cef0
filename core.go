package cairncore

// Cleaner releases a foreign resource carried by a handle cell. It is
// invoked exactly once, when the series recognized as the handle's owning
// container decays.
type Cleaner func(resource any)

// PoolStats describes one size-class pool for diagnostic tooling.
type PoolStats struct {
	Wide     int // element width in bytes
	Units    int // nodes added per segment fill
	Has      int // total nodes across all segments
	Free     int // nodes currently on the free list
	Segments int
}

// StatsSource is implemented by allocators that can report per-pool usage.
type StatsSource interface {
	Stats() []PoolStats
}
