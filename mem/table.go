package mem

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	cairncore "github.com/cairnscript/cairn-core"
)

// Class configures one size class of a Table: chunk width in elements and
// nodes added per segment fill.
type Class struct {
	Wide  int
	Units int
}

// Chunk is one allocation handed out by a Table. Data is the full class
// width, which is at least the requested count; callers may use the
// surplus as reserve capacity. A zero Chunk holds no allocation.
type Chunk[T any] struct {
	Data []T
	ref  Ref
	pool int8 // class index, or -1 for a system allocation
}

// IsNone reports whether the chunk holds no allocation.
func (c Chunk[T]) IsNone() bool { return c.Data == nil }

// Table is a size-segregated chunk allocator. Requested element counts
// are classified in O(1) through a lookup table; counts above the big
// threshold (the largest class) use a per-request system policy, rounded
// up to class granularity so released buffers stay reuse-friendly.
type Table[T any] struct {
	name     string
	classes  []Class
	pools    []*Pool[T]
	classMap []int8 // requested count -> class index, up to the threshold
	big      int
	elemSize uintptr
	direct   bool
	sysBytes uint64
	sysCount int
	acct     *Accountant
}

// NewTable builds a table from classes ordered by ascending Wide. When
// direct is set, every request uses the system policy so external memory
// tools see one platform allocation per request.
func NewTable[T any](name string, classes []Class, acct *Accountant, direct bool) *Table[T] {
	if len(classes) == 0 {
		panic(fmt.Sprintf("mem: table %q has no size classes", name))
	}
	var zero T
	t := &Table[T]{
		name:     name,
		classes:  classes,
		elemSize: unsafe.Sizeof(zero),
		big:      classes[len(classes)-1].Wide,
		direct:   direct,
		acct:     acct,
	}
	if len(classes) > 127 {
		panic(fmt.Sprintf("mem: table %q has too many size classes", name))
	}
	t.pools = make([]*Pool[T], len(classes))
	prev := 0
	for i, c := range classes {
		if c.Wide <= prev {
			panic(fmt.Sprintf("mem: table %q classes not ascending at %d", name, i))
		}
		prev = c.Wide
		t.pools[i] = NewPool[T](fmt.Sprintf("%s/%d", name, c.Wide), c.Wide, c.Units, acct)
	}
	t.classMap = make([]int8, t.big+1)
	ci := 0
	for n := 0; n <= t.big; n++ {
		for n > classes[ci].Wide {
			ci++
		}
		t.classMap[n] = int8(ci)
	}
	return t
}

// Big returns the threshold element count above which the system policy
// applies.
func (t *Table[T]) Big() int { return t.big }

// Alloc returns a chunk of at least n elements. Crossing the configured
// memory quota is refused before anything is allocated; exhaustion inside
// a pool fill is fatal.
func (t *Table[T]) Alloc(n int) (Chunk[T], error) {
	if n <= 0 {
		panic(fmt.Sprintf("mem: table %q asked for %d elements", t.name, n))
	}
	if !t.direct && n <= t.big {
		pool := t.pools[t.classMap[n]]
		if pool.NeedsFill() {
			if err := t.acct.CheckQuota(pool.SegmentBytes()); err != nil {
				return Chunk[T]{}, err
			}
		}
		data, ref := pool.AllocChunk()
		return Chunk[T]{Data: data, ref: ref, pool: t.classMap[n]}, nil
	}

	rounded := t.roundSystem(n)
	bytes := uint64(rounded) * uint64(t.elemSize)
	if err := t.acct.CheckQuota(bytes); err != nil {
		return Chunk[T]{}, err
	}
	t.acct.add(bytes)
	t.sysBytes += bytes
	t.sysCount++
	return Chunk[T]{Data: make([]T, rounded), ref: NoRef, pool: -1}, nil
}

// roundSystem rounds a big request up to class granularity.
func (t *Table[T]) roundSystem(n int) int {
	g := t.classes[0].Wide
	return (n + g - 1) / g * g
}

// Free returns a chunk to its pool, or releases a system allocation.
func (t *Table[T]) Free(c Chunk[T]) {
	if c.IsNone() {
		panic(fmt.Sprintf("mem: table %q freeing empty chunk", t.name))
	}
	if c.pool >= 0 {
		t.pools[c.pool].Free(c.ref)
		return
	}
	bytes := uint64(len(c.Data)) * uint64(t.elemSize)
	t.acct.sub(bytes)
	t.sysBytes -= bytes
	t.sysCount--
}

// CheckIntegrity verifies every class pool's free list and returns the
// total free-node count.
func (t *Table[T]) CheckIntegrity() int {
	total := 0
	for _, p := range t.pools {
		total += p.CheckIntegrity()
	}
	return total
}

// Stats reports per-class pool counters.
func (t *Table[T]) Stats() []cairncore.PoolStats {
	out := make([]cairncore.PoolStats, len(t.pools))
	for i, p := range t.pools {
		out[i] = p.Stats()
	}
	return out
}

// SystemStats reports outstanding system-policy allocations.
func (t *Table[T]) SystemStats() (count int, bytes uint64) {
	return t.sysCount, t.sysBytes
}

// Release drops all class segments. Outstanding system allocations are
// logged and their accounting balanced, since nothing else can.
func (t *Table[T]) Release() {
	for _, p := range t.pools {
		p.Release()
	}
	if t.sysCount != 0 {
		Logger().Warn("system allocations outstanding at table release",
			zap.String("table", t.name),
			zap.Int("count", t.sysCount),
			zap.Uint64("bytes", t.sysBytes))
		t.acct.sub(t.sysBytes)
		t.sysBytes = 0
		t.sysCount = 0
	}
}
