package mem

import (
	"fmt"
	"unsafe"

	cairncore "github.com/cairnscript/cairn-core"
)

// Ref identifies one node within a pool: a segment number and a slot
// index. Refs stay valid for the life of the node regardless of how many
// segments are added later.
type Ref struct {
	Seg int32
	Idx int32
}

// NoRef is the zero node reference.
var NoRef = Ref{Seg: -1, Idx: -1}

// IsNone reports whether r refers to no node.
func (r Ref) IsNone() bool { return r.Seg < 0 }

type segment[T any] struct {
	slots []T    // units * wide elements
	next  []Ref  // free-list link, meaningful only while the slot is free
	inUse []bool // explicit allocation bit; catches double free and stale refs
}

// Pool is a fixed-width node allocator. Every node is `wide` elements of
// T; segments of `units` nodes are added as the free list drains. Nodes
// are always returned zeroed.
//
// Allocation from a pool does not fail recoverably: if the platform
// cannot supply a new segment the process cannot safely continue, and the
// runtime panics. Quota policy, where it applies, is enforced by callers
// before the allocation (see Table).
type Pool[T any] struct {
	name     string
	wide     int
	units    int
	elemSize uintptr
	segs     []*segment[T]
	freeHead Ref
	freeTail Ref
	free     int
	has      int
	acct     *Accountant
}

// NewPool creates a pool of nodes `wide` elements of T each, growing
// `units` nodes per segment fill.
func NewPool[T any](name string, wide, units int, acct *Accountant) *Pool[T] {
	if wide < 1 || units < 2 {
		panic(fmt.Sprintf("mem: pool %q configured with wide=%d units=%d", name, wide, units))
	}
	var zero T
	return &Pool[T]{
		name:     name,
		wide:     wide,
		units:    units,
		elemSize: unsafe.Sizeof(zero),
		freeHead: NoRef,
		freeTail: NoRef,
		acct:     acct,
	}
}

// Name returns the pool's configured name.
func (p *Pool[T]) Name() string { return p.name }

// Wide returns the node width in elements.
func (p *Pool[T]) Wide() int { return p.wide }

// FreeCount returns the number of nodes currently on the free list.
func (p *Pool[T]) FreeCount() int { return p.free }

// Has returns the total node count across all segments.
func (p *Pool[T]) Has() int { return p.has }

// SegmentBytes returns the payload size of one segment fill.
func (p *Pool[T]) SegmentBytes() uint64 {
	return uint64(p.elemSize) * uint64(p.wide) * uint64(p.units)
}

// NeedsFill reports whether the next Alloc would trigger a segment fill.
func (p *Pool[T]) NeedsFill() bool { return p.free == 0 }

// fill adds one segment and threads its nodes onto the end of the free
// list in address order.
func (p *Pool[T]) fill() {
	seg := &segment[T]{
		slots: make([]T, p.wide*p.units),
		next:  make([]Ref, p.units),
		inUse: make([]bool, p.units),
	}
	segNum := int32(len(p.segs))
	p.segs = append(p.segs, seg)
	p.acct.add(p.SegmentBytes())
	p.has += p.units
	p.free += p.units

	first := Ref{Seg: segNum, Idx: 0}
	for i := 0; i < p.units-1; i++ {
		seg.next[i] = Ref{Seg: segNum, Idx: int32(i + 1)}
	}
	seg.next[p.units-1] = NoRef

	if p.freeTail.IsNone() {
		p.freeHead = first
	} else {
		tail := p.segs[p.freeTail.Seg]
		tail.next[p.freeTail.Idx] = first
	}
	p.freeTail = Ref{Seg: segNum, Idx: int32(p.units - 1)}
}

// Alloc pops one node and returns a pointer to its first element.
func (p *Pool[T]) Alloc() (*T, Ref) {
	slice, ref := p.AllocChunk()
	return &slice[0], ref
}

// AllocChunk pops one node and returns its full element slice.
func (p *Pool[T]) AllocChunk() ([]T, Ref) {
	if p.free == 0 {
		p.fill()
	}
	ref := p.freeHead
	seg := p.segs[ref.Seg]
	if seg.inUse[ref.Idx] {
		panic(fmt.Sprintf("mem: pool %q free list head %v is marked in use", p.name, ref))
	}
	p.freeHead = seg.next[ref.Idx]
	if p.freeHead.IsNone() {
		p.freeTail = NoRef
	}
	seg.inUse[ref.Idx] = true
	p.free--

	start := int(ref.Idx) * p.wide
	return seg.slots[start : start+p.wide : start+p.wide], ref
}

// Free pushes the node back on the free list. The node's storage is
// cleared so reused slots never leak stale references, and so a use of a
// stale ref reads zeroes rather than another node's data.
func (p *Pool[T]) Free(ref Ref) {
	seg := p.checkRef(ref)
	if !seg.inUse[ref.Idx] {
		panic(fmt.Sprintf("mem: double free of node %v in pool %q", ref, p.name))
	}
	start := int(ref.Idx) * p.wide
	clear(seg.slots[start : start+p.wide])
	seg.inUse[ref.Idx] = false
	seg.next[ref.Idx] = p.freeHead
	p.freeHead = ref
	if p.freeTail.IsNone() {
		p.freeTail = ref
	}
	p.free++
}

// Slice returns the element slice of an in-use node.
func (p *Pool[T]) Slice(ref Ref) []T {
	seg := p.checkRef(ref)
	if !seg.inUse[ref.Idx] {
		panic(fmt.Sprintf("mem: access to freed node %v in pool %q", ref, p.name))
	}
	start := int(ref.Idx) * p.wide
	return seg.slots[start : start+p.wide : start+p.wide]
}

// InUse reports whether ref names a live node.
func (p *Pool[T]) InUse(ref Ref) bool {
	seg := p.checkRef(ref)
	return seg.inUse[ref.Idx]
}

func (p *Pool[T]) checkRef(ref Ref) *segment[T] {
	if ref.Seg < 0 || int(ref.Seg) >= len(p.segs) {
		panic(fmt.Sprintf("mem: ref %v names no segment of pool %q", ref, p.name))
	}
	if ref.Idx < 0 || int(ref.Idx) >= p.units {
		panic(fmt.Sprintf("mem: ref %v slot out of range for pool %q", ref, p.name))
	}
	return p.segs[ref.Seg]
}

// Range calls fn for every in-use node until fn returns false.
func (p *Pool[T]) Range(fn func(ref Ref, node []T) bool) {
	for s, seg := range p.segs {
		for i := 0; i < p.units; i++ {
			if !seg.inUse[i] {
				continue
			}
			start := i * p.wide
			if !fn(Ref{Seg: int32(s), Idx: int32(i)}, seg.slots[start:start+p.wide:start+p.wide]) {
				return
			}
		}
	}
}

// CheckIntegrity walks the free list and reconciles it against the
// segment bookkeeping: every free node must be reachable exactly once,
// lie within a segment, and not be marked in use. It returns the walked
// free-node count, which always equals FreeCount on return. Any
// inconsistency means the pool's contract is already broken, so it
// panics rather than returning an error.
func (p *Pool[T]) CheckIntegrity() int {
	if p.has != len(p.segs)*p.units {
		panic(fmt.Sprintf("mem: pool %q has %d nodes but %d segments of %d", p.name, p.has, len(p.segs), p.units))
	}
	seen := make(map[Ref]bool, p.free)
	walked := 0
	for ref := p.freeHead; !ref.IsNone(); {
		seg := p.checkRef(ref)
		if seg.inUse[ref.Idx] {
			panic(fmt.Sprintf("mem: node %v on pool %q free list but marked in use", ref, p.name))
		}
		if seen[ref] {
			panic(fmt.Sprintf("mem: node %v appears twice on pool %q free list", ref, p.name))
		}
		seen[ref] = true
		walked++
		ref = seg.next[ref.Idx]
	}
	if walked != p.free {
		panic(fmt.Sprintf("mem: pool %q free list has %d nodes, header says %d", p.name, walked, p.free))
	}
	return walked
}

// Stats reports the pool's counters for diagnostic tooling.
func (p *Pool[T]) Stats() cairncore.PoolStats {
	return cairncore.PoolStats{
		Wide:     int(p.elemSize) * p.wide,
		Units:    p.units,
		Has:      p.has,
		Free:     p.free,
		Segments: len(p.segs),
	}
}

// Release drops all segments and returns their bytes to the accountant.
// Outstanding nodes become invalid; callers are responsible for leak
// detection before releasing.
func (p *Pool[T]) Release() {
	for range p.segs {
		p.acct.sub(p.SegmentBytes())
	}
	p.segs = nil
	p.freeHead = NoRef
	p.freeTail = NoRef
	p.free = 0
	p.has = 0
}
