package stack

import (
	"fmt"

	"github.com/cairnscript/cairn-core/errors"
	"github.com/cairnscript/cairn-core/value"
)

// DefaultInitial is the starting capacity when the caller passes no
// preference.
const DefaultInitial = 64

// DataStack is the single transient cell stack shared by one
// interpreter instance. It is single-writer state, like everything
// else in the core.
type DataStack struct {
	heap  *value.Heap
	array *value.Series
	top   int // index of the topmost pushed value; 0 = empty
	limit int
}

// New builds the stack with its guard sentinel at index 0. limit
// bounds the depth; 0 means unbounded.
func New(heap *value.Heap, initial, limit int) (*DataStack, error) {
	if initial < 1 {
		initial = DefaultInitial
	}
	a, err := heap.MakeArray(initial+1, value.SeriesAlwaysDynamic|value.SeriesPowerOfTwo)
	if err != nil {
		return nil, err
	}
	if err := a.SetLen(1); err != nil {
		heap.Free(a)
		return nil, err
	}
	guard := a.At(0)
	guard.SetBlank()
	guard.SetFlag(value.FlagStackResident | value.FlagProtected)
	return &DataStack{heap: heap, array: a, limit: limit}, nil
}

// Depth returns the number of pushed values.
func (ds *DataStack) Depth() int { return ds.top }

// Mark records the current depth for a later PopTo or drain.
func (ds *DataStack) Mark() int { return ds.top }

// BackingIdentity exposes the storage probe for relocation tests.
func (ds *DataStack) BackingIdentity() any { return ds.array.DataIdentity() }

// At returns the cell at depth index i, 1-based. The sentinel at 0 is
// unreadable. The reference dies at the next push.
func (ds *DataStack) At(i int) *value.Cell {
	if i < 1 || i > ds.top {
		panic(fmt.Sprintf("data stack index %d outside 1..%d", i, ds.top))
	}
	return ds.array.At(i)
}

// Top returns the topmost cell, panicking on an empty stack.
func (ds *DataStack) Top() *value.Cell { return ds.At(ds.top) }

// Push copies v onto the stack. END and trash are never legal here,
// and null placeholders go through PushMaybeVoid so that accidental
// nulls surface loudly.
func (ds *DataStack) Push(v *value.Cell) error {
	if v.Kind() == value.KindNull {
		panic("null push on data stack; use PushMaybeVoid")
	}
	return ds.push(v)
}

// PushMaybeVoid is the variant for callers that legitimately stack an
// unset placeholder, e.g. building a varlist before values exist.
func (ds *DataStack) PushMaybeVoid(v *value.Cell) error {
	return ds.push(v)
}

func (ds *DataStack) push(v *value.Cell) error {
	if v.IsEnd() || v.IsTrash() {
		panic(fmt.Sprintf("push of %s cell on data stack", v.Kind()))
	}
	if ds.limit > 0 && ds.top+1 > ds.limit {
		return errors.StackOverflow(ds.top, ds.limit)
	}
	// The slot one past top is the array's END; growing through Expand
	// keeps the terminator and the doubling policy in one place.
	if err := ds.heap.Expand(ds.array, ds.array.Len(), 1); err != nil {
		return err
	}
	ds.top++
	slot := ds.array.At(ds.top)
	slot.Derelativize(v, nil)
	slot.SetFlag(value.FlagStackResident)
	return nil
}

// PopTo truncates back to a recorded mark, discarding everything
// above it. Stack cells are always specific, so no per-cell cleanup
// is needed.
func (ds *DataStack) PopTo(mark int) {
	if mark < 0 || mark > ds.top {
		panic(fmt.Sprintf("PopTo(%d) outside 0..%d", mark, ds.top))
	}
	if err := ds.array.SetLen(mark + 1); err != nil {
		panic(fmt.Sprintf("data stack truncation failed: %v", err))
	}
	ds.top = mark
}

// DrainFrom copies the run above mark into a fresh array and
// truncates the stack to mark.
func (ds *DataStack) DrainFrom(mark int) (*value.Series, error) {
	n := ds.top - mark
	out, err := ds.heap.MakeArray(n, 0)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := ds.heap.AppendCell(out, ds.At(mark+1+i)); err != nil {
			ds.heap.Free(out)
			return nil, err
		}
	}
	ds.PopTo(mark)
	return out, nil
}

// DrainInto inserts the run above mark into target at index, then
// truncates. It returns the index one past the inserted run.
func (ds *DataStack) DrainInto(target *value.Series, index, mark int) (int, error) {
	if !target.IsArray() {
		panic("drain into flat series")
	}
	n := ds.top - mark
	if err := ds.heap.Expand(target, index, n); err != nil {
		return index, err
	}
	for i := 0; i < n; i++ {
		target.At(index+i).Derelativize(ds.At(mark+1+i), nil)
	}
	ds.PopTo(mark)
	return index + n, nil
}

// Close releases the backing series. The stack must be empty; a
// nonzero depth means some caller never balanced its pushes.
func (ds *DataStack) Close() error {
	if ds.top != 0 {
		return errors.Unbalanced(fmt.Sprintf("data stack closed at depth %d", ds.top))
	}
	ds.heap.Free(ds.array)
	ds.array = nil
	return nil
}
