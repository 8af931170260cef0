package value

import (
	"fmt"

	cairncore "github.com/cairnscript/cairn-core"
	"github.com/cairnscript/cairn-core/errors"
	"github.com/cairnscript/cairn-core/mem"
)

// SeriesFlags are fixed at construction and describe what the series
// is, not what state it is in.
type SeriesFlags uint16

const (
	// SeriesFixedSize refuses every expansion after construction.
	SeriesFixedSize SeriesFlags = 1 << iota

	// SeriesAlwaysDynamic skips the embedded small-content
	// optimization even when the content would fit.
	SeriesAlwaysDynamic

	// SeriesPowerOfTwo biases reallocation toward power-of-two
	// capacities.
	SeriesPowerOfTwo

	// SeriesParamlist marks the cell array describing an action's
	// parameters. Slot 0 holds the action archetype.
	SeriesParamlist

	// SeriesVarlist marks the cell array holding a context's
	// variables. Slot 0 holds the context archetype.
	SeriesVarlist

	// SeriesSymbol marks an interned spelling owned by the heap's
	// symbol registry.
	SeriesSymbol
)

// series info bits: mutable lifecycle state, separate from the
// construction-time flags.
type seriesInfo uint16

const (
	infoDynamic seriesInfo = 1 << iota
	infoManaged
	infoProtected
	infoFrozen
	infoHold
	infoInaccessible

	// infoRetired marks a node whose series was freed or killed. The
	// record stays in its pool slot as a tombstone so stale pointers
	// read the decayed state instead of an unrelated reused node.
	infoRetired
)

// embedBytesLen is the inline content budget for flat series.
const embedBytesLen = 16

// maxSeriesLen is the representable-length ceiling; a request past it
// is a recoverable capacity error.
const maxSeriesLen = 1 << 30

// Series is the growable homogeneous buffer behind every
// variable-length aggregate: strings, binaries, blocks, paramlists,
// varlists. Identity is the *Series pointer; the backing storage may
// move, the identity never does.
//
// The backing layout is bias + rest units: bias units of unused head
// slack, then rest units of capacity of which one is reserved for the
// terminator. Small content lives embedded in the record itself.
type Series struct {
	flags  SeriesFlags
	info   seriesInfo
	wide   uint8 // element width in bytes, 0 = array of cells
	bias   int
	length int
	rest   int

	bytes mem.Chunk[byte] // dynamic backing, flat series
	cells mem.Chunk[Cell] // dynamic backing, arrays

	embedCells [2]Cell
	embedBytes [embedBytesLen]byte

	// handle support: set only on a singular array built by
	// Heap.MakeHandle.
	cleaner  cairncore.Cleaner
	resource any

	ref mem.Ref
}

func (s *Series) IsArray() bool { return s.wide == 0 }

// Wide returns the element width in bytes; 0 means cells.
func (s *Series) Wide() int { return int(s.wide) }

func (s *Series) Len() int { return s.length }

// Cap returns usable element capacity past the bias, excluding the
// reserved terminator slot.
func (s *Series) Cap() int { return s.rest - 1 }

func (s *Series) Bias() int { return s.bias }

func (s *Series) IsDynamic() bool    { return s.info&infoDynamic != 0 }
func (s *Series) IsManaged() bool    { return s.info&infoManaged != 0 }
func (s *Series) IsProtected() bool  { return s.info&infoProtected != 0 }
func (s *Series) IsFrozen() bool     { return s.info&infoFrozen != 0 }
func (s *Series) IsHeld() bool       { return s.info&infoHold != 0 }
func (s *Series) IsAccessible() bool { return s.info&infoInaccessible == 0 }

func (s *Series) IsFixedSize() bool { return s.flags&SeriesFixedSize != 0 }
func (s *Series) IsParamlist() bool { return s.flags&SeriesParamlist != 0 }
func (s *Series) IsVarlist() bool   { return s.flags&SeriesVarlist != 0 }
func (s *Series) IsSymbol() bool    { return s.flags&SeriesSymbol != 0 }

// Freeze makes length and contents immutable for the remainder of the
// process. There is no thaw.
func (s *Series) Freeze() { s.info |= infoFrozen }

// Protect and Unprotect toggle the reversible write lock.
func (s *Series) Protect()   { s.info |= infoProtected }
func (s *Series) Unprotect() { s.info &^= infoProtected }

// Hold and ReleaseHold bracket a temporary no-mutation window, used
// while iteration or mold is in progress.
func (s *Series) Hold()        { s.info |= infoHold }
func (s *Series) ReleaseHold() { s.info &^= infoHold }

func (s *Series) assertAccessible() {
	if s.info&infoInaccessible != 0 {
		panic("access to decayed series")
	}
}

// ensureMutable returns the recoverable error for a write attempted
// against a locked series.
func (s *Series) ensureMutable() error {
	s.assertAccessible()
	if s.info&infoFrozen != 0 {
		return errors.Frozen("series")
	}
	if s.info&infoProtected != 0 {
		return errors.Protected("series")
	}
	if s.info&infoHold != 0 {
		return errors.Held("series")
	}
	return nil
}

// rawCells returns the full unbiased backing of an array series.
func (s *Series) rawCells() []Cell {
	if s.wide != 0 {
		panic("cell access on flat series")
	}
	if s.info&infoDynamic != 0 {
		return s.cells.Data
	}
	return s.embedCells[:]
}

// rawBytes returns the full unbiased backing of a flat series.
func (s *Series) rawBytes() []byte {
	if s.wide == 0 {
		panic("byte access on array series")
	}
	if s.info&infoDynamic != 0 {
		return s.bytes.Data
	}
	return s.embedBytes[:]
}

// At returns the cell at logical index i. The reference is invalidated
// by any operation that may reallocate.
func (s *Series) At(i int) *Cell {
	s.assertAccessible()
	if i < 0 || i > s.length {
		panic(fmt.Sprintf("array index %d out of range %d", i, s.length))
	}
	return &s.rawCells()[s.bias+i]
}

// Head returns the cell at index 0.
func (s *Series) Head() *Cell { return s.At(0) }

// Tail returns the END cell one past the last element.
func (s *Series) Tail() *Cell { return s.At(s.length) }

// Data returns the live content of a flat series as bytes, biased and
// trimmed to length. The slice is invalidated by any reallocation.
func (s *Series) Data() []byte {
	s.assertAccessible()
	w := int(s.wide)
	raw := s.rawBytes()
	return raw[s.bias*w : (s.bias+s.length)*w]
}

// Byte and SetByte access single elements of a width-1 series.
func (s *Series) Byte(i int) byte {
	if s.wide != 1 {
		panic("byte element access on non-byte series")
	}
	if i < 0 || i >= s.length {
		panic(fmt.Sprintf("byte index %d out of range %d", i, s.length))
	}
	return s.rawBytes()[s.bias+i]
}

func (s *Series) SetByte(i int, b byte) error {
	if err := s.ensureMutable(); err != nil {
		return err
	}
	if s.wide != 1 {
		panic("byte element access on non-byte series")
	}
	if i < 0 || i >= s.length {
		panic(fmt.Sprintf("byte index %d out of range %d", i, s.length))
	}
	s.rawBytes()[s.bias+i] = b
	return nil
}

// SetLen changes the logical length within existing capacity and
// re-terminates. Growth past capacity goes through Heap.Expand.
func (s *Series) SetLen(n int) error {
	if err := s.ensureMutable(); err != nil {
		return err
	}
	if n < 0 || n > s.Cap() {
		panic(fmt.Sprintf("SetLen(%d) outside capacity %d", n, s.Cap()))
	}
	if s.wide == 0 {
		// Cells revealed by growth must be prepped, not stale.
		raw := s.rawCells()
		for i := s.length; i < n; i++ {
			raw[s.bias+i].Prep()
		}
	}
	s.length = n
	s.term()
	return nil
}

// term writes the terminator at the logical tail: END for arrays, a
// zero element for flat series.
func (s *Series) term() {
	if s.wide == 0 {
		s.rawCells()[s.bias+s.length].SetEnd()
		return
	}
	w := int(s.wide)
	raw := s.rawBytes()
	off := (s.bias + s.length) * w
	for i := 0; i < w; i++ {
		raw[off+i] = 0
	}
}

// Remove deletes count elements starting at index. Removal at the
// head converts the vacated slots into bias, enabling a later O(1)
// head expansion; removal elsewhere slides the tail left. Neither
// path touches the allocator.
func (s *Series) Remove(index, count int) error {
	if err := s.ensureMutable(); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if index < 0 || count < 0 || index+count > s.length {
		panic(fmt.Sprintf("Remove(%d, %d) out of range %d", index, count, s.length))
	}
	if index == 0 {
		s.bias += count
		s.rest -= count
		s.length -= count
		return nil
	}
	if s.wide == 0 {
		raw := s.rawCells()
		copy(raw[s.bias+index:], raw[s.bias+index+count:s.bias+s.length])
	} else {
		w := int(s.wide)
		raw := s.rawBytes()
		copy(raw[(s.bias+index)*w:], raw[(s.bias+index+count)*w:(s.bias+s.length)*w])
	}
	s.length -= count
	s.term()
	return nil
}

// DataIdentity returns a probe identifying the backing storage, used
// to observe whether an operation relocated the buffer. Compare with
// ==; never dereference across operations.
func (s *Series) DataIdentity() any {
	if s.wide == 0 {
		raw := s.rawCells()
		return &raw[0]
	}
	raw := s.rawBytes()
	return &raw[0]
}
