package value

import (
	"fmt"

	"go.uber.org/zap"

	cairncore "github.com/cairnscript/cairn-core"
	"github.com/cairnscript/cairn-core/errors"
	"github.com/cairnscript/cairn-core/mem"
)

// priorExpandSlots bounds the recently-expanded ring. Missing an
// entry only costs a reallocation later, never correctness.
const priorExpandSlots = 8

type pairingEntry struct {
	ref     mem.Ref
	managed bool
}

// Heap owns every allocation the value layer makes: the series node
// pool, the pairing pool, the size-classed data tables, the manual
// registry, and the symbol registry. It is single-writer state; the
// caller serializes access.
type Heap struct {
	acct     *mem.Accountant
	nodes    *mem.Pool[Series]
	pairs    *mem.Pool[Cell]
	byteData *mem.Table[byte]
	cellData *mem.Table[Cell]

	manuals  []*Series
	pairings map[*Cell]pairingEntry
	symbols  map[string]*Series

	priorExpand [priorExpandSlots]*Series
	evict       int
	retired     int
}

// NewHeap builds a heap whose pool segment sizes scale linearly with
// scale (1 = default tuning). When direct is set, the data tables
// bypass pooling so external memory tools see each allocation.
func NewHeap(scale int, acct *mem.Accountant, direct bool) *Heap {
	if scale < 1 {
		scale = 1
	}
	byteClasses := []mem.Class{
		{Wide: 16, Units: 256 * scale},
		{Wide: 32, Units: 128 * scale},
		{Wide: 64, Units: 64 * scale},
		{Wide: 128, Units: 32 * scale},
		{Wide: 256, Units: 16 * scale},
		{Wide: 512, Units: 8 * scale},
		{Wide: 1024, Units: 4 * scale},
		{Wide: 2048, Units: 2 * scale},
	}
	cellClasses := []mem.Class{
		{Wide: 2, Units: 128 * scale},
		{Wide: 4, Units: 64 * scale},
		{Wide: 8, Units: 32 * scale},
		{Wide: 16, Units: 16 * scale},
		{Wide: 32, Units: 8 * scale},
		{Wide: 64, Units: 4 * scale},
		{Wide: 128, Units: 2 * scale},
	}
	h := &Heap{
		acct:     acct,
		nodes:    mem.NewPool[Series]("series-node", 1, 512*scale, acct),
		pairs:    mem.NewPool[Cell]("pairing", 2, 128*scale, acct),
		byteData: mem.NewTable[byte]("byte-data", byteClasses, acct, direct),
		cellData: mem.NewTable[Cell]("cell-data", cellClasses, acct, direct),
		pairings: make(map[*Cell]pairingEntry),
		symbols:  make(map[string]*Series),
	}
	Logger().Debug("heap started",
		zap.Int("scale", scale),
		zap.Bool("direct", direct))
	return h
}

// Accountant exposes the usage counter shared by every pool and
// table.
func (h *Heap) Accountant() *mem.Accountant { return h.acct }

// MakeSeries allocates a series with room for capacity elements of
// the given width (0 = cells). Content that fits the record's inline
// budget stays embedded unless SeriesAlwaysDynamic forces a backing
// allocation. The result is manual; the caller frees it or hands it
// to Manage.
func (h *Heap) MakeSeries(capacity, wide int, flags SeriesFlags) (*Series, error) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity >= maxSeriesLen {
		return nil, errors.CapacityOverflow(0, capacity)
	}
	if wide < 0 || wide > 255 {
		panic(fmt.Sprintf("invalid element width %d", wide))
	}

	node, ref := h.nodes.Alloc()
	node.flags = flags
	node.wide = uint8(wide)
	node.ref = ref

	if flags&SeriesAlwaysDynamic == 0 && h.fitsEmbedded(capacity, wide) {
		if wide == 0 {
			node.rest = len(node.embedCells)
		} else {
			node.rest = embedBytesLen / wide
		}
		node.term()
		h.trackManual(node)
		return node, nil
	}

	if err := h.allocBacking(node, capacity+1); err != nil {
		h.nodes.Free(ref)
		return nil, err
	}
	node.term()
	h.trackManual(node)
	return node, nil
}

// MakeArray allocates a cell-array series.
func (h *Heap) MakeArray(capacity int, flags SeriesFlags) (*Series, error) {
	return h.MakeSeries(capacity, 0, flags)
}

func (h *Heap) fitsEmbedded(capacity, wide int) bool {
	if wide == 0 {
		return capacity <= 1
	}
	return (capacity+1)*wide <= embedBytesLen
}

// allocBacking attaches dynamic storage of at least units elements
// (terminator included in units).
func (h *Heap) allocBacking(s *Series, units int) error {
	if s.wide == 0 {
		chunk, err := h.cellData.Alloc(units)
		if err != nil {
			return err
		}
		s.cells = chunk
		s.rest = len(chunk.Data)
	} else {
		chunk, err := h.byteData.Alloc(units * int(s.wide))
		if err != nil {
			return err
		}
		s.bytes = chunk
		s.rest = len(chunk.Data) / int(s.wide)
	}
	s.bias = 0
	s.info |= infoDynamic
	return nil
}

// freeBacking returns dynamic storage to its table. Embedded content
// needs no release.
func (h *Heap) freeBacking(s *Series) {
	if s.info&infoDynamic == 0 {
		return
	}
	if s.wide == 0 {
		h.cellData.Free(s.cells)
		s.cells = mem.Chunk[Cell]{}
	} else {
		h.byteData.Free(s.bytes)
		s.bytes = mem.Chunk[byte]{}
	}
	s.info &^= infoDynamic
}

// MakeVarlist builds a context variable list: slot 0 holds the
// context archetype, slots 1..numVars hold the variables.
func (h *Heap) MakeVarlist(numVars int) (*Series, error) {
	a, err := h.MakeArray(numVars+1, SeriesVarlist)
	if err != nil {
		return nil, err
	}
	if err := a.SetLen(numVars + 1); err != nil {
		h.Free(a)
		return nil, err
	}
	a.At(0).SetContext(a)
	return a, nil
}

// MakeParamlist builds an action parameter list: slot 0 holds the
// action archetype, slots 1..numParams describe the parameters.
func (h *Heap) MakeParamlist(numParams int) (*Series, error) {
	a, err := h.MakeArray(numParams+1, SeriesParamlist)
	if err != nil {
		return nil, err
	}
	if err := a.SetLen(numParams + 1); err != nil {
		h.Free(a)
		return nil, err
	}
	a.At(0).SetAction(a)
	return a, nil
}

// MakeSymbol interns a spelling. Repeated calls with the same
// spelling return the identical series; the registration drops when
// the symbol decays.
func (h *Heap) MakeSymbol(spelling string) (*Series, error) {
	if s, ok := h.symbols[spelling]; ok {
		return s, nil
	}
	s, err := h.MakeSeries(len(spelling), 1, SeriesSymbol)
	if err != nil {
		return nil, err
	}
	if err := s.SetLen(len(spelling)); err != nil {
		h.Free(s)
		return nil, err
	}
	copy(s.Data(), spelling)
	if err := h.Manage(s); err != nil {
		return nil, err
	}
	s.Freeze()
	h.symbols[spelling] = s
	return s, nil
}

// Spelling reads back an interned symbol's text.
func Spelling(symbol *Series) string {
	if !symbol.IsSymbol() {
		panic("spelling of non-symbol series")
	}
	return string(symbol.Data())
}

// MakeHandle wraps a foreign resource in a singular array whose one
// cell is a handle value. cleaner runs exactly once, when the owning
// array decays.
func (h *Heap) MakeHandle(resource any, cleaner cairncore.Cleaner) (*Series, error) {
	a, err := h.MakeArray(1, 0)
	if err != nil {
		return nil, err
	}
	if err := a.SetLen(1); err != nil {
		h.Free(a)
		return nil, err
	}
	a.resource = resource
	a.cleaner = cleaner
	a.At(0).setHandle(a)
	return a, nil
}

// Expand grows s by delta elements at index, applying the three-tier
// policy: consume head bias, slide in place, or reallocate with a
// doubling margin for recently-expanded series. A zero delta is a
// no-op. References into the series from before the call must be
// treated as invalid afterward.
func (h *Heap) Expand(s *Series, index, delta int) error {
	if delta == 0 {
		return nil
	}
	if delta < 0 {
		panic(fmt.Sprintf("negative expand delta %d", delta))
	}
	if index < 0 || index > s.length {
		panic(fmt.Sprintf("expand at %d outside length %d", index, s.length))
	}
	if err := s.ensureMutable(); err != nil {
		return err
	}
	if s.flags&SeriesFixedSize != 0 {
		return errors.FixedSize("series")
	}
	if s.length+delta > maxSeriesLen {
		return errors.CapacityOverflow(s.length, delta)
	}

	// Head insertion consuming bias: shift the logical start backward,
	// no data movement.
	if index == 0 && s.bias >= delta {
		s.bias -= delta
		s.rest += delta
		s.length += delta
		h.prepGap(s, 0, delta)
		return nil
	}

	// In-place slide within existing slack.
	if s.length+delta+1 <= s.rest {
		h.slideRight(s, index, delta)
		s.length += delta
		h.prepGap(s, index, delta)
		s.term()
		return nil
	}

	return h.reallocate(s, index, delta)
}

func (h *Heap) slideRight(s *Series, index, delta int) {
	if s.wide == 0 {
		raw := s.rawCells()
		copy(raw[s.bias+index+delta:], raw[s.bias+index:s.bias+s.length])
		return
	}
	w := int(s.wide)
	raw := s.rawBytes()
	copy(raw[(s.bias+index+delta)*w:], raw[(s.bias+index)*w:(s.bias+s.length)*w])
}

// prepGap freshens the inserted region so it never aliases stale tail
// data.
func (h *Heap) prepGap(s *Series, index, delta int) {
	if s.wide == 0 {
		raw := s.rawCells()
		for i := index; i < index+delta; i++ {
			raw[s.bias+i].Prep()
		}
		return
	}
	w := int(s.wide)
	raw := s.rawBytes()
	clear(raw[(s.bias+index)*w : (s.bias+index+delta)*w])
}

// reallocate is expansion tier three: new backing, copy around the
// gap, release the old buffer de-biased.
func (h *Heap) reallocate(s *Series, index, delta int) error {
	needed := s.length + delta
	units := needed + 2
	if h.wasRecentlyExpanded(s) || s.flags&SeriesPowerOfTwo != 0 {
		units = needed * 2
	}
	if units > maxSeriesLen {
		units = needed + 1
	}

	oldLen := s.length
	if s.wide == 0 {
		oldRaw := s.rawCells()
		oldChunk := s.cells
		wasDynamic := s.info&infoDynamic != 0
		chunk, err := h.cellData.Alloc(units)
		if err != nil {
			return err
		}
		data := chunk.Data
		copy(data[:index], oldRaw[s.bias:s.bias+index])
		copy(data[index+delta:], oldRaw[s.bias+index:s.bias+oldLen])
		for i := index; i < index+delta; i++ {
			data[i].Prep()
		}
		s.cells = chunk
		s.rest = len(data)
		if wasDynamic {
			h.cellData.Free(oldChunk)
		}
	} else {
		w := int(s.wide)
		oldRaw := s.rawBytes()
		oldChunk := s.bytes
		wasDynamic := s.info&infoDynamic != 0
		chunk, err := h.byteData.Alloc(units * w)
		if err != nil {
			return err
		}
		data := chunk.Data
		copy(data[:index*w], oldRaw[s.bias*w:(s.bias+index)*w])
		copy(data[(index+delta)*w:], oldRaw[(s.bias+index)*w:(s.bias+oldLen)*w])
		s.bytes = chunk
		s.rest = len(data) / w
		if wasDynamic {
			h.byteData.Free(oldChunk)
		}
	}
	s.bias = 0
	s.info |= infoDynamic
	s.length = oldLen + delta
	s.term()
	h.recordExpand(s)
	return nil
}

// recordExpand notes s in the ring. First empty slot wins; a full
// ring evicts round-robin.
func (h *Heap) recordExpand(s *Series) {
	for _, p := range h.priorExpand {
		if p == s {
			return
		}
	}
	for i, p := range h.priorExpand {
		if p == nil {
			h.priorExpand[i] = s
			return
		}
	}
	h.priorExpand[h.evict%priorExpandSlots] = s
	h.evict++
}

func (h *Heap) wasRecentlyExpanded(s *Series) bool {
	for _, p := range h.priorExpand {
		if p == s {
			return true
		}
	}
	return false
}

func (h *Heap) clearRecent(s *Series) {
	for i, p := range h.priorExpand {
		if p == s {
			h.priorExpand[i] = nil
		}
	}
}

// AppendBytes grows a flat series at the tail and copies data in.
func (h *Heap) AppendBytes(s *Series, data []byte) error {
	if s.wide == 0 {
		panic("byte append on array series")
	}
	w := int(s.wide)
	if len(data)%w != 0 {
		panic(fmt.Sprintf("append of %d bytes to series of width %d", len(data), w))
	}
	old := s.length
	if err := h.Expand(s, old, len(data)/w); err != nil {
		return err
	}
	copy(s.Data()[old*w:], data)
	return nil
}

// AppendCell grows an array at the tail and copies src into the new
// slot. src must be specific; relative cells cross boundaries only
// through Derelativize.
func (h *Heap) AppendCell(a *Series, src *Cell) error {
	if !a.IsArray() {
		panic("cell append on flat series")
	}
	old := a.length
	if err := h.Expand(a, old, 1); err != nil {
		return err
	}
	a.At(old).Derelativize(src, nil)
	return nil
}

// trackManual registers a freshly made series for leak detection.
func (h *Heap) trackManual(s *Series) {
	h.manuals = append(h.manuals, s)
}

// untrackManual removes exactly one registration. Most frees hit
// recent allocations, so the scan runs newest-first.
func (h *Heap) untrackManual(s *Series) {
	for i := len(h.manuals) - 1; i >= 0; i-- {
		if h.manuals[i] == s {
			last := len(h.manuals) - 1
			h.manuals[i] = h.manuals[last]
			h.manuals[last] = nil
			h.manuals = h.manuals[:last]
			return
		}
	}
	panic("series not in manual registry")
}

// Manage transfers a manual series to collector ownership. Managing
// twice is an error, not a no-op: the second call means two owners
// both believed they held the manual lifetime.
func (h *Heap) Manage(s *Series) error {
	if s.IsManaged() {
		return errors.Unbalanced("manage of already-managed series")
	}
	h.untrackManual(s)
	s.info |= infoManaged
	return nil
}

// Unmanage reverses Manage for the narrow cases that need it.
func (h *Heap) Unmanage(s *Series) error {
	if !s.IsManaged() {
		return errors.Unbalanced("unmanage of manual series")
	}
	s.info &^= infoManaged
	h.trackManual(s)
	return nil
}

// Free releases a manual series: decay hooks run, the backing returns
// to its table, and the node becomes a tombstone. Managed series may
// only be reclaimed by the collector through KillSeries.
func (h *Heap) Free(s *Series) {
	if s.IsManaged() {
		panic("Free of managed series")
	}
	h.untrackManual(s)
	h.dropSeries(s)
}

// KillSeries is the collector's reclamation entry point. It accepts
// both lifecycles, since a sweep may reap a manual series whose owner
// died with it registered.
func (h *Heap) KillSeries(s *Series) {
	if !s.IsManaged() {
		h.untrackManual(s)
	}
	h.dropSeries(s)
}

// dropSeries retires a node. The record stays in its pool slot with
// the decayed state intact, so a pointer held past the free keeps
// reading inaccessible instead of aliasing a reused allocation. Slots
// come back wholesale when the node pool is released at shutdown.
func (h *Heap) dropSeries(s *Series) {
	if s.info&infoRetired != 0 {
		panic("double free of series")
	}
	h.Decay(s)
	s.info |= infoRetired
	h.retired++
}

// Decay releases everything a series owns besides its node: dynamic
// backing, a symbol's registry entry, a handle's resource. Varlists
// and paramlists keep their archetype cell readable afterward, since
// context and action references outlive their storage. Decay is
// idempotent.
func (h *Heap) Decay(s *Series) {
	if s.info&infoInaccessible != 0 {
		return
	}
	h.clearRecent(s)

	if s.IsSymbol() {
		delete(h.symbols, string(s.Data()))
	}
	if s.cleaner != nil {
		s.cleaner(s.resource)
		s.cleaner = nil
		s.resource = nil
	}

	if (s.IsVarlist() || s.IsParamlist()) && s.length > 0 {
		archetype := *s.At(0)
		h.freeBacking(s)
		s.embedCells[0] = archetype
		s.embedCells[1].SetEnd()
		s.bias = 0
		s.rest = len(s.embedCells)
		s.length = 1
	} else {
		h.freeBacking(s)
		s.bias = 0
		s.rest = 0
		s.length = 0
	}
	s.info |= infoInaccessible
}

// Archetype reads slot 0 of a varlist or paramlist. It stays valid
// after decay.
func (s *Series) Archetype() *Cell {
	if !s.IsVarlist() && !s.IsParamlist() {
		panic("archetype of plain series")
	}
	if s.info&infoInaccessible != 0 {
		return &s.embedCells[0]
	}
	return &s.rawCells()[s.bias]
}

// SwapContent exchanges the backing storage and size metadata of two
// series while both identities stay where they are. Only series of
// the same broad category may swap; moving cell content into a flat
// series would break element-width invariants everywhere.
func (h *Heap) SwapContent(a, b *Series) {
	a.assertAccessible()
	b.assertAccessible()
	if a.IsArray() != b.IsArray() {
		panic("content swap across series categories")
	}
	a.wide, b.wide = b.wide, a.wide
	a.bias, b.bias = b.bias, a.bias
	a.length, b.length = b.length, a.length
	a.rest, b.rest = b.rest, a.rest
	a.bytes, b.bytes = b.bytes, a.bytes
	a.cells, b.cells = b.cells, a.cells
	a.embedCells, b.embedCells = b.embedCells, a.embedCells
	a.embedBytes, b.embedBytes = b.embedBytes, a.embedBytes
	a.cleaner, b.cleaner = b.cleaner, a.cleaner
	a.resource, b.resource = b.resource, a.resource
	da := a.info & infoDynamic
	db := b.info & infoDynamic
	a.info = a.info&^infoDynamic | db
	b.info = b.info&^infoDynamic | da
}

// Remake discards and rebuilds the dynamic storage of an existing
// identity with room for units elements of the given width. With
// preserve set, the overlapping prefix of old content survives; the
// widths must match for that.
func (h *Heap) Remake(s *Series, units, wide int, preserve bool) error {
	if err := s.ensureMutable(); err != nil {
		return err
	}
	if s.flags&SeriesFixedSize != 0 {
		return errors.FixedSize("series")
	}
	if preserve && wide != s.Wide() {
		panic("remake cannot preserve content across an element width change")
	}
	if units >= maxSeriesLen {
		return errors.CapacityOverflow(s.length, units)
	}

	oldWide := s.wide
	oldLen := s.length
	oldBias := s.bias
	oldDynamic := s.info&infoDynamic != 0
	oldCells := s.cells
	oldBytes := s.bytes
	var oldRawCells []Cell
	var oldRawBytes []byte
	if preserve {
		if oldWide == 0 {
			oldRawCells = s.rawCells()
		} else {
			oldRawBytes = s.rawBytes()
		}
	}

	s.wide = uint8(wide)
	s.cells = mem.Chunk[Cell]{}
	s.bytes = mem.Chunk[byte]{}
	s.info &^= infoDynamic
	if err := h.allocBacking(s, units+1); err != nil {
		// Restore the old storage; the identity must stay usable.
		s.wide = oldWide
		s.cells = oldCells
		s.bytes = oldBytes
		if oldDynamic {
			s.info |= infoDynamic
		}
		return err
	}

	s.length = 0
	if preserve {
		keep := oldLen
		if keep > units {
			keep = units
		}
		if wide == 0 {
			copy(s.cells.Data[:keep], oldRawCells[oldBias:oldBias+keep])
		} else {
			copy(s.bytes.Data[:keep*wide], oldRawBytes[oldBias*wide:(oldBias+keep)*wide])
		}
		s.length = keep
	}
	s.term()

	if oldDynamic {
		if oldWide == 0 {
			h.cellData.Free(oldCells)
		} else {
			h.byteData.Free(oldBytes)
		}
	}
	return nil
}

// AllocPairing hands out a two-cell allocation from the pairing pool.
// The returned pointer addresses the first cell; Paired reaches the
// second. A pairing starts manual, like a series.
func (h *Heap) AllocPairing() *Cell {
	chunk, ref := h.pairs.AllocChunk()
	chunk[0].Prep()
	chunk[1].Prep()
	c := &chunk[0]
	h.pairings[c] = pairingEntry{ref: ref}
	return c
}

// Paired returns the companion cell of a pairing.
func (h *Heap) Paired(c *Cell) *Cell {
	entry, ok := h.pairings[c]
	if !ok {
		panic("cell is not a pairing head")
	}
	return &h.pairs.Slice(entry.ref)[1]
}

func (h *Heap) ManagePairing(c *Cell) error {
	entry, ok := h.pairings[c]
	if !ok {
		panic("cell is not a pairing head")
	}
	if entry.managed {
		return errors.Unbalanced("manage of already-managed pairing")
	}
	entry.managed = true
	h.pairings[c] = entry
	return nil
}

func (h *Heap) UnmanagePairing(c *Cell) error {
	entry, ok := h.pairings[c]
	if !ok {
		panic("cell is not a pairing head")
	}
	if !entry.managed {
		return errors.Unbalanced("unmanage of manual pairing")
	}
	entry.managed = false
	h.pairings[c] = entry
	return nil
}

// FreePairing releases a manual pairing. Managed pairings belong to
// the collector.
func (h *Heap) FreePairing(c *Cell) {
	entry, ok := h.pairings[c]
	if !ok {
		panic("cell is not a pairing head")
	}
	if entry.managed {
		panic("FreePairing of managed pairing")
	}
	delete(h.pairings, c)
	h.pairs.Free(entry.ref)
}

// Stats implements cairncore.StatsSource across every pool and table.
func (h *Heap) Stats() []cairncore.PoolStats {
	out := []cairncore.PoolStats{h.nodes.Stats(), h.pairs.Stats()}
	out = append(out, h.byteData.Stats()...)
	out = append(out, h.cellData.Stats()...)
	return out
}

// Shutdown tears the heap down. Outstanding manual series or pairings
// are leaks: they are logged, reclaimed anyway so accounting
// balances, and reported as an error.
func (h *Heap) Shutdown() error {
	leaks := len(h.manuals)
	for c, entry := range h.pairings {
		if !entry.managed {
			leaks++
		}
		h.pairs.Free(entry.ref)
		delete(h.pairings, c)
	}
	for len(h.manuals) > 0 {
		s := h.manuals[len(h.manuals)-1]
		Logger().Error("manual series leaked",
			zap.Int("wide", s.Wide()),
			zap.Int("len", s.Len()))
		h.Free(s)
	}

	// Managed series still in the node pool go down with it.
	h.nodes.Range(func(_ mem.Ref, chunk []Series) bool {
		h.Decay(&chunk[0])
		return true
	})

	h.byteData.Release()
	h.cellData.Release()
	h.pairs.Release()
	h.nodes.Release()
	h.symbols = nil
	h.priorExpand = [priorExpandSlots]*Series{}
	h.retired = 0

	if leaks > 0 {
		return errors.Leak(leaks)
	}
	return nil
}
