package value

import "fmt"

// Flags carries per-cell state orthogonal to the kind.
type Flags uint16

const (
	// FlagFalsey marks the cell as conditionally false (null, blank,
	// and false logic).
	FlagFalsey Flags = 1 << iota

	// FlagStackResident marks a cell living in the data stack or a
	// frame slot. It belongs to the slot, not the value, and survives
	// any write into the slot.
	FlagStackResident

	// FlagProtected rejects writes through enforced-protection paths.
	FlagProtected

	// FlagTransient marks a cell whose payload must not outlive the
	// current evaluator step.
	FlagTransient

	// FlagRelative marks a word whose binding is a paramlist: the
	// variable is scoped to a function body that has no concrete
	// frame yet. Derelativize resolves it against a specifier before
	// the cell may leave the body.
	FlagRelative
)

// persistFlags stay with the destination slot across Move and Reset.
const persistFlags = FlagStackResident

// Tuple is a small inline byte sequence, at most 7 elements.
type Tuple struct {
	data [7]byte
	n    uint8
}

// MakeTuple builds a Tuple, panicking if b exceeds the inline budget.
func MakeTuple(b ...byte) Tuple {
	var t Tuple
	if len(b) > len(t.data) {
		panic(fmt.Sprintf("tuple of %d bytes exceeds inline budget %d", len(b), len(t.data)))
	}
	t.n = uint8(copy(t.data[:], b))
	return t
}

func (t Tuple) Len() int { return int(t.n) }

func (t Tuple) At(i int) byte {
	if i < 0 || i >= int(t.n) {
		panic(fmt.Sprintf("tuple index %d out of range %d", i, t.n))
	}
	return t.data[i]
}

// payload is the kind-dependent portion of a cell. Go has no untagged
// unions; the fields coexist and the kind decides which ones are
// meaningful. Accessors enforce that decision.
type payload struct {
	i     int64
	f     float64
	money Money
	tuple Tuple
	node  *Series
	index int
}

// Cell is the fixed-size tagged value record. It references series by
// identity and never owns heap memory itself.
type Cell struct {
	kind    Kind
	flags   Flags
	binding *Series
	payload payload
}

// Prep puts the cell into the trash pseudo-state: valid header,
// meaningless payload. Every slot must be prepped before first use.
func (c *Cell) Prep() {
	c.kind = KindTrash
	c.flags &= persistFlags
	c.binding = nil
	c.payload = payload{}
}

// SetEnd writes the END pseudo-state. The payload is cleared so that
// a stale series reference cannot hide behind the sentinel.
func (c *Cell) SetEnd() {
	c.kind = KindEnd
	c.flags &= persistFlags
	c.binding = nil
	c.payload = payload{}
}

func (c *Cell) Kind() Kind    { return c.kind }
func (c *Cell) IsEnd() bool   { return c.kind == KindEnd }
func (c *Cell) IsTrash() bool { return c.kind == KindTrash }

// IsTruthy reports conditional truth. END and trash cells have no
// truth value and panic.
func (c *Cell) IsTruthy() bool {
	if !c.kind.IsReal() {
		panic(fmt.Sprintf("truth test on %s cell", c.kind))
	}
	return c.flags&FlagFalsey == 0
}

func (c *Cell) Flags() Flags         { return c.flags }
func (c *Cell) HasFlag(f Flags) bool { return c.flags&f != 0 }
func (c *Cell) SetFlag(f Flags)      { c.flags |= f }
func (c *Cell) ClearFlag(f Flags)    { c.flags &^= f }
func (c *Cell) IsRelative() bool     { return c.flags&FlagRelative != 0 }
func (c *Cell) Binding() *Series     { return c.binding }
func (c *Cell) SetBinding(b *Series) { c.binding = b }

// reset overwrites header and payload for a new kind, keeping only
// the slot-persistent flags.
func (c *Cell) reset(k Kind, extra Flags) {
	if !k.IsReal() {
		panic(fmt.Sprintf("reset to pseudo-kind %s", k))
	}
	c.kind = k
	c.flags = c.flags&persistFlags | extra
	c.binding = nil
	c.payload = payload{}
}

// Reset prepares the cell to hold kind k with a zero payload.
func (c *Cell) Reset(k Kind) { c.reset(k, 0) }

func (c *Cell) check(k Kind) {
	if c.kind != k {
		panic(fmt.Sprintf("payload access as %s on %s cell", k, c.kind))
	}
}

func (c *Cell) SetNull()  { c.reset(KindNull, FlagFalsey) }
func (c *Cell) SetBlank() { c.reset(KindBlank, FlagFalsey) }

func (c *Cell) SetLogic(v bool) {
	extra := Flags(0)
	if !v {
		extra = FlagFalsey
	}
	c.reset(KindLogic, extra)
	if v {
		c.payload.i = 1
	}
}

func (c *Cell) Logic() bool {
	c.check(KindLogic)
	return c.payload.i != 0
}

func (c *Cell) SetInteger(v int64) {
	c.reset(KindInteger, 0)
	c.payload.i = v
}

func (c *Cell) Integer() int64 {
	c.check(KindInteger)
	return c.payload.i
}

func (c *Cell) SetDecimal(v float64) {
	c.reset(KindDecimal, 0)
	c.payload.f = v
}

func (c *Cell) Decimal() float64 {
	c.check(KindDecimal)
	return c.payload.f
}

func (c *Cell) SetMoney(v Money) {
	c.reset(KindMoney, 0)
	c.payload.money = v
}

func (c *Cell) Money() Money {
	c.check(KindMoney)
	return c.payload.money
}

func (c *Cell) SetTuple(v Tuple) {
	c.reset(KindTuple, 0)
	c.payload.tuple = v
}

func (c *Cell) Tuple() Tuple {
	c.check(KindTuple)
	return c.payload.tuple
}

// SetWord binds the cell to an interned symbol series. The binding
// field stays nil (unbound) until Bind attaches a context.
func (c *Cell) SetWord(symbol *Series) {
	if symbol == nil || !symbol.IsSymbol() {
		panic("word requires an interned symbol series")
	}
	c.reset(KindWord, 0)
	c.payload.node = symbol
}

func (c *Cell) WordSymbol() *Series {
	c.check(KindWord)
	return c.payload.node
}

// BindRelative scopes a word to a paramlist; the word cannot be read
// through until derelativized against a concrete varlist.
func (c *Cell) BindRelative(paramlist *Series) {
	c.check(KindWord)
	if paramlist == nil || !paramlist.IsParamlist() {
		panic("relative binding requires a paramlist")
	}
	c.binding = paramlist
	c.flags |= FlagRelative
}

// Bind attaches a specific binding: the varlist holding the word's
// variable.
func (c *Cell) Bind(varlist *Series) {
	c.check(KindWord)
	if varlist != nil && !varlist.IsVarlist() {
		panic("specific binding requires a varlist")
	}
	c.binding = varlist
	c.flags &^= FlagRelative
}

// SetSeries writes a series-referencing payload (binary, text, block,
// group) positioned at index.
func (c *Cell) SetSeries(k Kind, s *Series, index int) {
	if !k.IsSeriesKind() {
		panic(fmt.Sprintf("%s is not a series kind", k))
	}
	if k.IsArrayKind() != s.IsArray() {
		panic(fmt.Sprintf("%s cell cannot reference a series of width %d", k, s.Wide()))
	}
	c.reset(k, 0)
	c.payload.node = s
	c.payload.index = index
}

func (c *Cell) Series() *Series {
	if !c.kind.IsSeriesKind() {
		panic(fmt.Sprintf("series access on %s cell", c.kind))
	}
	return c.payload.node
}

func (c *Cell) Index() int {
	if !c.kind.IsSeriesKind() {
		panic(fmt.Sprintf("series access on %s cell", c.kind))
	}
	return c.payload.index
}

// SetContext references a context's varlist.
func (c *Cell) SetContext(varlist *Series) {
	if varlist == nil || !varlist.IsVarlist() {
		panic("context cell requires a varlist")
	}
	c.reset(KindContext, 0)
	c.payload.node = varlist
}

func (c *Cell) Context() *Series {
	c.check(KindContext)
	return c.payload.node
}

// SetAction references an action's paramlist.
func (c *Cell) SetAction(paramlist *Series) {
	if paramlist == nil || !paramlist.IsParamlist() {
		panic("action cell requires a paramlist")
	}
	c.reset(KindAction, 0)
	c.payload.node = paramlist
}

func (c *Cell) Action() *Series {
	c.check(KindAction)
	return c.payload.node
}

// setHandle is written only by Heap.MakeHandle; the owner is the
// singular array holding this cell.
func (c *Cell) setHandle(owner *Series) {
	c.reset(KindHandle, 0)
	c.payload.node = owner
}

// HandleOwner returns the singular array that owns the handle's
// resource.
func (c *Cell) HandleOwner() *Series {
	c.check(KindHandle)
	return c.payload.node
}

// HandleResource returns the foreign resource carried by the handle.
func (c *Cell) HandleResource() any {
	c.check(KindHandle)
	return c.payload.node.resource
}

// Move transfers src into dst, preserving dst's slot-persistent flags,
// and leaves src as trash. A plain copy could smuggle a binding across
// a lifetime boundary; transfer makes the handoff explicit.
func (dst *Cell) Move(src *Cell) {
	if !src.kind.IsReal() {
		panic(fmt.Sprintf("move of %s cell", src.kind))
	}
	dst.kind = src.kind
	dst.flags = dst.flags&persistFlags | src.flags&^persistFlags
	dst.binding = src.binding
	dst.payload = src.payload
	src.Prep()
}

// Derelativize copies src into dst, resolving a relative binding
// against specifier (the varlist instantiating the paramlist the word
// was scoped to). It is the required copy primitive when a cell
// crosses an ownership boundary.
func (dst *Cell) Derelativize(src *Cell, specifier *Series) {
	if !src.kind.IsReal() {
		panic(fmt.Sprintf("copy of %s cell", src.kind))
	}
	dst.kind = src.kind
	dst.flags = dst.flags&persistFlags | src.flags&^persistFlags
	dst.binding = src.binding
	dst.payload = src.payload
	if src.flags&FlagRelative != 0 {
		if specifier == nil || !specifier.IsVarlist() {
			panic("relative cell copied without a specifier")
		}
		dst.binding = specifier
		dst.flags &^= FlagRelative
	}
}
