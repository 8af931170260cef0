package value

// Kind is the discriminant tag of a Cell. The first two entries are
// pseudo-kinds: END marks the logical tail of a cell sequence and
// TRASH marks a prepared but unwritten slot. Neither represents a
// value, and both are rejected by every payload accessor.
type Kind uint8

const (
	KindEnd Kind = iota
	KindTrash

	KindNull
	KindBlank
	KindLogic
	KindInteger
	KindDecimal
	KindMoney
	KindTuple
	KindWord
	KindBinary
	KindText
	KindBlock
	KindGroup
	KindHandle
	KindAction
	KindContext

	kindMax
)

var kindNames = [...]string{
	KindEnd:     "end",
	KindTrash:   "trash",
	KindNull:    "null",
	KindBlank:   "blank",
	KindLogic:   "logic",
	KindInteger: "integer",
	KindDecimal: "decimal",
	KindMoney:   "money",
	KindTuple:   "tuple",
	KindWord:    "word",
	KindBinary:  "binary",
	KindText:    "text",
	KindBlock:   "block",
	KindGroup:   "group",
	KindHandle:  "handle",
	KindAction:  "action",
	KindContext: "context",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// IsReal reports whether k is an actual value kind rather than one of
// the END/TRASH pseudo-states.
func (k Kind) IsReal() bool {
	return k > KindTrash && k < kindMax
}

// IsSeriesKind reports whether cells of kind k carry a series
// reference plus index in their payload.
func (k Kind) IsSeriesKind() bool {
	switch k {
	case KindBinary, KindText, KindBlock, KindGroup:
		return true
	}
	return false
}

// IsArrayKind reports whether cells of kind k reference a cell-array
// series.
func (k Kind) IsArrayKind() bool {
	return k == KindBlock || k == KindGroup
}
