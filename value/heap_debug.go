package value

import (
	"fmt"

	"github.com/cairnscript/cairn-core/mem"
)

// CheckIntegrity walks every pool and table free list, panicking on
// corruption. The return value is the total count of free nodes
// walked, for test assertions.
func (h *Heap) CheckIntegrity() int {
	n := h.nodes.CheckIntegrity()
	n += h.pairs.CheckIntegrity()
	n += h.byteData.CheckIntegrity()
	n += h.cellData.CheckIntegrity()
	return n
}

// ManualCount reports how many series are registered manual.
func (h *Heap) ManualCount() int { return len(h.manuals) }

// RetiredCount reports how many freed nodes sit in the pool as
// tombstones awaiting segment release.
func (h *Heap) RetiredCount() int { return h.retired }

// OwnerOf scans the live series nodes for the one whose storage holds
// c, embedded or dynamic. Nil means c does not live in any series
// this heap owns. Debug aid only; the scan is linear in heap size.
func (h *Heap) OwnerOf(c *Cell) *Series {
	var owner *Series
	h.nodes.Range(func(_ mem.Ref, chunk []Series) bool {
		s := &chunk[0]
		for i := range s.embedCells {
			if &s.embedCells[i] == c {
				owner = s
				return false
			}
		}
		if s.wide == 0 && s.info&infoDynamic != 0 {
			for i := range s.cells.Data {
				if &s.cells.Data[i] == c {
					owner = s
					return false
				}
			}
		}
		return true
	})
	return owner
}

// LeakReport describes every outstanding manual series and pairing,
// identifying the object rather than just counting.
func (h *Heap) LeakReport() []string {
	var out []string
	for _, s := range h.manuals {
		out = append(out, fmt.Sprintf("manual series wide=%d len=%d cap=%d dynamic=%v",
			s.Wide(), s.Len(), s.Cap(), s.IsDynamic()))
	}
	for c, entry := range h.pairings {
		if !entry.managed {
			out = append(out, fmt.Sprintf("manual pairing kind=%s", c.Kind()))
		}
	}
	return out
}
