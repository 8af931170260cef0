package mem

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cairnscript/cairn-core/errors"
)

// Accountant tracks aggregate memory handed out by the allocation layer.
// Knowing the total lets the embedding system decide when to collect, and
// lets it refuse an allocation before the operating system would.
//
// Callers of FreeRaw must supply the exact size used at allocation time;
// there is no per-pointer bookkeeping.
type Accountant struct {
	usage uint64
	limit uint64 // 0 means unlimited
}

// NewAccountant creates an accountant with the given soft limit in bytes.
// A zero limit disables quota checking.
func NewAccountant(limit uint64) *Accountant {
	return &Accountant{limit: limit}
}

// Usage returns the bytes currently accounted as in use.
func (a *Accountant) Usage() uint64 { return a.usage }

// Limit returns the configured soft limit (0 = unlimited).
func (a *Accountant) Limit() uint64 { return a.limit }

// SetLimit adjusts the soft limit. Lowering it below current usage does
// not invalidate existing allocations; it only refuses new ones.
func (a *Accountant) SetLimit(limit uint64) { a.limit = limit }

// CheckQuota refuses a prospective allocation that would cross the limit.
// The usage counter is not modified by a refusal.
func (a *Accountant) CheckQuota(size uint64) error {
	if a.limit != 0 && a.usage+size > a.limit {
		Logger().Debug("allocation refused by quota",
			zap.Uint64("requested", size),
			zap.Uint64("usage", a.usage),
			zap.Uint64("limit", a.limit))
		return errors.QuotaExceeded(size, a.usage, a.limit)
	}
	return nil
}

// add records size bytes as in use. Used by pools and tables after a
// platform allocation succeeds.
func (a *Accountant) add(size uint64) { a.usage += size }

// sub records size bytes as released.
func (a *Accountant) sub(size uint64) {
	if size > a.usage {
		panic(fmt.Sprintf("mem: freeing %d bytes with only %d accounted", size, a.usage))
	}
	a.usage -= size
}

// AllocRaw allocates a plain byte buffer with quota enforcement. The
// returned buffer is exactly size bytes; callers must pass the same size
// to FreeRaw when releasing it.
func (a *Accountant) AllocRaw(size int) ([]byte, error) {
	if size < 0 {
		panic(fmt.Sprintf("mem: negative allocation size %d", size))
	}
	if err := a.CheckQuota(uint64(size)); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	a.add(uint64(size))
	return buf, nil
}

// FreeRaw returns a buffer obtained from AllocRaw. The size must match
// the allocation size exactly.
func (a *Accountant) FreeRaw(buf []byte, size int) {
	if len(buf) != size {
		panic(fmt.Sprintf("mem: FreeRaw size %d does not match buffer length %d", size, len(buf)))
	}
	a.sub(uint64(size))
}
