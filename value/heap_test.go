package value

import (
	"errors"
	"testing"

	cerrors "github.com/cairnscript/cairn-core/errors"
	"github.com/cairnscript/cairn-core/mem"
)

func TestManualManagedExclusivity(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.IsManaged() {
		t.Fatal("Fresh series must start manual")
	}
	if h.ManualCount() != 1 {
		t.Fatalf("Manual registry holds %d entries", h.ManualCount())
	}

	if err := h.Manage(s); err != nil {
		t.Fatal(err)
	}
	if !s.IsManaged() || h.ManualCount() != 0 {
		t.Fatal("Manage must set the bit and clear the registry entry")
	}

	// Managing twice means two owners both thought the lifetime was
	// theirs.
	if err := h.Manage(s); err == nil {
		t.Fatal("Double manage must be an error")
	}

	mustPanic(t, "free of managed series", func() { h.Free(s) })

	if err := h.Unmanage(s); err != nil {
		t.Fatal(err)
	}
	if s.IsManaged() || h.ManualCount() != 1 {
		t.Fatal("Unmanage must restore the manual state")
	}
	if err := h.Unmanage(s); err == nil {
		t.Fatal("Unmanage of a manual series must be an error")
	}
	h.Free(s)
}

func TestKillSeriesAcceptsBothLifecycles(t *testing.T) {
	h := newTestHeap(t)

	manual, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.KillSeries(manual)
	if h.ManualCount() != 0 {
		t.Fatal("KillSeries left a registry entry behind")
	}

	managed, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Manage(managed); err != nil {
		t.Fatal(err)
	}
	h.KillSeries(managed)
	if managed.IsAccessible() {
		t.Fatal("Killed series must be inaccessible")
	}
}

func TestSymbolInterning(t *testing.T) {
	h := newTestHeap(t)

	a, err := h.MakeSymbol("print")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.MakeSymbol("print")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("Same spelling must intern to the same series")
	}
	if Spelling(a) != "print" {
		t.Fatalf("Spelling = %q", Spelling(a))
	}
	if !a.IsManaged() || !a.IsFrozen() {
		t.Fatal("Symbols are heap-owned and immutable")
	}

	other, err := h.MakeSymbol("quit")
	if err != nil {
		t.Fatal(err)
	}
	if other == a {
		t.Fatal("Distinct spellings must not share a series")
	}

	// Decay drops the registration; the spelling can intern fresh.
	h.KillSeries(a)
	c, err := h.MakeSymbol("print")
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Fatal("Decayed symbol identity must not be resurrected")
	}
}

func TestHandleCleanupRunsOnce(t *testing.T) {
	h := newTestHeap(t)

	cleaned := 0
	var got any
	owner, err := h.MakeHandle("resource", func(r any) {
		cleaned++
		got = r
	})
	if err != nil {
		t.Fatal(err)
	}

	c := owner.At(0)
	if c.Kind() != KindHandle || c.HandleOwner() != owner {
		t.Fatal("Handle cell must point back at its owning array")
	}
	if c.HandleResource() != "resource" {
		t.Fatal("Resource lost")
	}

	h.Free(owner)
	if cleaned != 1 || got != "resource" {
		t.Fatalf("Cleaner ran %d times with %v", cleaned, got)
	}

	// Decay is idempotent; a second decay must not re-run the hook.
	h.Decay(owner)
	if cleaned != 1 {
		t.Fatal("Cleaner ran again on re-decay")
	}
}

func TestDecayPreservesArchetype(t *testing.T) {
	h := newTestHeap(t)
	varlist, err := h.MakeVarlist(3)
	if err != nil {
		t.Fatal(err)
	}
	if varlist.Archetype().Context() != varlist {
		t.Fatal("Archetype must reference its own varlist")
	}

	h.Free(varlist)
	if varlist.IsAccessible() {
		t.Fatal("Decayed varlist should be inaccessible")
	}
	if varlist.Archetype().Context() != varlist {
		t.Fatal("Archetype must stay readable after decay")
	}
	mustPanic(t, "element access on decayed series", func() { varlist.At(1) })
}

func TestSwapContent(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.MakeSeries(64, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(a, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(b, []byte{9, 9, 9}); err != nil {
		t.Fatal(err)
	}

	h.SwapContent(a, b)
	if a.Len() != 3 || a.Byte(0) != 9 {
		t.Fatalf("a holds len %d first %d", a.Len(), a.Byte(0))
	}
	if b.Len() != 2 || b.Byte(1) != 2 {
		t.Fatalf("b holds len %d second %d", b.Len(), b.Byte(1))
	}

	arr, err := h.MakeArray(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "swap across categories", func() { h.SwapContent(a, arr) })

	h.Free(a)
	h.Free(b)
	h.Free(arr)
}

func TestRemake(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(s, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	// Preserving remake keeps the overlapping prefix.
	if err := h.Remake(s, 2, 1, true); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 || s.Byte(0) != 1 || s.Byte(1) != 2 {
		t.Fatalf("Preserved %v", s.Data())
	}

	// Width-changing remake discards content.
	if err := h.Remake(s, 4, 0, false); err != nil {
		t.Fatal(err)
	}
	if !s.IsArray() || s.Len() != 0 {
		t.Fatalf("Remade wide=%d len=%d", s.Wide(), s.Len())
	}
	if !s.Tail().IsEnd() {
		t.Fatal("Remade array must be END-terminated")
	}
	h.Free(s)
}

func TestPairings(t *testing.T) {
	h := newTestHeap(t)

	c := h.AllocPairing()
	if !c.IsTrash() || !h.Paired(c).IsTrash() {
		t.Fatal("Fresh pairing cells must be prepped")
	}
	c.SetInteger(1)
	h.Paired(c).SetInteger(2)
	if h.Paired(c).Integer() != 2 {
		t.Fatal("Companion cell lost its value")
	}

	if err := h.ManagePairing(c); err != nil {
		t.Fatal(err)
	}
	if err := h.ManagePairing(c); err == nil {
		t.Fatal("Double manage of pairing must be an error")
	}
	mustPanic(t, "free of managed pairing", func() { h.FreePairing(c) })

	if err := h.UnmanagePairing(c); err != nil {
		t.Fatal(err)
	}
	h.FreePairing(c)

	var plain Cell
	plain.Prep()
	mustPanic(t, "paired of non-pairing", func() { h.Paired(&plain) })
}

func TestQuotaRefusalLeavesUsage(t *testing.T) {
	acct := mem.NewAccountant(0)
	h := NewHeap(1, acct, false)

	// Warm the node pool so the refusal below is the data table's, not
	// a segment fill.
	warm, err := h.MakeSeries(4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.Free(warm)
	acct.SetLimit(acct.Usage() + 16)

	before := acct.Usage()
	_, err = h.MakeSeries(64, 1, 0)
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseAlloc, Kind: cerrors.KindQuotaExceeded}) {
		t.Fatalf("Got %v, want quota error", err)
	}
	if acct.Usage() != before {
		t.Fatalf("Usage moved from %d to %d on refusal", before, acct.Usage())
	}
	if h.ManualCount() != 0 {
		t.Fatal("Refused series must not be registered")
	}
}

func TestExpandReleasesOldByteBacking(t *testing.T) {
	h := newTestHeap(t)

	// Past the big threshold both the original and the replacement
	// backing are system chunks, so the outstanding count shows
	// whether reallocation released the old one.
	s, err := h.MakeSeries(3000, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if count, _ := h.byteData.SystemStats(); count != 1 {
		t.Fatalf("%d system chunks after construction, want 1", count)
	}
	if err := h.AppendBytes(s, make([]byte, s.Cap())); err != nil {
		t.Fatal(err)
	}

	// Filled to capacity, growth at the tail must reallocate.
	if err := h.Expand(s, s.Len(), 2000); err != nil {
		t.Fatal(err)
	}
	if count, _ := h.byteData.SystemStats(); count != 1 {
		t.Fatalf("%d system chunks after reallocation, want 1", count)
	}

	h.Free(s)
	if count, _ := h.byteData.SystemStats(); count != 0 {
		t.Fatalf("%d system chunks after free, want 0", count)
	}
}

func TestFreedSeriesLeavesTombstone(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(s, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	h.Free(s)

	if s.IsAccessible() {
		t.Fatal("Freed series must read as inaccessible")
	}
	mustPanic(t, "stale read of freed series", func() { s.Data() })

	// The node slot stays tombstoned, so a stale pointer can never
	// alias the next allocation.
	n, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n == s {
		t.Fatal("Freed node identity was handed out again")
	}
	if h.RetiredCount() != 1 {
		t.Fatalf("RetiredCount = %d, want 1", h.RetiredCount())
	}
	h.Free(n)
}

func TestDoubleKillPanics(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Manage(s); err != nil {
		t.Fatal(err)
	}
	h.KillSeries(s)
	mustPanic(t, "second kill of the same series", func() { h.KillSeries(s) })
}

func TestRedecayOfFreedSeries(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.Free(s)

	// Decay after free is a no-op on the tombstone; it must not poison
	// storage a later allocation receives.
	h.Decay(s)
	n, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !n.IsAccessible() {
		t.Fatal("Fresh series born inaccessible")
	}
	if err := h.AppendBytes(n, []byte{7}); err != nil {
		t.Fatal(err)
	}
	if n.Byte(0) != 7 {
		t.Fatalf("Fresh series holds %d", n.Byte(0))
	}
	h.Free(n)
}

func TestOwnerOf(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.MakeArray(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	var v Cell
	v.Prep()
	v.SetInteger(5)
	if err := h.AppendCell(a, &v); err != nil {
		t.Fatal(err)
	}

	if got := h.OwnerOf(a.At(0)); got != a {
		t.Fatalf("OwnerOf = %v, want the array", got)
	}
	var outside Cell
	if got := h.OwnerOf(&outside); got != nil {
		t.Fatal("Foreign cell must have no owner")
	}
	h.Free(a)
}

func TestHeapShutdownReportsLeaks(t *testing.T) {
	h := newTestHeap(t)
	if _, err := h.MakeSeries(8, 1, 0); err != nil {
		t.Fatal(err)
	}
	h.AllocPairing()

	report := h.LeakReport()
	if len(report) != 2 {
		t.Fatalf("LeakReport listed %d objects, want 2", len(report))
	}

	err := h.Shutdown()
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseLifecycle, Kind: cerrors.KindLeak}) {
		t.Fatalf("Got %v, want leak error", err)
	}
}

func TestHeapShutdownClean(t *testing.T) {
	acct := mem.NewAccountant(0)
	h := NewHeap(1, acct, false)
	s, err := h.MakeSeries(100, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.MakeSymbol("word"); err != nil {
		t.Fatal(err)
	}
	h.Free(s)

	if err := h.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if acct.Usage() != 0 {
		t.Fatalf("Usage %d after shutdown, want 0", acct.Usage())
	}
}
