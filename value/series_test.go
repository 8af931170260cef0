package value

import (
	"bytes"
	"errors"
	"testing"

	cerrors "github.com/cairnscript/cairn-core/errors"
	"github.com/cairnscript/cairn-core/mem"
)

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	return NewHeap(1, mem.NewAccountant(0), false)
}

func TestSeriesCapacityInvariant(t *testing.T) {
	h := newTestHeap(t)
	for _, req := range []int{1, 4, 15, 16, 17, 100, 3000} {
		s, err := h.MakeSeries(req, 1, 0)
		if err != nil {
			t.Fatalf("MakeSeries(%d): %v", req, err)
		}
		if s.Cap() < req {
			t.Fatalf("MakeSeries(%d): capacity %d below request", req, s.Cap())
		}
		if s.Len() > s.Cap() {
			t.Fatalf("length %d above capacity %d", s.Len(), s.Cap())
		}
		h.Free(s)
	}
}

func TestSeriesEmbeddedVsDynamic(t *testing.T) {
	h := newTestHeap(t)

	small, err := h.MakeSeries(4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if small.IsDynamic() {
		t.Fatal("4 bytes should live embedded")
	}

	forced, err := h.MakeSeries(4, 1, SeriesAlwaysDynamic)
	if err != nil {
		t.Fatal(err)
	}
	if !forced.IsDynamic() {
		t.Fatal("SeriesAlwaysDynamic should skip embedding")
	}

	big, err := h.MakeSeries(64, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !big.IsDynamic() {
		t.Fatal("64 bytes cannot live embedded")
	}

	single, err := h.MakeArray(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if single.IsDynamic() {
		t.Fatal("Singular array should live embedded")
	}

	h.Free(small)
	h.Free(forced)
	h.Free(big)
	h.Free(single)
}

func TestSeriesByteRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.AppendBytes(s, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 4 {
		t.Fatalf("Length %d after four appends", s.Len())
	}
	if err := h.AppendBytes(s, []byte{5}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 5 {
		t.Fatalf("Length %d, want 5", s.Len())
	}
	if s.Byte(4) != 5 {
		t.Fatalf("at(4) = %d, want 5", s.Byte(4))
	}
	if !bytes.Equal(s.Data(), []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("Content %v", s.Data())
	}

	// Push past the embedded budget so the content crosses into
	// dynamic backing, and verify nothing moved logically.
	for i := byte(6); i <= 40; i++ {
		if err := h.AppendBytes(s, []byte{i}); err != nil {
			t.Fatal(err)
		}
	}
	if !s.IsDynamic() {
		t.Fatal("40 bytes should be dynamic")
	}
	for i := 0; i < 40; i++ {
		if s.Byte(i) != byte(i+1) {
			t.Fatalf("at(%d) = %d after growth", i, s.Byte(i))
		}
	}
	h.Free(s)
}

func TestExpandCorrectness(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(s, []byte{10, 11, 12, 13, 14, 15}); err != nil {
		t.Fatal(err)
	}

	// Mid insertion: prefix intact, tail shifted, gap zeroed.
	if err := h.Expand(s, 2, 3); err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 11, 0, 0, 0, 12, 13, 14, 15}
	if !bytes.Equal(s.Data(), want) {
		t.Fatalf("Got %v, want %v", s.Data(), want)
	}

	// Zero delta is a no-op.
	before := s.Len()
	if err := h.Expand(s, 0, 0); err != nil {
		t.Fatal(err)
	}
	if s.Len() != before {
		t.Fatal("Zero-delta expand changed length")
	}

	// Tail expansion exactly filling the slack still terminates.
	slack := s.Cap() - s.Len()
	ident := s.DataIdentity()
	if err := h.Expand(s, s.Len(), slack); err != nil {
		t.Fatal(err)
	}
	if s.DataIdentity() != ident {
		t.Fatal("Expand within slack must not relocate")
	}
	if s.Len() != s.Cap() {
		t.Fatalf("Length %d, capacity %d", s.Len(), s.Cap())
	}
	h.Free(s)
}

func TestExpandArrayPrepsGap(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.MakeArray(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	var v Cell
	v.Prep()
	for i := int64(1); i <= 3; i++ {
		v.SetInteger(i)
		if err := h.AppendCell(a, &v); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.Expand(a, 1, 2); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 5 {
		t.Fatalf("Length %d", a.Len())
	}
	if a.At(0).Integer() != 1 {
		t.Fatal("Prefix damaged")
	}
	if !a.At(1).IsTrash() || !a.At(2).IsTrash() {
		t.Fatal("Gap cells must be freshly prepared, not stale values")
	}
	if a.At(3).Integer() != 2 || a.At(4).Integer() != 3 {
		t.Fatal("Tail values lost")
	}
	if !a.Tail().IsEnd() {
		t.Fatal("Array must stay END-terminated")
	}
	h.Free(a)
}

func TestHeadBiasRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.MakeArray(4, 0)
	if err != nil {
		t.Fatal(err)
	}

	// No bias yet, so head expansion takes the slide path.
	if err := h.Expand(a, 0, 2); err != nil {
		t.Fatal(err)
	}
	a.At(0).SetInteger(1)
	a.At(1).SetInteger(2)
	if a.Bias() != 0 {
		t.Fatalf("Bias %d before head removal", a.Bias())
	}

	// Head removal converts the vacated slots into bias.
	if err := a.Remove(0, 2); err != nil {
		t.Fatal(err)
	}
	if a.Bias() != 2 || a.Len() != 0 {
		t.Fatalf("Bias %d length %d after removal", a.Bias(), a.Len())
	}

	// Head expansion must now consume bias without relocating.
	ident := a.DataIdentity()
	if err := h.Expand(a, 0, 2); err != nil {
		t.Fatal(err)
	}
	if a.DataIdentity() != ident {
		t.Fatal("Bias-consuming expand relocated the backing")
	}
	if a.Bias() != 0 || a.Len() != 2 {
		t.Fatalf("Bias %d length %d after bias consumption", a.Bias(), a.Len())
	}
	if !a.At(0).IsTrash() || !a.At(1).IsTrash() {
		t.Fatal("Revealed head cells must be prepared")
	}
	h.Free(a)
}

func TestSeriesLocks(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(s, []byte{1}); err != nil {
		t.Fatal(err)
	}

	s.Protect()
	err = h.AppendBytes(s, []byte{2})
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseSeries, Kind: cerrors.KindProtected}) {
		t.Fatalf("Got %v, want protected error", err)
	}
	s.Unprotect()

	s.Hold()
	if err := s.SetByte(0, 9); !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseSeries, Kind: cerrors.KindHeld}) {
		t.Fatalf("Got %v, want held error", err)
	}
	s.ReleaseHold()

	s.Freeze()
	err = h.AppendBytes(s, []byte{2})
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseSeries, Kind: cerrors.KindFrozen}) {
		t.Fatalf("Got %v, want frozen error", err)
	}
	if s.Len() != 1 || s.Byte(0) != 1 {
		t.Fatal("Refused writes must not change content")
	}
	h.Free(s)
}

func TestSeriesFixedSize(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(4, 1, SeriesFixedSize|SeriesAlwaysDynamic)
	if err != nil {
		t.Fatal(err)
	}
	err = h.Expand(s, 0, 100)
	if !errors.Is(err, &cerrors.Error{Phase: cerrors.PhaseSeries, Kind: cerrors.KindFixedSize}) {
		t.Fatalf("Got %v, want fixed-size error", err)
	}
	h.Free(s)
}

func TestSeriesRemoveMid(t *testing.T) {
	h := newTestHeap(t)
	s, err := h.MakeSeries(8, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AppendBytes(s, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(1, 2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s.Data(), []byte{1, 4, 5}) {
		t.Fatalf("Got %v", s.Data())
	}
	if s.Bias() != 0 {
		t.Fatal("Mid removal must not create bias")
	}
	h.Free(s)
}
