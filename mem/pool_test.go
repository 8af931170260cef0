package mem

import "testing"

type node struct {
	a, b int64
}

func TestPoolAllocFree(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("test", 1, 8, acct)

	n1, r1 := p.Alloc()
	if n1 == nil {
		t.Fatal("Expected node")
	}
	if p.Has() != 8 || p.FreeCount() != 7 {
		t.Fatalf("Expected 8 has / 7 free, got %d/%d", p.Has(), p.FreeCount())
	}
	if !p.InUse(r1) {
		t.Fatal("Allocated node not marked in use")
	}

	n1.a = 42
	p.Free(r1)
	if p.InUse(r1) {
		t.Fatal("Freed node still marked in use")
	}
	if p.FreeCount() != 8 {
		t.Fatalf("Expected 8 free after free, got %d", p.FreeCount())
	}

	// Node reuse must hand back zeroed storage.
	n2, r2 := p.Alloc()
	if r2 != r1 {
		t.Fatalf("Expected freed node %v to be reused first, got %v", r1, r2)
	}
	if n2.a != 0 || n2.b != 0 {
		t.Fatalf("Reused node not zeroed: %+v", n2)
	}
}

func TestPoolSegmentGrowth(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("test", 1, 4, acct)

	refs := make([]Ref, 0, 10)
	for i := 0; i < 10; i++ {
		_, r := p.Alloc()
		refs = append(refs, r)
	}
	if p.Has() != 12 {
		t.Fatalf("Expected 3 segments of 4 nodes, got %d total", p.Has())
	}
	if p.FreeCount() != 2 {
		t.Fatalf("Expected 2 free, got %d", p.FreeCount())
	}
	if got := p.CheckIntegrity(); got != 2 {
		t.Fatalf("Integrity walk found %d free nodes, want 2", got)
	}

	seen := make(map[Ref]bool)
	for _, r := range refs {
		if seen[r] {
			t.Fatalf("Ref %v handed out twice", r)
		}
		seen[r] = true
	}

	for _, r := range refs {
		p.Free(r)
	}
	if got := p.CheckIntegrity(); got != 12 {
		t.Fatalf("Integrity walk found %d free nodes after freeing all, want 12", got)
	}
}

func TestPoolFreeListIntegrityUnderChurn(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("churn", 1, 8, acct)

	live := make([]Ref, 0, 64)
	for round := 0; round < 50; round++ {
		for i := 0; i < 5; i++ {
			_, r := p.Alloc()
			live = append(live, r)
		}
		// Free from the middle to shuffle the free list ordering.
		for i := 0; i < 3 && len(live) > 0; i++ {
			k := (round + i*7) % len(live)
			p.Free(live[k])
			live = append(live[:k], live[k+1:]...)
		}
		if walked := p.CheckIntegrity(); walked != p.FreeCount() {
			t.Fatalf("Round %d: walked %d, header %d", round, walked, p.FreeCount())
		}
	}
	if p.Has()-p.FreeCount() != len(live) {
		t.Fatalf("In-use count %d does not match live refs %d", p.Has()-p.FreeCount(), len(live))
	}
}

func TestPoolDoubleFreePanics(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("test", 1, 4, acct)
	_, r := p.Alloc()
	p.Free(r)

	defer func() {
		if recover() == nil {
			t.Fatal("Expected panic on double free")
		}
	}()
	p.Free(r)
}

func TestPoolStaleAccessPanics(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("test", 1, 4, acct)
	_, r := p.Alloc()
	p.Free(r)

	defer func() {
		if recover() == nil {
			t.Fatal("Expected panic on access to freed node")
		}
	}()
	p.Slice(r)
}

func TestPoolRange(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("test", 2, 4, acct)

	_, r1 := p.Alloc()
	_, r2 := p.Alloc()
	p.Free(r1)

	found := make(map[Ref]bool)
	p.Range(func(r Ref, chunk []node) bool {
		if len(chunk) != 2 {
			t.Fatalf("Expected chunk width 2, got %d", len(chunk))
		}
		found[r] = true
		return true
	})
	if len(found) != 1 || !found[r2] {
		t.Fatalf("Range visited %v, want only %v", found, r2)
	}
}

func TestPoolAccounting(t *testing.T) {
	acct := NewAccountant(0)
	p := NewPool[node]("test", 1, 4, acct)

	if acct.Usage() != 0 {
		t.Fatalf("Expected zero usage before first fill, got %d", acct.Usage())
	}
	p.Alloc()
	want := p.SegmentBytes()
	if acct.Usage() != want {
		t.Fatalf("Expected usage %d after fill, got %d", want, acct.Usage())
	}

	p.Release()
	if acct.Usage() != 0 {
		t.Fatalf("Expected zero usage after release, got %d", acct.Usage())
	}
	if p.Has() != 0 || p.FreeCount() != 0 {
		t.Fatal("Release left counters nonzero")
	}
}
