package counters

import "testing"

func TestAllocateSetGet(t *testing.T) {
	m := NewManager()
	id := m.Allocate(TypePublisherPosition, "pub-pos", "publisher position", 1, 2)
	m.Set(id, 4096)
	if m.Get(id) != 4096 {
		t.Fatalf("expected 4096, got %d", m.Get(id))
	}
	if got := m.Add(id, 1408); got != 4096+1408 {
		t.Fatalf("expected %d, got %d", 4096+1408, got)
	}
}

func TestFreeAndReuse(t *testing.T) {
	m := NewManager()
	id1 := m.Allocate(TypeSystemClientTimeouts, "k1", "l1", 0, 0)
	m.Set(id1, 5)
	if err := m.Free(id1); err != nil {
		t.Fatalf("free: %v", err)
	}
	id2 := m.Allocate(TypeSystemClientTimeouts, "k2", "l2", 0, 0)
	if id2 != id1 {
		t.Fatalf("expected slot reuse, got new id %d vs freed %d", id2, id1)
	}
	if m.Get(id2) != 0 {
		t.Fatalf("expected reused slot reset to 0, got %d", m.Get(id2))
	}
}

func TestReaderIsReadOnlyView(t *testing.T) {
	m := NewManager()
	id := m.Allocate(TypeSubscriberPosition, "sub-pos", "subscriber position", 1, 1)
	m.Set(id, 100)
	r := NewReader(m)
	if r.Get(id) != 100 {
		t.Fatalf("expected 100, got %d", r.Get(id))
	}
}

func TestSnapshotExcludesFreed(t *testing.T) {
	m := NewManager()
	id1 := m.Allocate(TypeSystemClientTimeouts, "a", "a", 0, 0)
	_ = m.Allocate(TypeSystemClientTimeouts, "b", "b", 0, 0)
	m.Free(id1)
	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 live counter, got %d", len(snap))
	}
}
