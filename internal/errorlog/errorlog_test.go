package errorlog

import (
	stdErrors "errors"
	"testing"
	"time"
)

func TestRecordDedupsByOriginAndMessage(t *testing.T) {
	tick := time.Unix(0, 0)
	l := New(func() time.Time { return tick })

	l.Record("sender.duty_cycle", stdErrors.New("boom"))
	tick = tick.Add(time.Second)
	l.Record("sender.duty_cycle", stdErrors.New("boom"))

	if l.Len() != 1 {
		t.Fatalf("expected 1 distinct entry, got %d", l.Len())
	}
	snap := l.Snapshot()
	if snap[0].Count != 2 {
		t.Fatalf("expected count 2, got %d", snap[0].Count)
	}
	if snap[0].LastSeen != tick {
		t.Fatalf("expected LastSeen updated")
	}
}

func TestRecordDistinguishesByOrigin(t *testing.T) {
	l := New(nil)
	err := stdErrors.New("same message")
	l.Record("sender", err)
	l.Record("receiver", err)
	if l.Len() != 2 {
		t.Fatalf("expected 2 distinct entries for 2 origins, got %d", l.Len())
	}
}

func TestRecordNilIsNoop(t *testing.T) {
	l := New(nil)
	l.Record("x", nil)
	if l.Len() != 0 {
		t.Fatalf("expected 0 entries after recording nil")
	}
}
