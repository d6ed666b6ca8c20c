package flowcontrol

import (
	"testing"
	"time"

	"github.com/alxayo/mediadriver/internal/wire"
)

func sm(receiverID int64, termID, termOffset, window int32, groupTag int64) wire.StatusFrame {
	return wire.StatusFrame{ReceiverID: receiverID, ConsumptionTermID: termID, ConsumptionTermOffset: termOffset, ReceiverWindow: window, GroupTag: groupTag}
}

func TestUnicastTracksSingleReceiver(t *testing.T) {
	u := NewUnicast(Config{})
	now := time.Now()
	if !u.OnTriggerSendSetup(now) {
		t.Fatalf("expected setup required before any receiver seen")
	}
	limit := u.OnStatusMessage(sm(1, 1, 0, 1000, 0), 0, now)
	if limit == 0 {
		t.Fatalf("expected non-zero limit after status")
	}
	if !u.HasRequiredReceivers() {
		t.Fatalf("expected required receivers after status")
	}
	if u.OnTriggerSendSetup(now) {
		t.Fatalf("expected no further setup needed")
	}
}

func TestUnicastEvictsOnTimeout(t *testing.T) {
	u := NewUnicast(Config{ReceiverTimeout: 10 * time.Millisecond})
	now := time.Now()
	u.OnStatusMessage(sm(1, 1, 0, 1000, 0), 0, now)
	later := now.Add(50 * time.Millisecond)
	u.OnIdle(0, later)
	if u.HasRequiredReceivers() {
		t.Fatalf("expected receiver evicted after timeout")
	}
}

func TestMulticastMinPicksSlowestReceiver(t *testing.T) {
	m := NewMulticastMin(Config{})
	now := time.Now()
	m.OnStatusMessage(sm(1, 1, 0, 5000, 0), 0, now)
	limitSlow := m.OnStatusMessage(sm(2, 1, 0, 1000, 0), 0, now)
	if limitSlow != 1000 {
		t.Fatalf("expected min-receiver limit of 1000, got %d", limitSlow)
	}
}

func TestMulticastMaxPicksFastestReceiver(t *testing.T) {
	m := NewMulticastMax(Config{})
	now := time.Now()
	m.OnStatusMessage(sm(1, 1, 0, 5000, 0), 0, now)
	limitFast := m.OnStatusMessage(sm(2, 1, 0, 1000, 0), 0, now)
	if limitFast != 5000 {
		t.Fatalf("expected max-receiver limit of 5000, got %d", limitFast)
	}
}

func TestTaggedGroupIgnoresMismatchedTag(t *testing.T) {
	tg := NewTaggedGroup(Config{GroupTag: 42, RequiredGroupSize: 2})
	now := time.Now()
	tg.OnStatusMessage(sm(1, 1, 0, 1000, 99), 0, now)
	if tg.HasRequiredReceivers() {
		t.Fatalf("expected group not satisfied with mismatched tag")
	}
	tg.OnStatusMessage(sm(2, 1, 0, 1000, 42), 0, now)
	tg.OnStatusMessage(sm(3, 1, 0, 1000, 42), 0, now)
	if !tg.HasRequiredReceivers() {
		t.Fatalf("expected group satisfied once required size reached")
	}
}

func TestPreferredNeverEvictsPreferredReceiver(t *testing.T) {
	p := NewPreferred(Config{ReceiverTimeout: 10 * time.Millisecond}, 1)
	now := time.Now()
	p.OnStatusMessage(sm(1, 1, 0, 1000, 0), 0, now)
	p.OnIdle(0, now.Add(time.Second))
	if !p.HasRequiredReceivers() {
		t.Fatalf("expected preferred receiver retained past timeout")
	}
}
