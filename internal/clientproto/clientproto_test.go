package clientproto

import "testing"

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.OnAddPublication = func(cmd Command) []Event {
		called = true
		return []Event{{Type: EventPublicationReady, CorrelationID: cmd.CorrelationID}}
	}
	events := d.Dispatch(Command{Type: CmdAddPublication, CorrelationID: 42})
	if !called {
		t.Fatalf("expected handler invoked")
	}
	if len(events) != 1 || events[0].CorrelationID != 42 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDispatchUnregisteredProducesOnError(t *testing.T) {
	d := NewDispatcher()
	events := d.Dispatch(Command{Type: CmdAddPublication, CorrelationID: 7})
	if len(events) != 1 || events[0].Type != EventOnError || events[0].CorrelationID != 7 {
		t.Fatalf("expected ON_ERROR event echoing correlation id, got %+v", events)
	}
}

func TestCommandRingOfferAndDrain(t *testing.T) {
	r := NewCommandRing(2)
	if !r.Offer(Command{Type: CmdClientKeepalive}) {
		t.Fatalf("expected first offer to succeed")
	}
	if !r.Offer(Command{Type: CmdClientKeepalive}) {
		t.Fatalf("expected second offer to succeed")
	}
	if r.Offer(Command{Type: CmdClientKeepalive}) {
		t.Fatalf("expected third offer to fail at capacity")
	}
	drained := r.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained commands, got %d", len(drained))
	}
	if r.Len() != 0 {
		t.Fatalf("expected ring empty after drain")
	}
}

func TestBroadcastSinceReturnsNewEventsOnly(t *testing.T) {
	b := NewBroadcast()
	b.Publish(Event{Type: EventOperationSuccess, CorrelationID: 1})
	evs, idx := b.Since(0)
	if len(evs) != 1 || idx != 1 {
		t.Fatalf("unexpected: %+v idx=%d", evs, idx)
	}
	b.Publish(Event{Type: EventOperationSuccess, CorrelationID: 2})
	evs2, idx2 := b.Since(idx)
	if len(evs2) != 1 || evs2[0].CorrelationID != 2 || idx2 != 2 {
		t.Fatalf("unexpected: %+v idx=%d", evs2, idx2)
	}
}
