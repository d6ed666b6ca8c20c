package publication

import (
	"testing"

	"github.com/alxayo/mediadriver/internal/flowcontrol"
	"github.com/alxayo/mediadriver/internal/logbuffer"
	"github.com/alxayo/mediadriver/internal/retransmit"
)

func newTestLogBuffer(t *testing.T) *logbuffer.LogBuffer {
	t.Helper()
	lb, err := logbuffer.NewInMemory(64*1024, 1, 1408)
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	return lb
}

func TestNetworkPublicationLimitTracksFlowControl(t *testing.T) {
	lb := newTestLogBuffer(t)
	fc := flowcontrol.NewUnicast(flowcontrol.Config{})
	pub := NewNetwork(1, 10, 20, "aeron:udp?endpoint=localhost:1", lb, fc, retransmit.NewHandler(retransmit.DefaultUnicastConfig()))
	pub.SetSenderLimit(4096)
	if got := pub.UpdatePublisherLimit(); got != 4096 {
		t.Fatalf("expected publisher limit 4096, got %d", got)
	}
}

func TestIPCPublicationWindowedByMinSubscriberPosition(t *testing.T) {
	lb := newTestLogBuffer(t)
	pub := NewIPC(1, 10, 20, "aeron:ipc", lb, 32*1024)
	pub.SetSenderPosition(1000)
	pub.OnSubscriberPosition(100, 500)
	pub.OnSubscriberPosition(200, 800)
	limit := pub.UpdatePublisherLimit()
	if limit != 500+32*1024 {
		t.Fatalf("expected limit based on slowest subscriber (500), got %d", limit)
	}
}

func TestMarkEOSTransitionsToDraining(t *testing.T) {
	lb := newTestLogBuffer(t)
	pub := NewIPC(1, 10, 20, "aeron:ipc", lb, 32*1024)
	pub.MarkEOS(8192)
	if pub.State() != StateDraining {
		t.Fatalf("expected DRAINING, got %s", pub.State())
	}
	if !pub.IsEOS() {
		t.Fatalf("expected IsEOS true")
	}
	if lb.EndOfStreamPosition() != 8192 {
		t.Fatalf("expected EOS position recorded on log buffer")
	}
}

func TestCloseRequiresDrainingOrLinger(t *testing.T) {
	lb := newTestLogBuffer(t)
	pub := NewIPC(1, 10, 20, "aeron:ipc", lb, 32*1024)
	if err := pub.Close(); err == nil {
		t.Fatalf("expected error closing an ACTIVE publication")
	}
	pub.MarkEOS(0)
	pub.TransitionToLinger()
	if err := pub.Close(); err != nil {
		t.Fatalf("unexpected error closing from LINGER: %v", err)
	}
	if pub.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", pub.State())
	}
}
