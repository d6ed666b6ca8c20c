package endpoint

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alxayo/mediadriver/internal/wire"
)

func TestSendToAllReachesDestination(t *testing.T) {
	logger := slog.Default()

	receiver, err := New("127.0.0.1:0", Options{}, logger)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer receiver.Close()

	sender, err := New("127.0.0.1:0", Options{}, logger)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer sender.Close()

	if err := sender.AddDestination(receiver.LocalAddr().String(), 1); err != nil {
		t.Fatalf("add destination: %v", err)
	}

	payload := []byte("hello")
	buf := make([]byte, wire.DataHeaderLength+len(payload))
	if _, err := wire.EncodeData(buf, wire.DataFrame{
		CommonHeader: wire.CommonHeader{Type: wire.TypeData},
		SessionID:    1, StreamID: 2, Payload: payload,
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	received := make(chan []byte, 1)
	receiver.RegisterHandler(StreamKey{SessionID: 1, StreamID: 2}, func(data []byte, _ *net.UDPAddr) {
		cp := append([]byte(nil), data...)
		received <- cp
	})

	if errs := sender.SendToAll(buf); len(errs) != 0 {
		t.Fatalf("send errors: %v", errs)
	}

	receiver.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	recvBuf := make([]byte, 1500)
	n := receiver.Poll(recvBuf, func(b []byte) (StreamKey, bool) {
		f, err := wire.DecodeData(b)
		if err != nil {
			return StreamKey{}, false
		}
		return StreamKey{SessionID: f.SessionID, StreamID: f.StreamID}, true
	})
	if n != 1 {
		t.Fatalf("expected 1 frame handled, got %d", n)
	}
	select {
	case got := <-received:
		f, err := wire.DecodeData(got)
		if err != nil {
			t.Fatalf("decode received: %v", err)
		}
		if string(f.Payload) != "hello" {
			t.Fatalf("payload mismatch: %q", f.Payload)
		}
	default:
		t.Fatalf("expected handler to have run synchronously during Poll")
	}
}

func TestAddDestinationRejectsUnresolvable(t *testing.T) {
	e, err := New("127.0.0.1:0", Options{}, slog.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer e.Close()
	if err := e.AddDestination("not a valid address", 1); err == nil {
		t.Fatalf("expected error for unresolvable destination")
	}
}
