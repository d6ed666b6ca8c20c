package flowcontrol

import (
	"time"

	"github.com/alxayo/mediadriver/internal/wire"
)

// multiReceiver is the common tracking map shared by MulticastMin and
// MulticastMax, keyed by StatusFrame.ReceiverID (teacher analog: the
// relay's map[string]*Destination keyed by URL, here keyed by an opaque
// receiver identity instead of a human-chosen string).
type multiReceiver struct {
	cfg       Config
	receivers map[int64]*receiverState
	min       bool // true = MulticastMin, false = MulticastMax
}

func newMultiReceiver(cfg Config, min bool) *multiReceiver {
	return &multiReceiver{cfg: cfg, receivers: make(map[int64]*receiverState), min: min}
}

func (m *multiReceiver) Initialize(int64) {}

func (m *multiReceiver) OnStatusMessage(sm wire.StatusFrame, senderPosition int64, now time.Time) int64 {
	pos := positionFromStatus(sm)
	m.receivers[sm.ReceiverID] = &receiverState{position: pos, window: sm.ReceiverWindow, lastSeen: now}
	return m.limit(senderPosition)
}

func (m *multiReceiver) limit(senderPosition int64) int64 {
	if len(m.receivers) == 0 {
		return senderPosition
	}
	var extreme int64
	first := true
	for _, r := range m.receivers {
		candidate := r.position + int64(r.window)
		if first {
			extreme = candidate
			first = false
			continue
		}
		if m.min && candidate < extreme {
			extreme = candidate
		}
		if !m.min && candidate > extreme {
			extreme = candidate
		}
	}
	if extreme < senderPosition {
		return senderPosition
	}
	return extreme
}

func (m *multiReceiver) OnTriggerSendSetup(now time.Time) bool { return len(m.receivers) == 0 }

func (m *multiReceiver) OnSetup(wire.SetupFrame) {}

func (m *multiReceiver) OnError(receiverID int64, _ int32) { delete(m.receivers, receiverID) }

func (m *multiReceiver) OnIdle(senderPosition int64, now time.Time) int64 {
	for id, r := range m.receivers {
		if now.Sub(r.lastSeen) > m.cfg.timeout() {
			delete(m.receivers, id)
		}
	}
	return m.limit(senderPosition)
}

func (m *multiReceiver) HasRequiredReceivers() bool { return len(m.receivers) > 0 }

func (m *multiReceiver) MaxRetransmissionLength(termBufferLength int32) int32 {
	return termBufferLength / 2
}

func (m *multiReceiver) Close() {}

// MulticastMin advances the sender limit only as fast as the slowest
// tracked receiver, guaranteeing no receiver is overrun.
type MulticastMin struct{ *multiReceiver }

func NewMulticastMin(cfg Config) *MulticastMin {
	return &MulticastMin{multiReceiver: newMultiReceiver(cfg, true)}
}

// MulticastMax advances the sender limit as fast as the fastest tracked
// receiver, favoring throughput over the slowest peer.
type MulticastMax struct{ *multiReceiver }

func NewMulticastMax(cfg Config) *MulticastMax {
	return &MulticastMax{multiReceiver: newMultiReceiver(cfg, false)}
}
