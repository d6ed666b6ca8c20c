package flowcontrol

import (
	"time"

	"github.com/alxayo/mediadriver/internal/wire"
)

// Unicast is the default strategy: exactly one receiver is expected; the
// sender limit simply tracks that receiver's reported consumption position
// plus its advertised window.
type Unicast struct {
	cfg      Config
	receiver *receiverState
}

func NewUnicast(cfg Config) *Unicast { return &Unicast{cfg: cfg} }

func (u *Unicast) Initialize(initialSenderPosition int64) {}

func (u *Unicast) OnStatusMessage(sm wire.StatusFrame, senderPosition int64, now time.Time) int64 {
	pos := positionFromStatus(sm)
	u.receiver = &receiverState{position: pos, window: sm.ReceiverWindow, lastSeen: now}
	limit := pos + int64(sm.ReceiverWindow)
	if limit < senderPosition {
		return senderPosition
	}
	return limit
}

func (u *Unicast) OnTriggerSendSetup(now time.Time) bool { return u.receiver == nil }

func (u *Unicast) OnSetup(wire.SetupFrame) {}

func (u *Unicast) OnError(int64, int32) {}

func (u *Unicast) OnIdle(senderPosition int64, now time.Time) int64 {
	if u.receiver != nil && now.Sub(u.receiver.lastSeen) > u.cfg.timeout() {
		u.receiver = nil
	}
	if u.receiver != nil {
		if limit := u.receiver.position + int64(u.receiver.window); limit > senderPosition {
			return limit
		}
	}
	return senderPosition
}

func (u *Unicast) HasRequiredReceivers() bool { return u.receiver != nil }

func (u *Unicast) MaxRetransmissionLength(termBufferLength int32) int32 {
	return termBufferLength / 4
}

func (u *Unicast) Close() {}

// positionFromStatus reconstructs an absolute-ish position value from a
// status frame's term-relative fields for the purpose of limit comparisons
// local to one flow-control instance. Callers that need a true Aeron
// position (accounting for term id transitions) use image/publication's
// position helpers instead; this local form is sufficient for threshold
// comparisons within a single strategy instance.
func positionFromStatus(sm wire.StatusFrame) int64 {
	return int64(sm.ConsumptionTermID)<<32 | int64(uint32(sm.ConsumptionTermOffset))
}
