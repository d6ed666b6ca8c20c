// Package publication implements Network-Publication and Ipc-Publication:
// per-outbound-stream state tracking publisher-limit, sender-position, and
// sender-limit, driven by a flow-control strategy and a retransmit
// handler. It generalizes relay.Destination's per-sink status state
// machine (internal/rtmp/relay/destination.go) from "one RTMP sink" to
// "one logical outbound stream with N receivers tracked by flow control".
package publication

import (
	"sync/atomic"
	"time"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
	"github.com/alxayo/mediadriver/internal/flowcontrol"
	"github.com/alxayo/mediadriver/internal/logbuffer"
	"github.com/alxayo/mediadriver/internal/retransmit"
)

// State is the publication lifecycle.
type State int32

const (
	StateActive State = iota
	StateDraining
	StateLinger
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateLinger:
		return "LINGER"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Kind distinguishes a Network-Publication (wire component) from an
// Ipc-Publication (no wire component, windowed by term-window-length).
type Kind int

const (
	KindNetwork Kind = iota
	KindIPC
)

// Publication is the shared state for both kinds; IPC publications never
// populate SenderLimit from flow control (there is no wire SM to react to)
// and instead derive their window from min-subscriber-position.
type Publication struct {
	RegistrationID int64
	ClientID       int64
	SessionID      int32
	StreamID       int32
	Channel        string
	Kind           Kind

	// Exclusive marks a publication that requires sole ownership of its
	// (sessionID, streamID, channel) tuple; the Conductor refuses a second
	// publication that would clash with it.
	Exclusive bool

	LogBuffer *logbuffer.LogBuffer

	fc         flowcontrol.Strategy
	retransmit *retransmit.Handler

	publisherLimit int64 // position up to which the publisher may write (back pressure boundary)
	senderPosition int64 // position the sender has transmitted up to
	senderLimit    int64 // position flow control currently allows the sender to advance to

	termWindowLength int64 // IPC only: half term-length cap

	subscriberPositions map[int64]int64 // IPC/spy subscriber registration id -> position

	eos   int32
	state State

	lastStatusAt time.Time
}

// NewNetwork constructs a Network-Publication bound to a flow-control
// strategy and retransmit handler.
func NewNetwork(registrationID int64, sessionID, streamID int32, channel string, lb *logbuffer.LogBuffer, fc flowcontrol.Strategy, rt *retransmit.Handler) *Publication {
	return &Publication{
		RegistrationID: registrationID, SessionID: sessionID, StreamID: streamID, Channel: channel,
		Kind: KindNetwork, LogBuffer: lb, fc: fc, retransmit: rt,
		subscriberPositions: make(map[int64]int64), state: StateActive,
	}
}

// NewIPC constructs an Ipc-Publication windowed by termWindowLength instead
// of wire flow control.
func NewIPC(registrationID int64, sessionID, streamID int32, channel string, lb *logbuffer.LogBuffer, termWindowLength int64) *Publication {
	return &Publication{
		RegistrationID: registrationID, SessionID: sessionID, StreamID: streamID, Channel: channel,
		Kind: KindIPC, LogBuffer: lb, termWindowLength: termWindowLength,
		subscriberPositions: make(map[int64]int64), state: StateActive,
	}
}

func (p *Publication) State() State { return p.state }

// SenderPosition/PublisherLimit are read with atomic semantics because the
// Conductor (publisher-limit) and Sender agent (sender-position) update
// them from different duty cycles.
func (p *Publication) SenderPosition() int64   { return atomic.LoadInt64(&p.senderPosition) }
func (p *Publication) PublisherLimit() int64   { return atomic.LoadInt64(&p.publisherLimit) }
func (p *Publication) SetSenderPosition(v int64) { atomic.StoreInt64(&p.senderPosition, v) }

// UpdatePublisherLimit recomputes publisherLimit from senderLimit (network)
// or from min-subscriber-position (ipc), then returns the new value.
func (p *Publication) UpdatePublisherLimit() int64 {
	var limit int64
	switch p.Kind {
	case KindNetwork:
		limit = atomic.LoadInt64(&p.senderLimit)
	case KindIPC:
		limit = p.minSubscriberPosition() + p.termWindowLength
	}
	atomic.StoreInt64(&p.publisherLimit, limit)
	return limit
}

func (p *Publication) minSubscriberPosition() int64 {
	if len(p.subscriberPositions) == 0 {
		return p.SenderPosition()
	}
	min := int64(-1)
	for _, pos := range p.subscriberPositions {
		if min == -1 || pos < min {
			min = pos
		}
	}
	return min
}

// OnSubscriberPosition records an IPC/spy subscriber's consumption
// position, analogous to OnStatusMessage for network flow control.
func (p *Publication) OnSubscriberPosition(subscriberRegistrationID, position int64) {
	p.subscriberPositions[subscriberRegistrationID] = position
}

func (p *Publication) RemoveSubscriber(subscriberRegistrationID int64) {
	delete(p.subscriberPositions, subscriberRegistrationID)
}

// FlowControl exposes the strategy for the Sender agent to feed StatusFrames into.
func (p *Publication) FlowControl() flowcontrol.Strategy { return p.fc }

func (p *Publication) Retransmit() *retransmit.Handler { return p.retransmit }

func (p *Publication) SetSenderLimit(v int64) { atomic.StoreInt64(&p.senderLimit, v) }
func (p *Publication) SenderLimit() int64     { return atomic.LoadInt64(&p.senderLimit) }

// MarkEOS records the end-of-stream position on the log buffer (revoke or
// clean close) and transitions to DRAINING.
func (p *Publication) MarkEOS(position int64) {
	atomic.StoreInt32(&p.eos, 1)
	p.LogBuffer.SetEndOfStreamPosition(position)
	p.state = StateDraining
}

func (p *Publication) IsEOS() bool { return atomic.LoadInt32(&p.eos) != 0 }

// TransitionToLinger begins the linger window after draining completes.
func (p *Publication) TransitionToLinger() { p.state = StateLinger }

// Close validates the publication is in a closeable state and transitions
// to CLOSED, releasing the log buffer.
func (p *Publication) Close() error {
	if p.state != StateLinger && p.state != StateDraining {
		return protoerr.NewConfigurationError("publication.close", nil)
	}
	p.state = StateClosed
	return p.LogBuffer.Close()
}
