// Package flowcontrol implements the pluggable receiver-tracking strategies
// a Network-Publication uses to decide its sender position limit: Unicast
// (default), MulticastMin, MulticastMax, TaggedGroup, and Preferred. It
// generalizes relay.DestinationManager's per-destination receiver tracking
// (map[string]*Destination with timestamps/metrics, internal/rtmp/relay/
// manager.go) into per-receiver-id tracking keyed by the StatusFrame's
// ReceiverID, with fc-timeout eviction of receivers that stop sending
// status messages.
package flowcontrol

import (
	"time"

	"github.com/alxayo/mediadriver/internal/wire"
)

// Strategy is the interface every flow-control implementation satisfies.
type Strategy interface {
	// OnStatusMessage folds in a receiver's reported position/window and
	// returns the new sender limit position.
	OnStatusMessage(sm wire.StatusFrame, senderPosition int64, now time.Time) int64
	// OnTriggerSendSetup is invoked when a new receiver requires a SETUP
	// frame be (re-)sent, returning true if one should be sent now.
	OnTriggerSendSetup(now time.Time) bool
	// OnSetup folds a SETUP frame's group tag/required-group-size, if any.
	OnSetup(setup wire.SetupFrame)
	// OnError is invoked when a receiver publishes an ERR frame against the publication.
	OnError(receiverID int64, errorCode int32)
	// OnIdle evicts receivers that have gone silent past fc-timeout and
	// returns the resulting sender limit.
	OnIdle(senderPosition int64, now time.Time) int64
	// HasRequiredReceivers reports whether enough receivers are tracked to
	// make progress (always true for Unicast once any receiver exists).
	HasRequiredReceivers() bool
	// MaxRetransmissionLength bounds a single NAK's retransmit length.
	MaxRetransmissionLength(termBufferLength int32) int32
	Initialize(initialSenderPosition int64)
	Close()
}

// Config carries the parameters every strategy is constructed with. The
// Conductor's flowControlFor passes a zero Config; no channel URI key is
// mapped onto these fields.
type Config struct {
	ReceiverTimeout  time.Duration
	GroupTag         int64
	RequiredGroupSize int
}

// DefaultReceiverTimeout matches the order of magnitude of a typical
// destination reconnect backoff, applied here to a flow-control
// receiver-timeout.
const DefaultReceiverTimeout = 2 * time.Second

func (c Config) timeout() time.Duration {
	if c.ReceiverTimeout <= 0 {
		return DefaultReceiverTimeout
	}
	return c.ReceiverTimeout
}

type receiverState struct {
	position int64
	window   int32
	lastSeen time.Time
	groupTag int64
}
