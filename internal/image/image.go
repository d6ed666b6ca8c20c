// Package image implements the Publication-Image: per-inbound-stream
// reassembly state held by a Receiver agent. It generalizes
// server.Registry's stream bookkeeping (internal/rtmp/server/registry.go)
// and media.CodecDetector's one-shot-on-first-frame pattern (teacher:
// first video/audio frame fixes the codec) into the lifecycle and
// gap-tracking state. Images are created by the Conductor when a
// subscription is added, not by the first SETUP or DATA frame.
package image

import (
	"sync/atomic"
	"time"

	"github.com/alxayo/mediadriver/internal/lossdetector"
)

// State is the Publication-Image lifecycle.
type State int32

const (
	StateInit State = iota
	StateActive
	StateDraining
	StateLinger
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateLinger:
		return "LINGER"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Image is one inbound stream's reassembly state.
type Image struct {
	SessionID     int32
	StreamID      int32
	Channel       string
	InitialTermID int32
	TermLength    int32
	MTULength     int32

	state State

	joinPosition      int64
	highWaterMark     int64
	rebuildPosition   int64
	naksSent          int64
	lastActivityNanos int64
	untethered        int32

	gaps *lossdetector.Detector

	lingerDeadline time.Time
}

// New constructs an Image in the INIT state, immediately transitioned to
// ACTIVE once the caller finishes wiring its log-buffer (mirrors the
// teacher's pattern of constructing a Stream then marking it live once a
// first keyframe/sequence header is cached).
func New(sessionID, streamID, initialTermID, termLength, mtuLength int32, channel string, joinPosition int64, gapCfg lossdetector.Config) *Image {
	return &Image{
		SessionID: sessionID, StreamID: streamID, Channel: channel,
		InitialTermID: initialTermID, TermLength: termLength, MTULength: mtuLength,
		state: StateInit, joinPosition: joinPosition, highWaterMark: joinPosition, rebuildPosition: joinPosition,
		gaps: lossdetector.NewDetector(gapCfg),
	}
}

func (img *Image) Activate(now time.Time) {
	img.state = StateActive
	atomic.StoreInt64(&img.lastActivityNanos, now.UnixNano())
}

func (img *Image) State() State { return img.state }

// OnDataReceived advances the high-water-mark when the new frame extends
// it contiguously, or registers a gap with the loss detector otherwise.
func (img *Image) OnDataReceived(termID int32, termOffset, frameLength int32, now time.Time) {
	atomic.StoreInt64(&img.lastActivityNanos, now.UnixNano())
	end := int64(termOffset) + int64(frameLength)
	hwmOffset := img.highWaterMark % int64(img.TermLength)
	if int64(termOffset) <= hwmOffset {
		if end > hwmOffset {
			img.highWaterMark += end - hwmOffset
			img.gaps.OnHighWaterMarkAdvanced(termID, int32(img.highWaterMark%int64(img.TermLength)))
		}
		return
	}
	img.gaps.OnGapObserved(lossdetector.Gap{TermID: termID, TermOffset: int32(hwmOffset), Length: termOffset - int32(hwmOffset)}, now)
	img.highWaterMark += end - hwmOffset
}

// PendingNaks returns the gaps ready to be NAKed right now.
func (img *Image) PendingNaks(now time.Time) []lossdetector.Gap {
	ready := img.gaps.ReadyToSend(now)
	img.naksSent += int64(len(ready))
	return ready
}

func (img *Image) JoinPosition() int64    { return img.joinPosition }
func (img *Image) HighWaterMark() int64   { return img.highWaterMark }
func (img *Image) RebuildPosition() int64 { return img.rebuildPosition }
func (img *Image) NaksSent() int64        { return img.naksSent }

// SetUntethered marks this image as not contributing to the publication's
// min-subscriber-position window, so a slow/idle subscriber doesn't
// stall the whole publication.
func (img *Image) SetUntethered(v bool) {
	if v {
		atomic.StoreInt32(&img.untethered, 1)
	} else {
		atomic.StoreInt32(&img.untethered, 0)
	}
}
func (img *Image) IsUntethered() bool { return atomic.LoadInt32(&img.untethered) != 0 }

// TransitionToDraining begins shutdown: no more NAKs are sent, remaining
// already-pending retransmits are allowed to land.
func (img *Image) TransitionToDraining() { img.state = StateDraining }

// TransitionToLinger starts the linger window during which late-arriving
// retransmits are still accepted, after which the image becomes DONE.
func (img *Image) TransitionToLinger(now time.Time, lingerDuration time.Duration) {
	img.state = StateLinger
	img.lingerDeadline = now.Add(lingerDuration)
}

// Tick advances LINGER -> DONE once the linger deadline passes.
func (img *Image) Tick(now time.Time) {
	if img.state == StateLinger && !now.Before(img.lingerDeadline) {
		img.state = StateDone
	}
}

func (img *Image) IsDone() bool { return img.state == StateDone }

// LastActivity returns the time of the most recent Activate or
// OnDataReceived call.
func (img *Image) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&img.lastActivityNanos))
}
