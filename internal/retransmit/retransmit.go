// Package retransmit implements the sender-side NAK response state
// machine: bounded concurrent retransmits per publication with overflow
// eviction, a delay generator before honoring a NAK (to let a multicast
// group's other receivers' identical NAKs coalesce), and a linger window
// suppressing duplicate retransmits of the same range. Grounded in the
// teacher's reconnect/backoff bookkeeping in relay.Destination, generalized
// from "retry connecting" to "retry sending a byte range".
package retransmit

import (
	"math/rand"
	"time"
)

// Action entries track one outstanding NAK being honored.
type action struct {
	termID     int32
	termOffset int32
	length     int32
	expiresAt  time.Time
	lingerAt   time.Time
}

// Config parameters, named after the channel URI keys that tune them.
type Config struct {
	MaxResend   int           // maximum concurrent in-flight retransmit actions
	Delay       time.Duration // base delay before honoring a NAK (0 = immediate, unicast default)
	DelayJitter time.Duration // random jitter added to Delay (multicast default, to desynchronize receivers)
	Linger      time.Duration // suppression window after completing a retransmit for the same range
}

// DefaultUnicastConfig honors NAKs immediately with no jitter.
func DefaultUnicastConfig() Config {
	return Config{MaxResend: 16, Delay: 0, DelayJitter: 0, Linger: 60 * time.Millisecond}
}

// DefaultMulticastConfig adds jittered delay so many receivers' NAKs for
// the same gap collapse into one retransmission.
func DefaultMulticastConfig() Config {
	return Config{MaxResend: 16, Delay: 10 * time.Millisecond, DelayJitter: 20 * time.Millisecond, Linger: 100 * time.Millisecond}
}

// Handler is the per-publication retransmit state machine.
type Handler struct {
	cfg      Config
	active   []action
	lingered []action
	overflow int64
	rng      *rand.Rand
}

func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg, rng: rand.New(rand.NewSource(1))}
}

// delayFor computes the wait before honoring a NAK, per Config.
func (h *Handler) delayFor() time.Duration {
	d := h.cfg.Delay
	if h.cfg.DelayJitter > 0 {
		d += time.Duration(h.rng.Int63n(int64(h.cfg.DelayJitter)))
	}
	return d
}

// OnNak registers a NAK for [termOffset, termOffset+length) in termID at
// time now. Returns (readyAt, accepted): accepted is false if the range is
// currently lingering (a recent identical retransmit already covered it) or
// the handler is at MaxResend capacity with no room to evict.
func (h *Handler) OnNak(termID, termOffset, length int32, now time.Time) (readyAt time.Time, accepted bool) {
	h.evictExpiredLinger(now)
	for _, l := range h.lingered {
		if l.termID == termID && rangesOverlap(l.termOffset, l.length, termOffset, length) {
			return time.Time{}, false
		}
	}
	for _, a := range h.active {
		if a.termID == termID && rangesOverlap(a.termOffset, a.length, termOffset, length) {
			return a.expiresAt, true
		}
	}
	if len(h.active) >= h.cfg.MaxResend {
		if h.cfg.MaxResend == 0 {
			return time.Time{}, false
		}
		h.active = h.active[1:]
		h.overflow++
	}
	readyAt = now.Add(h.delayFor())
	h.active = append(h.active, action{termID: termID, termOffset: termOffset, length: length, expiresAt: readyAt})
	return readyAt, true
}

// OnRetransmitSent moves the action into the linger set so a subsequent NAK
// for the identical range within Linger is rejected rather than re-sent.
func (h *Handler) OnRetransmitSent(termID, termOffset, length int32, now time.Time) {
	for i, a := range h.active {
		if a.termID == termID && a.termOffset == termOffset && a.length == length {
			h.active = append(h.active[:i], h.active[i+1:]...)
			break
		}
	}
	h.lingered = append(h.lingered, action{termID: termID, termOffset: termOffset, length: length, lingerAt: now.Add(h.cfg.Linger)})
}

func (h *Handler) evictExpiredLinger(now time.Time) {
	kept := h.lingered[:0]
	for _, l := range h.lingered {
		if now.Before(l.lingerAt) {
			kept = append(kept, l)
		}
	}
	h.lingered = kept
}

// ReadyAction describes one NAK-driven retransmit whose delay has elapsed
// and is due to be written to the wire.
type ReadyAction struct {
	TermID     int32
	TermOffset int32
	Length     int32
}

// ReadyActions returns every active retransmit ready to send now, without
// removing it from the active set; callers must call OnRetransmitSent once
// the bytes are actually written so repeat NAKs for the same range land in
// the linger set instead of being re-sent.
func (h *Handler) ReadyActions(now time.Time) []ReadyAction {
	var out []ReadyAction
	for _, a := range h.active {
		if !now.Before(a.expiresAt) {
			out = append(out, ReadyAction{TermID: a.termID, TermOffset: a.termOffset, Length: a.length})
		}
	}
	return out
}

// ActiveCount returns the number of in-flight retransmit actions.
func (h *Handler) ActiveCount() int { return len(h.active) }

// OverflowCount returns the cumulative number of actions evicted to make
// room for a newer NAK. The driver does not copy it into the
// retransmit-overflow system counter.
func (h *Handler) OverflowCount() int64 { return h.overflow }

func rangesOverlap(aOffset, aLen, bOffset, bLen int32) bool {
	aEnd := aOffset + aLen
	bEnd := bOffset + bLen
	return aOffset < bEnd && bOffset < aEnd
}
