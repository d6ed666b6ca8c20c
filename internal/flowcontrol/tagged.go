package flowcontrol

import (
	"time"

	"github.com/alxayo/mediadriver/internal/wire"
)

// TaggedGroup tracks only receivers whose SETUP/status carries a matching
// GroupTag, and requires a minimum group size before reporting
// HasRequiredReceivers, generalizing MulticastMin with a group membership
// filter (Config.GroupTag and Config.RequiredGroupSize).
type TaggedGroup struct {
	*multiReceiver
	groupTag          int64
	requiredGroupSize int
}

func NewTaggedGroup(cfg Config) *TaggedGroup {
	return &TaggedGroup{
		multiReceiver:     newMultiReceiver(cfg, true),
		groupTag:          cfg.GroupTag,
		requiredGroupSize: cfg.RequiredGroupSize,
	}
}

func (t *TaggedGroup) OnStatusMessage(sm wire.StatusFrame, senderPosition int64, now time.Time) int64 {
	if sm.GroupTag != t.groupTag {
		return senderPosition
	}
	return t.multiReceiver.OnStatusMessage(sm, senderPosition, now)
}

func (t *TaggedGroup) HasRequiredReceivers() bool {
	if t.requiredGroupSize <= 0 {
		return t.multiReceiver.HasRequiredReceivers()
	}
	return len(t.receivers) >= t.requiredGroupSize
}

// Preferred behaves like MulticastMax but never evicts a single configured
// "preferred" receiver on fc-timeout, so the strategy continues granting
// that receiver priority even through a transient silence.
type Preferred struct {
	*multiReceiver
	preferredID int64
}

func NewPreferred(cfg Config, preferredReceiverID int64) *Preferred {
	return &Preferred{multiReceiver: newMultiReceiver(cfg, false), preferredID: preferredReceiverID}
}

func (p *Preferred) OnIdle(senderPosition int64, now time.Time) int64 {
	for id, r := range p.receivers {
		if id == p.preferredID {
			continue
		}
		if now.Sub(r.lastSeen) > p.cfg.timeout() {
			delete(p.receivers, id)
		}
	}
	return p.limit(senderPosition)
}
