// Package subscription implements Subscription-Link: the client-side handle
// binding one AddSubscription command to the publications/images it
// resolves to, carrying the delivery-semantics flags negotiated from the
// channel URI (tether/reliability/rejoin/sparse/group/session-id filter).
// It generalizes relay.Destination's per-sink delivery flags
// (internal/rtmp/relay/destination.go) from "one RTMP sink's reconnect
// state" to "one client's cross-image subscription state".
package subscription

// Link binds a client's subscription to zero or more images (network
// subscriptions) or publications (ipc subscriptions), carrying the
// delivery semantics resolved from the subscribing channel URI.
type Link struct {
	RegistrationID int64
	ClientID       int64
	Channel        string
	StreamID       int32

	HasSessionFilter bool
	SessionFilter    int32

	IsReliable bool
	IsTether   bool
	IsRejoin   bool
	IsSparse   bool

	HasGroupTag bool
	GroupTag    int64

	ResponseChannel bool

	imageIDs map[int64]struct{}
}

func New(registrationID, clientID int64, channel string, streamID int32) *Link {
	return &Link{
		RegistrationID: registrationID,
		ClientID:       clientID,
		Channel:        channel,
		StreamID:       streamID,
		imageIDs:       make(map[int64]struct{}),
	}
}

// LinkImage records that this subscription resolved to the image/publication
// identified by registrationID.
func (l *Link) LinkImage(registrationID int64) { l.imageIDs[registrationID] = struct{}{} }

// UnlinkImage removes a previously-linked image/publication, e.g. on
// OnUnavailableImage.
func (l *Link) UnlinkImage(registrationID int64) { delete(l.imageIDs, registrationID) }

func (l *Link) IsLinkedTo(registrationID int64) bool {
	_, ok := l.imageIDs[registrationID]
	return ok
}

// LinkedImages returns every image/publication registration id currently
// bound to this subscription.
func (l *Link) LinkedImages() []int64 {
	out := make([]int64, 0, len(l.imageIDs))
	for id := range l.imageIDs {
		out = append(out, id)
	}
	return out
}
