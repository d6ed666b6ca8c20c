package driveragent

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alxayo/mediadriver/internal/channelsuri"
	"github.com/alxayo/mediadriver/internal/clientproto"
	"github.com/alxayo/mediadriver/internal/counters"
	"github.com/alxayo/mediadriver/internal/endpoint"
	protoerr "github.com/alxayo/mediadriver/internal/errors"
	"github.com/alxayo/mediadriver/internal/flowcontrol"
	"github.com/alxayo/mediadriver/internal/image"
	"github.com/alxayo/mediadriver/internal/logbuffer"
	"github.com/alxayo/mediadriver/internal/lossdetector"
	"github.com/alxayo/mediadriver/internal/publication"
	"github.com/alxayo/mediadriver/internal/retransmit"
	"github.com/alxayo/mediadriver/internal/subscription"
)

// ClientRegistry tracks liveness of connected clients (keepalive deadline
// per client id), generalizing server.Registry's per-stream subscriber
// bookkeeping (internal/rtmp/server/registry.go) to per-client liveness.
type ClientRegistry struct {
	lastSeen map[int64]time.Time
	timeout  time.Duration
}

func NewClientRegistry(timeout time.Duration) *ClientRegistry {
	return &ClientRegistry{lastSeen: make(map[int64]time.Time), timeout: timeout}
}

func (c *ClientRegistry) Keepalive(clientID int64, now time.Time) { c.lastSeen[clientID] = now }

// Expired returns every client id that has gone stale past the liveness
// timeout, removing them from tracking.
func (c *ClientRegistry) Expired(now time.Time) []int64 {
	var out []int64
	for id, last := range c.lastSeen {
		if now.Sub(last) > c.timeout {
			out = append(out, id)
			delete(c.lastSeen, id)
		}
	}
	return out
}

// Conductor is the bookkeeping agent: it owns channel-endpoint lifecycle,
// publication/image/subscription registries, the counters manager, and the
// client-command dispatcher. It generalizes server.Registry +
// server.Server's wiring (internal/rtmp/server/{registry,server}.go) from
// "RTMP stream registry" to "driver-wide resource registry".
type Conductor struct {
	Dispatcher *clientproto.Dispatcher
	Commands   *clientproto.CommandRing
	Events     *clientproto.Broadcast

	Counters *counters.Manager
	Clients  *ClientRegistry

	endpoints          map[string]*endpoint.Endpoint
	publications       map[int64]*publication.Publication
	images             map[int64]*image.Image
	subscriptions      map[int64]*subscription.Link
	nextRegistrationID int64
	nextSessionIDValue int32

	senderProxy   *SenderProxy
	receiverProxy *ReceiverProxy

	aeronDir    string
	logger      *slog.Logger
	terminating bool

	clientTimeoutsCounterID int32

	now func() time.Time
}

func NewConductor(senderProxy *SenderProxy, receiverProxy *ReceiverProxy, aeronDir string, logger *slog.Logger) *Conductor {
	c := &Conductor{
		Commands:           clientproto.NewCommandRing(1024),
		Events:             clientproto.NewBroadcast(),
		Counters:           counters.NewManager(),
		Clients:            NewClientRegistry(10 * time.Second),
		endpoints:          make(map[string]*endpoint.Endpoint),
		publications:       make(map[int64]*publication.Publication),
		images:             make(map[int64]*image.Image),
		subscriptions:      make(map[int64]*subscription.Link),
		nextSessionIDValue: 1000,
		senderProxy:        senderProxy,
		receiverProxy:      receiverProxy,
		aeronDir:           aeronDir,
		logger:             logger,
		now:                time.Now,
	}
	c.clientTimeoutsCounterID = c.Counters.Allocate(counters.TypeSystemClientTimeouts, "client-timeouts", "client-timeouts", 0, 0)

	c.Dispatcher = clientproto.NewDispatcher()
	c.Dispatcher.OnAddPublication = c.onAddPublication
	c.Dispatcher.OnAddExclusivePublication = c.onAddExclusivePublication
	c.Dispatcher.OnRemovePublication = c.onRemovePublication
	c.Dispatcher.OnAddSubscription = c.onAddSubscription
	c.Dispatcher.OnRemoveSubscription = c.onRemoveSubscription
	c.Dispatcher.OnClientKeepalive = c.onClientKeepalive
	c.Dispatcher.OnClientClose = c.onClientClose
	c.Dispatcher.OnAddCounter = c.onAddCounter
	c.Dispatcher.OnRemoveCounter = c.onRemoveCounter
	c.Dispatcher.OnAddRcvDestination = c.onAddRcvDestination
	c.Dispatcher.OnRemoveRcvDestination = c.onRemoveRcvDestination
	c.Dispatcher.OnAddDestination = c.onAddDestination
	c.Dispatcher.OnRemoveDestination = c.onRemoveDestination
	c.Dispatcher.OnNextAvailableSessionId = c.onNextAvailableSessionId
	c.Dispatcher.OnRejectImage = c.onRejectImage
	c.Dispatcher.OnTerminateDriver = c.onTerminateDriver
	return c
}

func (c *Conductor) Name() string { return "conductor" }

func (c *Conductor) nextRegID() int64 {
	c.nextRegistrationID++
	return c.nextRegistrationID
}

// nextSessionID hands out a fresh session id for publications/subscriptions
// that didn't pin one explicitly via the channel URI's session-id key.
func (c *Conductor) nextSessionID() int32 {
	c.nextSessionIDValue++
	return c.nextSessionIDValue
}

// findOrCreateEndpoint returns the shared channel-endpoint for a parsed
// channel URI's canonical form, creating (and binding to the sender and
// receiver agents) one if it doesn't exist yet.
func (c *Conductor) findOrCreateEndpoint(uri *channelsuri.ChannelURI) (*endpoint.Endpoint, string, error) {
	canon, err := uri.CanonicalForm()
	if err != nil {
		return nil, "", err
	}
	if ep, ok := c.endpoints[canon]; ok {
		return ep, canon, nil
	}
	if uri.Media == channelsuri.MediaIPC {
		return nil, canon, nil // IPC has no wire endpoint
	}
	addr, ok := uri.Get("endpoint")
	if !ok {
		addr, ok = uri.Get("control")
	}
	if !ok {
		return nil, "", protoerr.NewInvalidChannelError("conductor.find_or_create_endpoint", "missing endpoint/control")
	}
	ep, err := endpoint.New(addr, endpoint.Options{}, c.logger)
	if err != nil {
		return nil, "", err
	}
	c.endpoints[canon] = ep
	c.senderProxy.BindEndpoint(canon, ep)
	c.receiverProxy.BindEndpoint(canon, ep)
	return ep, canon, nil
}

func flowControlFor(uri *channelsuri.ChannelURI) flowcontrol.Strategy {
	switch v, _ := uri.Get("fc"); v {
	case "min":
		return flowcontrol.NewMulticastMin(flowcontrol.Config{})
	case "max":
		return flowcontrol.NewMulticastMax(flowcontrol.Config{})
	case "tagged":
		return flowcontrol.NewTaggedGroup(flowcontrol.Config{})
	default:
		return flowcontrol.NewUnicast(flowcontrol.Config{})
	}
}

// uriFlag parses a boolean channel-URI parameter, defaulting when absent or
// unparseable.
func uriFlag(uri *channelsuri.ChannelURI, key string, def bool) bool {
	v, ok := uri.Get(key)
	if !ok {
		return def
	}
	return v == "true"
}

// findClashingPublication returns a non-closed publication already
// registered on the same canonical channel, stream and session id, or nil.
func (c *Conductor) findClashingPublication(canon string, streamID, sessionID int32) *publication.Publication {
	for _, p := range c.publications {
		if p.Channel == canon && p.StreamID == streamID && p.SessionID == sessionID && p.State() != publication.StateClosed {
			return p
		}
	}
	return nil
}

func (c *Conductor) onAddPublication(cmd clientproto.Command) []clientproto.Event {
	return c.addPublication(cmd, false)
}

func (c *Conductor) onAddExclusivePublication(cmd clientproto.Command) []clientproto.Event {
	return c.addPublication(cmd, true)
}

// addPublication is the shared core for AddPublication and
// AddExclusivePublication: parse the channel, resolve or assign a session
// id, refuse a clashing registration, allocate a log buffer, and register
// the new publication with the Sender agent.
func (c *Conductor) addPublication(cmd clientproto.Command, exclusive bool) []clientproto.Event {
	uri, err := channelsuri.Parse(cmd.Channel)
	if err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}
	_, canon, err := c.findOrCreateEndpoint(uri)
	if err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}

	sessionID := cmd.SessionID
	if v, ok := uri.Get("session-id"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			sessionID = int32(n)
		}
	} else if sessionID == 0 {
		sessionID = c.nextSessionID()
	}

	if clash := c.findClashingPublication(canon, cmd.StreamID, sessionID); clash != nil {
		reason := fmt.Sprintf("existing publication has clashing sessionId=%d", sessionID)
		return errorEvent(cmd.CorrelationID, protoerr.NewInvalidChannelError("conductor.add_publication", reason))
	}

	termLength := int32(logbuffer.MinTermLength)
	lb, err := logbuffer.NewInMemory(termLength, 0, 1408)
	if err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}

	regID := c.nextRegID()
	var pub *publication.Publication
	if uri.Media == channelsuri.MediaIPC {
		pub = publication.NewIPC(regID, sessionID, cmd.StreamID, canon, lb, int64(termLength/2))
	} else {
		fc := flowControlFor(uri)
		rt := retransmit.NewHandler(retransmit.DefaultUnicastConfig())
		pub = publication.NewNetwork(regID, sessionID, cmd.StreamID, canon, lb, fc, rt)
	}
	pub.Exclusive = exclusive
	pub.ClientID = cmd.ClientID
	c.publications[regID] = pub

	c.senderProxy.AddPublication(pub)

	evType := clientproto.EventPublicationReady
	if exclusive {
		evType = clientproto.EventExclusivePublicationReady
	}
	return []clientproto.Event{{
		Type: evType, CorrelationID: cmd.CorrelationID,
		RegistrationID: regID, SessionID: sessionID, StreamID: cmd.StreamID, Channel: canon,
	}}
}

// onRemovePublication transitions a publication straight to LINGER (its log
// buffer keeps serving any still-catching-up subscriber) and stops the
// Sender agent from driving it, returning UNKNOWN_PUBLICATION for an
// unknown or already-removed registration id.
func (c *Conductor) onRemovePublication(cmd clientproto.Command) []clientproto.Event {
	pub, ok := c.publications[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownPublication, "unknown publication"))
	}
	pub.MarkEOS(pub.SenderPosition())
	pub.TransitionToLinger()
	delete(c.publications, cmd.RegistrationID)
	c.senderProxy.RemovePublication(pub.RegistrationID)
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID, RegistrationID: pub.RegistrationID}}
}

// onAddSubscription resolves a subscription against already-registered IPC
// publications (immediate link) or, for network channels, eagerly allocates
// a Publication-Image and endpoint handler so inbound DATA is routed to it
// from the very next duty cycle.
func (c *Conductor) onAddSubscription(cmd clientproto.Command) []clientproto.Event {
	uri, err := channelsuri.Parse(cmd.Channel)
	if err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}
	ep, canon, err := c.findOrCreateEndpoint(uri)
	if err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}

	regID := c.nextRegID()
	link := subscription.New(regID, cmd.ClientID, canon, cmd.StreamID)
	link.IsReliable = uriFlag(uri, "reliable", true)
	link.IsTether = uriFlag(uri, "tether", true)
	link.IsRejoin = uriFlag(uri, "rejoin", true)
	link.IsSparse = uriFlag(uri, "sparse", false)
	if v, ok := uri.Get("session-id"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			link.HasSessionFilter = true
			link.SessionFilter = int32(n)
		}
	}
	if v, ok := uri.Get("gtag"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			link.HasGroupTag = true
			link.GroupTag = n
		}
	}

	if uri.Media == channelsuri.MediaIPC {
		for _, pub := range c.publications {
			if pub.Kind == publication.KindIPC && pub.Channel == canon && pub.StreamID == cmd.StreamID &&
				(!link.HasSessionFilter || pub.SessionID == link.SessionFilter) {
				link.LinkImage(pub.RegistrationID)
				pub.OnSubscriberPosition(regID, 0)
			}
		}
	} else {
		sessionID := link.SessionFilter
		if !link.HasSessionFilter {
			sessionID = c.nextSessionID()
		}
		termLength := int32(logbuffer.MinTermLength)
		gapCfg := lossdetector.DefaultUnicastConfig()
		img := image.New(sessionID, cmd.StreamID, 0, termLength, 1408, canon, 0, gapCfg)
		img.Activate(c.now())
		img.SetUntethered(!link.IsTether)
		c.images[regID] = img
		link.LinkImage(regID)
		c.receiverProxy.AddImage(regID, img, ep, endpoint.StreamKey{SessionID: sessionID, StreamID: cmd.StreamID})
	}

	c.subscriptions[regID] = link

	return []clientproto.Event{{
		Type: clientproto.EventSubscriptionReady, CorrelationID: cmd.CorrelationID,
		RegistrationID: regID, StreamID: cmd.StreamID, Channel: canon,
	}}
}

// onRemoveSubscription unlinks every image/publication this subscription
// resolved to and removes it from the registry, returning
// UNKNOWN_SUBSCRIPTION for an unknown or already-removed registration id.
func (c *Conductor) onRemoveSubscription(cmd clientproto.Command) []clientproto.Event {
	link, ok := c.subscriptions[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownSubscription, "unknown subscription"))
	}
	for _, imgID := range link.LinkedImages() {
		if img, ok := c.images[imgID]; ok {
			img.TransitionToDraining()
		}
		if pub, ok := c.publications[imgID]; ok {
			pub.RemoveSubscriber(cmd.RegistrationID)
		}
	}
	delete(c.subscriptions, cmd.RegistrationID)
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID, RegistrationID: cmd.RegistrationID}}
}

func (c *Conductor) onAddCounter(cmd clientproto.Command) []clientproto.Event {
	id := c.Counters.Allocate(cmd.CounterTypeID, string(cmd.CounterKeyBuffer), cmd.CounterLabel, cmd.RegistrationID, cmd.ClientID)
	return []clientproto.Event{{Type: clientproto.EventCounterReady, CorrelationID: cmd.CorrelationID, RegistrationID: int64(id)}}
}

func (c *Conductor) onRemoveCounter(cmd clientproto.Command) []clientproto.Event {
	if err := c.Counters.Free(int32(cmd.RegistrationID)); err != nil {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownCounter, "unknown counter"))
	}
	return []clientproto.Event{{Type: clientproto.EventUnavailableCounter, CorrelationID: cmd.CorrelationID, RegistrationID: cmd.RegistrationID}}
}

// onAddRcvDestination adds a manual-MDC destination to the channel endpoint
// backing an existing subscription.
func (c *Conductor) onAddRcvDestination(cmd clientproto.Command) []clientproto.Event {
	link, ok := c.subscriptions[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownSubscription, "unknown subscription"))
	}
	ep, ok := c.endpoints[link.Channel]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewInvalidChannelError("conductor.add_rcv_destination", "no endpoint for channel"))
	}
	if err := ep.AddDestination(cmd.Destination, 0); err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

func (c *Conductor) onRemoveRcvDestination(cmd clientproto.Command) []clientproto.Event {
	link, ok := c.subscriptions[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownSubscription, "unknown subscription"))
	}
	ep, ok := c.endpoints[link.Channel]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewInvalidChannelError("conductor.remove_rcv_destination", "no endpoint for channel"))
	}
	ep.RemoveDestination(cmd.Destination)
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

// onAddDestination adds a manual-MDC destination to the channel endpoint
// backing an existing publication (the send-side counterpart of
// onAddRcvDestination).
func (c *Conductor) onAddDestination(cmd clientproto.Command) []clientproto.Event {
	pub, ok := c.publications[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownPublication, "unknown publication"))
	}
	ep, ok := c.endpoints[pub.Channel]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewInvalidChannelError("conductor.add_destination", "no endpoint for channel"))
	}
	if err := ep.AddDestination(cmd.Destination, 0); err != nil {
		return errorEvent(cmd.CorrelationID, err)
	}
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

func (c *Conductor) onRemoveDestination(cmd clientproto.Command) []clientproto.Event {
	pub, ok := c.publications[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownPublication, "unknown publication"))
	}
	ep, ok := c.endpoints[pub.Channel]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewInvalidChannelError("conductor.remove_destination", "no endpoint for channel"))
	}
	ep.RemoveDestination(cmd.Destination)
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

func (c *Conductor) onNextAvailableSessionId(cmd clientproto.Command) []clientproto.Event {
	return []clientproto.Event{{
		Type: clientproto.EventNextAvailableSessionId, CorrelationID: cmd.CorrelationID,
		SessionID: c.nextSessionID(), StreamID: cmd.StreamID,
	}}
}

// onRejectImage drains an image straight to DRAINING and unregisters it, for
// a receiver that detected the image's content is unusable (e.g. a
// mid-stream format change it can't decode).
func (c *Conductor) onRejectImage(cmd clientproto.Command) []clientproto.Event {
	img, ok := c.images[cmd.RegistrationID]
	if !ok {
		return errorEvent(cmd.CorrelationID, protoerr.NewRegistrationError(protoerr.ErrCodeUnknownSubscription, "unknown image"))
	}
	img.TransitionToDraining()
	delete(c.images, cmd.RegistrationID)
	c.receiverProxy.RemoveImage(cmd.RegistrationID)
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

func (c *Conductor) onClientKeepalive(cmd clientproto.Command) []clientproto.Event {
	c.Clients.Keepalive(cmd.ClientID, c.now())
	return nil
}

func (c *Conductor) onClientClose(cmd clientproto.Command) []clientproto.Event {
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

// onTerminateDriver arms the termination flag; DoWork returns an
// AgentTerminationRequested error on its next call so Runner unwinds the
// Conductor's duty-cycle loop cleanly.
func (c *Conductor) onTerminateDriver(cmd clientproto.Command) []clientproto.Event {
	c.terminating = true
	return []clientproto.Event{{Type: clientproto.EventOperationSuccess, CorrelationID: cmd.CorrelationID}}
}

func errorEvent(correlationID int64, err error) []clientproto.Event {
	return []clientproto.Event{{Type: clientproto.EventOnError, CorrelationID: correlationID, ErrorMessage: err.Error()}}
}

// DoWork drains the to-driver command ring, dispatches each command, and
// publishes the resulting events, then sweeps for client timeouts: each
// stale client has its publications and subscriptions torn down, its
// counters freed, an OnClientTimeout event published, and the
// client-timeouts system counter incremented. Once a TERMINATE_DRIVER
// command has been processed, the next call reports termination (without
// draining further commands) so the Runner unwinds this agent's duty-cycle
// loop cleanly.
func (c *Conductor) DoWork() (int, error) {
	if c.terminating {
		return 0, protoerr.NewAgentTerminationRequested("client requested driver shutdown")
	}
	work := 0
	for _, cmd := range c.Commands.Drain() {
		for _, ev := range c.Dispatcher.Dispatch(cmd) {
			c.Events.Publish(ev)
		}
		work++
	}
	now := c.now()
	for _, clientID := range c.Clients.Expired(now) {
		c.closeClient(clientID)
		c.Events.Publish(clientproto.Event{Type: clientproto.EventClientTimeout})
		c.Counters.Add(c.clientTimeoutsCounterID, 1)
		work++
	}
	return work, nil
}

// closeClient cascades a client's end-of-life: linger its publications,
// unlink its subscriptions, free any counters it owns.
func (c *Conductor) closeClient(clientID int64) {
	for id, pub := range c.publications {
		if pub.ClientID != clientID {
			continue
		}
		pub.MarkEOS(pub.SenderPosition())
		pub.TransitionToLinger()
		delete(c.publications, id)
		c.senderProxy.RemovePublication(id)
	}
	for id, link := range c.subscriptions {
		if link.ClientID != clientID {
			continue
		}
		for _, imgID := range link.LinkedImages() {
			if img, ok := c.images[imgID]; ok {
				img.TransitionToDraining()
			}
		}
		delete(c.subscriptions, id)
	}
	for _, snap := range c.Counters.Snapshot() {
		if snap.Meta.OwnerID == clientID {
			c.Counters.Free(snap.ID)
		}
	}
}

func (c *Conductor) OnClose() {}

// PublicationsActive reports the count of non-closed publications, used by
// ambient metrics.
func (c *Conductor) PublicationsActive() int {
	n := 0
	for _, p := range c.publications {
		if p.State() != publication.StateClosed {
			n++
		}
	}
	return n
}
