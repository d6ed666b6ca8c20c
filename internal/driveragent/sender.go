package driveragent

import (
	"time"

	"github.com/alxayo/mediadriver/internal/endpoint"
	"github.com/alxayo/mediadriver/internal/logbuffer"
	"github.com/alxayo/mediadriver/internal/metrics"
	"github.com/alxayo/mediadriver/internal/publication"
	"github.com/alxayo/mediadriver/internal/wire"
)

// senderHeartbeatInterval bounds how long a publication may go without any
// frame on the wire before the Sender inserts a zero-length heartbeat, per
// the wire format's keepalive rule.
const senderHeartbeatInterval = 100 * time.Millisecond

// maxFramesPerPublicationPerCycle bounds how many DATA frames one
// publication may flush in a single duty cycle, so one fast publisher can't
// starve the round-robin across every other publication this agent drives.
const maxFramesPerPublicationPerCycle = 128

// SenderAgent owns every active Network-Publication's outbound path: on
// each duty cycle it scans each publication's log buffer up to its current
// sender limit and writes DATA frames to the channel endpoint. It does not
// read its endpoints: SM and NAK input reaches it only through OnStatusMessage
// and OnNak, and nothing in the driver calls those; RTTM frames are not
// handled.
type SenderAgent struct {
	inbox        *SPSCQueue
	publications map[int64]*publication.Publication
	endpoints    map[string]*endpoint.Endpoint
	lastSentAt   map[int64]time.Time
	metrics      *metrics.Registry
	now          func() time.Time
}

func NewSenderAgent(inbox *SPSCQueue, reg *metrics.Registry) *SenderAgent {
	return &SenderAgent{
		inbox:        inbox,
		publications: make(map[int64]*publication.Publication),
		endpoints:    make(map[string]*endpoint.Endpoint),
		lastSentAt:   make(map[int64]time.Time),
		metrics:      reg,
		now:          time.Now,
	}
}

func (s *SenderAgent) Name() string { return "sender" }

// AddPublication registers a publication for this agent to drive; called
// only via the inbox from the Conductor's own duty cycle.
func (s *SenderAgent) AddPublication(pub *publication.Publication) { s.publications[pub.RegistrationID] = pub }
func (s *SenderAgent) RemovePublication(registrationID int64) {
	delete(s.publications, registrationID)
	delete(s.lastSentAt, registrationID)
}

func (s *SenderAgent) BindEndpoint(channel string, ep *endpoint.Endpoint) { s.endpoints[channel] = ep }

// OnStatusMessage feeds a received SM frame into the owning publication's
// flow-control strategy, updating its sender limit.
func (s *SenderAgent) OnStatusMessage(registrationID int64, sm wire.StatusFrame) {
	pub, ok := s.publications[registrationID]
	if !ok {
		return
	}
	limit := pub.FlowControl().OnStatusMessage(sm, pub.SenderPosition(), s.now())
	pub.SetSenderLimit(limit)
	if s.metrics != nil {
		s.metrics.FramesReceived.WithLabelValues(wire.TypeStatus.String()).Inc()
	}
}

// OnNak feeds a received NAK into the owning publication's retransmit
// handler; the actual retransmit write happens on a later duty cycle once
// the handler's delay elapses (see DoWork).
func (s *SenderAgent) OnNak(registrationID int64, nak wire.NakFrame) {
	pub, ok := s.publications[registrationID]
	if !ok {
		return
	}
	pub.Retransmit().OnNak(nak.TermID, nak.TermOffset, nak.Length, s.now())
	if s.metrics != nil {
		s.metrics.NaksReceived.Inc()
	}
}

// DoWork drains the inbox then drives every Network-Publication's outbound
// path: pending retransmits first, then new DATA up to the sender limit,
// falling back to a heartbeat if neither produced any wire traffic.
// Ipc-Publications have no wire component and are skipped (subscribers read
// their log buffer directly).
func (s *SenderAgent) DoWork() (int, error) {
	work := 0
	for _, c := range s.inbox.DrainAll() {
		c()
		work++
	}
	now := s.now()
	for _, pub := range s.publications {
		work += s.drivePublication(pub, now)
	}
	return work, nil
}

func (s *SenderAgent) drivePublication(pub *publication.Publication, now time.Time) int {
	if pub.Kind == publication.KindIPC {
		return 0
	}
	ep := s.endpoints[pub.Channel]
	if ep == nil {
		return 0
	}

	limit := pub.FlowControl().OnIdle(pub.SenderPosition(), now)
	pub.SetSenderLimit(limit)

	sent := s.sendPendingRetransmits(pub, ep, now)
	sent += s.sendData(pub, ep)
	if sent > 0 {
		s.lastSentAt[pub.RegistrationID] = now
		return sent
	}
	return s.sendHeartbeatIfIdle(pub, ep, now)
}

// sendData scans the publication's log buffer from its current
// sender-position and writes every already-published DATA frame to the
// endpoint, up to the sender limit flow control currently allows.
func (s *SenderAgent) sendData(pub *publication.Publication, ep *endpoint.Endpoint) int {
	lb := pub.LogBuffer
	termLength := lb.TermLength()
	sent := 0
	for i := 0; i < maxFramesPerPublicationPerCycle; i++ {
		position := pub.SenderPosition()
		if position >= pub.SenderLimit() {
			break
		}
		partitionIndex := lb.ActiveTermCount()
		scanner := logbuffer.NewScanner(lb, partitionIndex, int32(position%int64(termLength)))
		frame, ok, err := scanner.Scan()
		if err != nil || !ok {
			break // nothing new published yet, or a malformed frame left for rescan
		}
		buf := make([]byte, frame.FrameLength)
		n, err := wire.EncodeData(buf, frame)
		if err != nil {
			break
		}
		ep.SendToAll(buf[:n])
		pub.SetSenderPosition(position + int64(wire.AlignedLength(frame.FrameLength)))
		if s.metrics != nil {
			s.metrics.FramesSent.WithLabelValues(wire.TypeData.String()).Inc()
		}
		sent++
	}
	return sent
}

// sendPendingRetransmits re-reads each NAKed range directly from the log
// buffer (addressed by termID/termOffset rather than sender-position, since
// a retransmit can target data already behind the current read cursor) and
// writes it back out, then marks the action sent so the retransmit handler
// starts its linger window.
func (s *SenderAgent) sendPendingRetransmits(pub *publication.Publication, ep *endpoint.Endpoint, now time.Time) int {
	lb := pub.LogBuffer
	sent := 0
	for _, a := range pub.Retransmit().ReadyActions(now) {
		partitionIndex := a.TermID - lb.InitialTermID()
		scanner := logbuffer.NewScanner(lb, partitionIndex, a.TermOffset)
		frame, ok, err := scanner.Scan()
		if err != nil || !ok {
			continue
		}
		buf := make([]byte, frame.FrameLength)
		n, err := wire.EncodeData(buf, frame)
		if err != nil {
			continue
		}
		ep.SendToAll(buf[:n])
		pub.Retransmit().OnRetransmitSent(a.TermID, a.TermOffset, a.Length, now)
		if s.metrics != nil {
			s.metrics.FramesSent.WithLabelValues(wire.TypeData.String()).Inc()
		}
		sent++
	}
	return sent
}

// sendHeartbeatIfIdle inserts a zero-length DATA frame (BEGIN|END, no
// payload) at the publication's current sender-position without advancing
// it, keeping receivers' liveness checks satisfied while no real data is
// flowing.
func (s *SenderAgent) sendHeartbeatIfIdle(pub *publication.Publication, ep *endpoint.Endpoint, now time.Time) int {
	if last, ok := s.lastSentAt[pub.RegistrationID]; ok && now.Sub(last) < senderHeartbeatInterval {
		return 0
	}
	lb := pub.LogBuffer
	termLength := lb.TermLength()
	position := pub.SenderPosition()
	frame := wire.DataFrame{
		CommonHeader: wire.CommonHeader{Type: wire.TypeData, Flags: wire.FlagBegin | wire.FlagEnd},
		TermOffset:   int32(position % int64(termLength)),
		SessionID:    pub.SessionID,
		StreamID:     pub.StreamID,
		TermID:       lb.InitialTermID() + int32(position/int64(termLength)),
	}
	buf := make([]byte, wire.DataHeaderLength)
	n, err := wire.EncodeData(buf, frame)
	if err != nil {
		return 0
	}
	ep.SendToAll(buf[:n])
	s.lastSentAt[pub.RegistrationID] = now
	return 1
}

func (s *SenderAgent) OnClose() {}
