package driveragent

import (
	"time"

	"github.com/alxayo/mediadriver/internal/endpoint"
	"github.com/alxayo/mediadriver/internal/image"
	"github.com/alxayo/mediadriver/internal/metrics"
	"github.com/alxayo/mediadriver/internal/wire"
)

// ReceiverAgent owns every active Publication-Image: on each duty cycle it
// polls each bound channel endpoint for inbound DATA frames (dispatched to
// the owning image via endpoint.FrameHandler), advances gap tracking, and
// counts the gaps the loss detector reports ready to NAK in the NaksSent
// metric. No NAK frame is written to the wire.
type ReceiverAgent struct {
	inbox     *SPSCQueue
	images    map[int64]*image.Image // keyed by registration id
	endpoints map[string]*endpoint.Endpoint
	metrics   *metrics.Registry
	now       func() time.Time
	pollBuf   []byte
}

func NewReceiverAgent(inbox *SPSCQueue, reg *metrics.Registry) *ReceiverAgent {
	return &ReceiverAgent{
		inbox:     inbox,
		images:    make(map[int64]*image.Image),
		endpoints: make(map[string]*endpoint.Endpoint),
		metrics:   reg,
		now:       time.Now,
		pollBuf:   make([]byte, 64*1024),
	}
}

func (r *ReceiverAgent) Name() string { return "receiver" }

func (r *ReceiverAgent) AddImage(registrationID int64, img *image.Image) { r.images[registrationID] = img }
func (r *ReceiverAgent) RemoveImage(registrationID int64)                { delete(r.images, registrationID) }

func (r *ReceiverAgent) BindEndpoint(channel string, ep *endpoint.Endpoint) { r.endpoints[channel] = ep }

// DispatchFrame decodes an inbound DATA frame and advances the owning
// image's high-water-mark (or registers a gap), the way endpoint.Poll's
// registered handler routes a datagram once extractStreamKey has matched it
// to this image's (sessionID, streamID).
func (r *ReceiverAgent) DispatchFrame(img *image.Image, data []byte) {
	f, err := wire.DecodeData(data)
	if err != nil {
		return
	}
	img.OnDataReceived(f.TermID, f.TermOffset, f.FrameLength, r.now())
	if r.metrics != nil {
		r.metrics.FramesReceived.WithLabelValues(wire.TypeData.String()).Inc()
	}
}

// extractStreamKey identifies the (sessionID, streamID) a raw datagram
// belongs to so endpoint.Poll can route it to the registered handler.
// DATA/PAD and SETUP frames share the same session/stream header layout;
// NAK/SM/RTTM control frames arriving on a bound endpoint are not matched,
// so Poll drops them.
func extractStreamKey(b []byte) (endpoint.StreamKey, bool) {
	t, err := wire.PeekType(b)
	if err != nil {
		return endpoint.StreamKey{}, false
	}
	switch t {
	case wire.TypeData, wire.TypePad:
		f, err := wire.DecodeData(b)
		if err != nil {
			return endpoint.StreamKey{}, false
		}
		return endpoint.StreamKey{SessionID: f.SessionID, StreamID: f.StreamID}, true
	case wire.TypeSetup:
		f, err := wire.DecodeSetup(b)
		if err != nil {
			return endpoint.StreamKey{}, false
		}
		return endpoint.StreamKey{SessionID: f.SessionID, StreamID: f.StreamID}, true
	default:
		return endpoint.StreamKey{}, false
	}
}

// DoWork drains the inbox, polls every bound endpoint once (non-blocking),
// and advances LINGER->DONE ticks plus NAK scheduling for every image.
func (r *ReceiverAgent) DoWork() (int, error) {
	work := 0
	for _, c := range r.inbox.DrainAll() {
		c()
		work++
	}
	now := r.now()
	for _, img := range r.images {
		img.Tick(now)
		pending := img.PendingNaks(now)
		if len(pending) > 0 && r.metrics != nil {
			r.metrics.NaksSent.Add(float64(len(pending)))
		}
		work += len(pending)
	}
	for _, ep := range r.endpoints {
		n := ep.Poll(r.pollBuf, extractStreamKey)
		work += n
	}
	return work, nil
}

func (r *ReceiverAgent) OnClose() {}
