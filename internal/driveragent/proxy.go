package driveragent

import (
	"net"
	"sync"

	"github.com/alxayo/mediadriver/internal/endpoint"
	"github.com/alxayo/mediadriver/internal/image"
	"github.com/alxayo/mediadriver/internal/publication"
)

// command is an internal task the Conductor hands to the Sender or
// Receiver agent: an outbound-message-channel pattern generalized into a
// bounded SPSC queue of closures executed on the target agent's own duty
// cycle, so agent-owned state is only ever touched by its own goroutine.
type command func()

// SPSCQueue is a single-producer/single-consumer bounded queue. The
// Conductor is the only producer; the owning agent is the only consumer.
type SPSCQueue struct {
	mu       sync.Mutex
	items    []command
	capacity int
}

func NewSPSCQueue(capacity int) *SPSCQueue {
	return &SPSCQueue{capacity: capacity}
}

func (q *SPSCQueue) Offer(c command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, c)
	return true
}

// DrainAll removes and returns every queued command for the consumer to
// run on its own duty cycle.
func (q *SPSCQueue) DrainAll() []command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *SPSCQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SenderProxy is the Conductor's handle for submitting work to the Sender
// agent. It holds a direct reference to the target agent so every submitted
// closure invokes a real SenderAgent method instead of carrying no payload;
// the queue still enforces that the Sender's own goroutine is the only one
// that ever touches SenderAgent state.
type SenderProxy struct {
	q     *SPSCQueue
	agent *SenderAgent
}

func NewSenderProxy(q *SPSCQueue, agent *SenderAgent) *SenderProxy {
	return &SenderProxy{q: q, agent: agent}
}

// AddPublication hands a newly-created publication to the Sender agent.
func (p *SenderProxy) AddPublication(pub *publication.Publication) bool {
	return p.q.Offer(func() { p.agent.AddPublication(pub) })
}

// RemovePublication stops the Sender agent from driving a publication once
// the Conductor has removed it from its own registry.
func (p *SenderProxy) RemovePublication(registrationID int64) bool {
	return p.q.Offer(func() { p.agent.RemovePublication(registrationID) })
}

// BindEndpoint shares a channel-endpoint with the Sender agent so it can
// write DATA/retransmit/heartbeat frames for publications on that channel.
func (p *SenderProxy) BindEndpoint(channel string, ep *endpoint.Endpoint) bool {
	return p.q.Offer(func() { p.agent.BindEndpoint(channel, ep) })
}

// ReceiverProxy is the Conductor's handle for submitting work to the
// Receiver agent, mirroring SenderProxy's direct-reference design.
type ReceiverProxy struct {
	q     *SPSCQueue
	agent *ReceiverAgent
}

func NewReceiverProxy(q *SPSCQueue, agent *ReceiverAgent) *ReceiverProxy {
	return &ReceiverProxy{q: q, agent: agent}
}

// AddImage hands a newly-created image to the Receiver agent and registers
// the endpoint handler that routes inbound DATA frames for (sessionID,
// streamID) to it, so img.OnDataReceived is driven from the real poll loop
// rather than only from tests.
func (p *ReceiverProxy) AddImage(registrationID int64, img *image.Image, ep *endpoint.Endpoint, key endpoint.StreamKey) bool {
	return p.q.Offer(func() {
		p.agent.AddImage(registrationID, img)
		if ep == nil {
			return
		}
		ep.RegisterHandler(key, func(data []byte, _ *net.UDPAddr) {
			p.agent.DispatchFrame(img, data)
		})
	})
}

// RemoveImage stops the Receiver agent from driving an image once the
// Conductor has removed it from its own registry.
func (p *ReceiverProxy) RemoveImage(registrationID int64) bool {
	return p.q.Offer(func() { p.agent.RemoveImage(registrationID) })
}

// BindEndpoint shares a channel-endpoint with the Receiver agent so it gets
// polled for inbound frames on every duty cycle.
func (p *ReceiverProxy) BindEndpoint(channel string, ep *endpoint.Endpoint) bool {
	return p.q.Offer(func() { p.agent.BindEndpoint(channel, ep) })
}
