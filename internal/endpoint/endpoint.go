// Package endpoint implements the channel-endpoint: the single UDP socket a
// set of Network-Publications or Publication-Images share, dispatching
// inbound wire frames by (sessionID, streamID) and fanning outbound frames
// to one or more destinations (multi-destination-cast). It generalizes
// relay.DestinationManager's map[string]*Destination fan-out
// (internal/rtmp/relay/manager.go) from RTMP sinks to UDP destinations with
// per-destination TTL control (golang.org/x/net/ipv4, per SPEC_FULL.md
// domain-stack wiring).
package endpoint

import (
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// StreamKey identifies a publication/image multiplexed on one endpoint.
type StreamKey struct {
	SessionID int32
	StreamID  int32
}

// FrameHandler receives a decoded-ready frame buffer and the source
// address it arrived from.
type FrameHandler func(data []byte, from *net.UDPAddr)

// Destination is one outbound send target with its own TTL.
type Destination struct {
	Addr *net.UDPAddr
	TTL  int
}

// Endpoint owns one UDP socket, shared across every publication/image that
// resolves to the same channelsuri.CanonicalForm().
type Endpoint struct {
	conn    *net.UDPConn
	pktConn *ipv4.PacketConn
	logger  *slog.Logger

	mu           sync.RWMutex
	destinations map[string]*Destination
	handlers     map[StreamKey]FrameHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// Options configures socket buffer sizes and reuse. The Conductor binds
// every endpoint with zero Options; no channel URI key is mapped onto it.
type Options struct {
	SoSndBuf int
	SoRcvBuf int
	Reuse    bool
}

// New binds a UDP socket at localAddr (the channel's "endpoint" or
// "control" address) and wraps it for per-destination TTL control.
func New(localAddr string, opts Options, logger *slog.Logger) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, protoerr.NewInvalidChannelError("endpoint.new", "cannot resolve "+localAddr)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, protoerr.NewChannelEndpointError(localAddr, err)
	}
	if err := applySocketOptions(conn, opts); err != nil {
		conn.Close()
		return nil, protoerr.NewChannelEndpointError(localAddr, err)
	}
	return &Endpoint{
		conn:         conn,
		pktConn:      ipv4.NewPacketConn(conn),
		logger:       logger,
		destinations: make(map[string]*Destination),
		handlers:     make(map[StreamKey]FrameHandler),
		closed:       make(chan struct{}),
	}, nil
}

func applySocketOptions(conn *net.UDPConn, opts Options) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if opts.SoSndBuf > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SoSndBuf); e != nil {
				sockErr = e
			}
		}
		if opts.SoRcvBuf > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.SoRcvBuf); e != nil {
				sockErr = e
			}
		}
		if opts.Reuse {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
				sockErr = e
			}
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// AddDestination registers an outbound send target with its own TTL,
// implementing multi-destination-cast fan-out.
func (e *Endpoint) AddDestination(addr string, ttl int) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return protoerr.NewInvalidChannelError("endpoint.add_destination", "cannot resolve "+addr)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destinations[addr] = &Destination{Addr: udpAddr, TTL: ttl}
	return nil
}

func (e *Endpoint) RemoveDestination(addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.destinations, addr)
}

// SendToAll writes data to every registered destination, setting each
// destination's configured TTL before the send (per-destination TTL is the
// one channel URI knob golang.org/x/net/ipv4 exists to serve here).
func (e *Endpoint) SendToAll(data []byte) []error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var errs []error
	for _, d := range e.destinations {
		if d.TTL > 0 {
			if err := e.pktConn.SetTTL(d.TTL); err != nil {
				errs = append(errs, protoerr.NewTransientIOError("endpoint.set_ttl", err))
				continue
			}
		}
		if _, err := e.conn.WriteToUDP(data, d.Addr); err != nil {
			errs = append(errs, protoerr.NewTransientIOError("endpoint.write", err))
		}
	}
	return errs
}

// RegisterHandler binds a stream key to the callback invoked by Poll when a
// frame for that key arrives.
func (e *Endpoint) RegisterHandler(key StreamKey, h FrameHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[key] = h
}

func (e *Endpoint) UnregisterHandler(key StreamKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, key)
}

// Poll performs one non-blocking receive attempt (the socket must be set
// non-blocking by the caller's duty-cycle harness via SetReadDeadline), and
// dispatches to the registered handler for (sessionID, streamID) extracted
// by extractKey. Returns the number of frames handled (0 or 1).
func (e *Endpoint) Poll(buf []byte, extractKey func([]byte) (StreamKey, bool)) int {
	n, from, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		return 0
	}
	key, ok := extractKey(buf[:n])
	if !ok {
		return 0
	}
	e.mu.RLock()
	h, ok := e.handlers[key]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	h(buf[:n], from)
	return 1
}

func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.conn.Close()
	})
	return err
}

func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }
