// Package counters implements the driver's named in-process counters:
// a values slice (one atomic int64 per counter id) alongside a
// metadata slice (type id, key, label, registration id, owner id per
// slot). It generalizes relay.DestinationMetrics's plain-struct-behind-a-
// mutex counter pattern into a Reader/Manager split so code holding only a
// Reader can observe counters without allocating or mutating them. The
// counters live in process memory only; no other process can read them.
package counters

import (
	"sync"
	"sync/atomic"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// System counter type ids, a small excerpt of the full catalog named in
// a small excerpt of the full system-counter catalog (client timeouts, unblocked publications, retransmit overflow, and
// the per-stream position counters every image/publication registers).
const (
	TypeSystemClientTimeouts       int32 = 0
	TypeSystemUnblockedPublications int32 = 1
	TypeSystemRetransmitOverflow    int32 = 2
	TypeSystemErrorLogCount         int32 = 3
	TypePublisherPosition           int32 = 100
	TypePublisherLimit              int32 = 101
	TypeSubscriberPosition          int32 = 102
	TypeReceiverHighWaterMark       int32 = 103
)

// Metadata describes one counter slot.
type Metadata struct {
	TypeID         int32
	Key            string
	Label          string
	RegistrationID int64
	OwnerID        int64
	Free           bool
}

// Manager owns counter allocation; only the Conductor is expected to call
// its mutating methods. Values are stored in a plain []int64 that grows by
// append, so a counter's address can change when a new slot is allocated.
type Manager struct {
	mu       sync.Mutex
	values   []int64
	metadata []Metadata
	freeList []int32
}

func NewManager() *Manager {
	return &Manager{}
}

// Allocate reserves a new counter slot (or reuses a freed one) and returns
// its id.
func (m *Manager) Allocate(typeID int32, key, label string, registrationID, ownerID int64) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		m.metadata[id] = Metadata{TypeID: typeID, Key: key, Label: label, RegistrationID: registrationID, OwnerID: ownerID}
		atomic.StoreInt64(&m.values[id], 0)
		return id
	}
	id := int32(len(m.values))
	m.values = append(m.values, 0)
	m.metadata = append(m.metadata, Metadata{TypeID: typeID, Key: key, Label: label, RegistrationID: registrationID, OwnerID: ownerID})
	return id
}

// Free marks a counter id as available for reuse.
func (m *Manager) Free(id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || int(id) >= len(m.metadata) {
		return protoerr.NewControlProtocolError(0, "unknown counter id")
	}
	m.metadata[id].Free = true
	m.freeList = append(m.freeList, id)
	return nil
}

// Set stores value for id with release semantics.
func (m *Manager) Set(id int32, value int64) { atomic.StoreInt64(&m.values[id], value) }

// Add atomically increments the counter by delta and returns the new value.
func (m *Manager) Add(id int32, delta int64) int64 { return atomic.AddInt64(&m.values[id], delta) }

// Get volatile-reads the counter's current value.
func (m *Manager) Get(id int32) int64 { return atomic.LoadInt64(&m.values[id]) }

// Metadata returns a copy of the slot's metadata.
func (m *Manager) Metadata(id int32) Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata[id]
}

// Reader is an in-process read-only view over a Manager, for observing
// counters without the ability to allocate or mutate metadata.
type Reader struct{ m *Manager }

func NewReader(m *Manager) *Reader { return &Reader{m: m} }

func (r *Reader) Get(id int32) int64          { return r.m.Get(id) }
func (r *Reader) Metadata(id int32) Metadata  { return r.m.Metadata(id) }

// Snapshot returns every non-free counter's id, metadata, and value — used
// by the Conductor's closeClient to find the counters a client owns.
func (m *Manager) Snapshot() []struct {
	ID    int32
	Meta  Metadata
	Value int64
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]struct {
		ID    int32
		Meta  Metadata
		Value int64
	}, 0, len(m.metadata))
	for i, md := range m.metadata {
		if md.Free {
			continue
		}
		out = append(out, struct {
			ID    int32
			Meta  Metadata
			Value int64
		}{ID: int32(i), Meta: md, Value: atomic.LoadInt64(&m.values[i])})
	}
	return out
}
