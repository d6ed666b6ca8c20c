package clientproto

import (
	"sync"
)

// CommandRing is an MPSC queue of decoded commands: any number of client
// threads may enqueue, only the Conductor dequeues. Backed by a plain
// mutex-guarded slice rather than a lock-free ring, since this package
// models the logical shared-memory command/event ring without
// depending on cgo/shared-memory for the client<->driver transport itself
// (no client API surface is built here, so there is no real cross-process
// client to share memory with).
type CommandRing struct {
	mu       sync.Mutex
	commands []Command
	capacity int
}

func NewCommandRing(capacity int) *CommandRing {
	return &CommandRing{capacity: capacity}
}

// Offer enqueues cmd, returning false if the ring is at capacity (callers
// should back off and retry, mirroring a real ring buffer's behavior under
// contention).
func (r *CommandRing) Offer(cmd Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.commands) >= r.capacity {
		return false
	}
	r.commands = append(r.commands, cmd)
	return true
}

// Drain removes and returns every currently-queued command, for the
// Conductor's duty cycle to process in one pass.
func (r *CommandRing) Drain() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return nil
	}
	out := r.commands
	r.commands = nil
	return out
}

func (r *CommandRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// Broadcast is the to-clients event log: the Conductor publishes, every
// client polls from its own read position, matching server.Registry's
// broadcast-to-subscribers pattern (internal/rtmp/server/registry.go)
// generalized from RTMP messages to typed Events.
type Broadcast struct {
	mu     sync.Mutex
	events []Event
}

func NewBroadcast() *Broadcast { return &Broadcast{} }

func (b *Broadcast) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Since returns every event published at or after index, and the new index
// to resume from.
func (b *Broadcast) Since(index int) ([]Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index >= len(b.events) {
		return nil, len(b.events)
	}
	return append([]Event(nil), b.events[index:]...), len(b.events)
}
