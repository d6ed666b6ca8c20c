// Package errorlog implements the driver's distinct, deduplicated-by-
// (origin, message) process error log: every observed
// error is folded into an existing entry when its origin and message
// match (no stack trace is captured), tracking first/last-seen timestamps and an occurrence count,
// rather than growing unbounded. Builds on the same
// errors.IsDriverError/IsTimeout classification-helper approach, extended
// here with a dedup map to keep the log bounded under repeated failures.
package errorlog

import (
	"fmt"
	"sync"
	"time"

	drivererrors "github.com/alxayo/mediadriver/internal/errors"
)

// Entry is one distinct error observation.
type Entry struct {
	Origin    string // the Op/stack-identifying string distinguishing this entry
	Message   string
	Count     int64
	FirstSeen time.Time
	LastSeen  time.Time
	IsTimeout bool
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s (count=%d, first=%s, last=%s)", e.Origin, e.Message, e.Count, e.FirstSeen.Format(time.RFC3339), e.LastSeen.Format(time.RFC3339))
}

type key struct {
	origin  string
	message string
}

// Log is a process-wide deduplicated error log. Safe for concurrent use;
// every agent and the Conductor record into the same Log instance.
type Log struct {
	mu      sync.Mutex
	entries map[key]*Entry
	order   []key // insertion order, for stable Snapshot iteration
	now     func() time.Time
}

// New constructs an empty Log. now defaults to time.Now; tests may supply a
// fake clock.
func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{entries: make(map[key]*Entry), now: now}
}

// Record folds err into the log, keyed by (origin, err.Error()). origin is
// typically the agent or operation name (e.g. "sender.duty_cycle",
// "conductor.on_nak") so that the same underlying message from two call
// sites is tracked distinctly.
func (l *Log) Record(origin string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{origin: origin, message: err.Error()}
	now := l.now()
	if e, ok := l.entries[k]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	e := &Entry{
		Origin:    origin,
		Message:   err.Error(),
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
		IsTimeout: drivererrors.IsTimeout(err),
	}
	l.entries[k] = e
	l.order = append(l.order, k)
}

// Len returns the number of distinct entries currently tracked.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a stable-ordered copy of every distinct entry.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, *l.entries[k])
	}
	return out
}

// Clear removes all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[key]*Entry)
	l.order = nil
}
