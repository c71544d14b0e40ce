// Package stream implements the per-camera pipeline: one manager owns the
// upstream connection, decodes frames once through a backend, retains them in
// a bounded ring and fans them out to subscribed sessions without ever
// blocking on a slow consumer.
package stream

import (
	"sync"
	"time"
)

// Frame is one encoded frame ready for delivery. Frames are immutable after
// publication; sessions and the ring share the same instance.
type Frame struct {
	// Seq increases by one per retained frame for a camera's lifetime. It
	// never resets, not even across reconnects.
	Seq       uint64
	Timestamp time.Time
	Data      []byte
}

// Ring retains the newest frames of a camera in a fixed-capacity overwrite
// buffer. Appending when full evicts the oldest entry.
type Ring struct {
	mu     sync.RWMutex
	frames []*Frame
	head   int
	size   int
	seq    uint64
}

// NewRing creates a ring holding at most capacity frames. capacity <= 0 is
// clamped to 1.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{frames: make([]*Frame, capacity)}
}

// Append stamps the next sequence number onto a frame built from the payload
// and retains it, evicting the oldest frame when full. It returns the
// retained frame.
func (r *Ring) Append(timestamp time.Time, data []byte) *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	f := &Frame{Seq: r.seq, Timestamp: timestamp, Data: data}

	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)
	if r.size < len(r.frames) {
		r.size++
	}
	return f
}

// Newest returns the most recently appended frame, or nil when empty.
func (r *Ring) Newest() *Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return nil
	}
	idx := (r.head - 1 + len(r.frames)) % len(r.frames)
	return r.frames[idx]
}

// Snapshot returns the retained frames oldest-first.
func (r *Ring) Snapshot() []*Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Frame, 0, r.size)
	start := (r.head - r.size + len(r.frames)) % len(r.frames)
	for i := 0; i < r.size; i++ {
		out = append(out, r.frames[(start+i)%len(r.frames)])
	}
	return out
}

// Len returns the number of retained frames.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.frames)
}

// LastSeq returns the sequence number of the newest frame, zero before the
// first append.
func (r *Ring) LastSeq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
