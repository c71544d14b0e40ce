package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Update is one item on a session's delivery queue: either a frame or a
// keep-alive marker. Keep-alives carry the newest retained frame when one
// exists so transports can resend it.
type Update struct {
	Frame     *Frame
	KeepAlive bool
}

// Session is one viewer's subscription to a camera. The manager delivers into
// its bounded queue without ever blocking; when the queue is full the update
// is dropped and the session stays subscribed.
type Session struct {
	id     string
	camera string
	ch     chan Update

	lastSeq   atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(camera string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		id:     uuid.NewString(),
		camera: camera,
		ch:     make(chan Update, queueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Camera returns the camera name this session is subscribed to.
func (s *Session) Camera() string { return s.camera }

// Updates returns the receive side of the delivery queue. The channel is
// closed when the session is unsubscribed.
func (s *Session) Updates() <-chan Update { return s.ch }

// Done is closed when the session is unsubscribed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Delivered returns the number of updates placed on the queue.
func (s *Session) Delivered() uint64 { return s.delivered.Load() }

// Dropped returns the number of updates discarded because the queue was full.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// LastSeq returns the sequence number of the newest frame delivered to this
// session, zero before the first delivery.
func (s *Session) LastSeq() uint64 { return s.lastSeq.Load() }

// deliver enqueues an update without blocking. A frame that does not fit is
// dropped; the caller learns about it through the return value.
func (s *Session) deliver(u Update) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.ch <- u:
		s.delivered.Add(1)
		if u.Frame != nil {
			s.lastSeq.Store(u.Frame.Seq)
		}
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// close tears the session down. Safe to call more than once; only the manager
// calls it, always after removing the session from the fan-out set.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.ch)
	})
}
