package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"frameworks/lookout/internal/backend"
	"frameworks/lookout/pkg/logging"
)

// State is the camera connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// ErrCapacityExceeded is returned by Subscribe when a camera already serves
// its maximum number of sessions.
var ErrCapacityExceeded = errors.New("stream: camera session capacity exceeded")

const (
	// watchdogTick drives the stall, keep-alive and idle checks while a
	// connection cycle runs.
	watchdogTick = 250 * time.Millisecond

	// connectTimeout bounds a single backend connect attempt.
	connectTimeout = 10 * time.Second
)

// Config tunes one camera pipeline. Zero values fall back to the defaults
// the upstream cameras were profiled with.
type Config struct {
	RingCapacity      int
	TargetFPS         float64
	FrameTimeout      time.Duration
	KeepAliveInterval time.Duration
	SessionQueue      int
	MaxSessions       int
	GracePeriod       time.Duration
	BackoffBase       time.Duration
	BackoffCeiling    time.Duration
	MaxFailures       int
	FailedCooldown    time.Duration
	DecodeErrorLimit  int
	JPEGQuality       int

	// Encoder turns raw backend frames into delivery payloads. Defaults to
	// backend.PassthroughEncode.
	Encoder backend.EncodeFunc

	// BackendsFor overrides backend selection, mainly for tests. Defaults
	// to backend.StackFor.
	BackendsFor func(desc backend.Descriptor, quality int) []backend.Backend

	// Hooks receive pipeline events. Optional.
	Hooks *Hooks
}

func (c Config) withDefaults() Config {
	if c.RingCapacity <= 0 {
		c.RingCapacity = 30
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = 30
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 30 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 5 * time.Second
	}
	if c.SessionQueue <= 0 {
		c.SessionQueue = 10
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 50
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 3 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 30 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.FailedCooldown <= 0 {
		c.FailedCooldown = 30 * time.Second
	}
	if c.DecodeErrorLimit <= 0 {
		c.DecodeErrorLimit = 10
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 85
	}
	if c.Encoder == nil {
		c.Encoder = backend.PassthroughEncode
	}
	if c.BackendsFor == nil {
		c.BackendsFor = func(desc backend.Descriptor, quality int) []backend.Backend {
			return backend.StackFor(desc, quality)
		}
	}
	return c
}

// Manager owns one camera: the single upstream connection, the frame ring and
// the fan-out to subscribed sessions. Exactly one run goroutine is alive
// while the camera is in any state other than Idle.
type Manager struct {
	desc backend.Descriptor
	cfg  Config
	log  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ring      *Ring
	restartCh chan struct{}

	mu             sync.Mutex
	sessions       map[string]*Session
	state          State
	backendName    string
	running        bool
	hadStream      bool
	failures       int
	failedAt       time.Time
	idleSince      time.Time
	connectedAt    time.Time
	lastFrameAt    time.Time
	lastRetainedAt time.Time
	lastDeliveryAt time.Time
	lastErr        string
}

// NewManager creates an idle pipeline for one camera. No connection is made
// until the first Subscribe.
func NewManager(desc backend.Descriptor, cfg Config, logger logging.Logger) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		desc:      desc,
		cfg:       cfg,
		log:       logger.WithField("camera", desc.Name),
		ctx:       ctx,
		cancel:    cancel,
		ring:      NewRing(cfg.RingCapacity),
		restartCh: make(chan struct{}, 1),
		sessions:  make(map[string]*Session),
		state:     StateIdle,
	}
}

// Descriptor returns the camera descriptor this manager serves.
func (m *Manager) Descriptor() backend.Descriptor { return m.desc }

// Subscribe attaches a new session. The first subscriber wakes the pipeline;
// a subscriber arriving while frames are already retained receives the newest
// one immediately, before any live frame. Subscribing to a camera that sat in
// Failed past its cooldown triggers a fresh connection cycle.
func (m *Manager) Subscribe() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.cfg.Hooks.subscribeRejected(m.desc.Name, "capacity")
		return nil, fmt.Errorf("%w: %s serves %d sessions", ErrCapacityExceeded, m.desc.Name, len(m.sessions))
	}

	s := newSession(m.desc.Name, m.cfg.SessionQueue)
	if newest := m.ring.Newest(); newest != nil {
		s.deliver(Update{Frame: newest})
	}
	m.sessions[s.id] = s
	m.idleSince = time.Time{}

	if !m.running {
		m.running = true
		m.failures = 0
		m.failedAt = time.Time{}
		m.wg.Add(1)
		go m.run(m.ctx)
	} else if m.state == StateFailed && time.Since(m.failedAt) >= m.cfg.FailedCooldown {
		m.failures = 0
		m.failedAt = time.Time{}
		m.signalRestart()
	}

	m.log.WithFields(logging.Fields{
		"session_id": s.id,
		"sessions":   len(m.sessions),
	}).Info("session subscribed")
	m.cfg.Hooks.sessionStart(m.desc.Name, len(m.sessions))
	return s, nil
}

// Unsubscribe detaches a session and closes its update channel. When the last
// session leaves, the connection lingers for the grace period before the
// pipeline disconnects and returns to Idle.
func (m *Manager) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	if _, ok := m.sessions[s.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.id)
	remaining := len(m.sessions)
	if remaining == 0 {
		m.idleSince = time.Now()
	}
	s.close()
	m.mu.Unlock()

	m.log.WithFields(logging.Fields{
		"session_id": s.id,
		"sessions":   remaining,
		"delivered":  s.Delivered(),
		"dropped":    s.Dropped(),
	}).Info("session unsubscribed")
	m.cfg.Hooks.sessionEnd(m.desc.Name, remaining)
}

// Restart clears the failure budget and forces the current connection cycle
// to tear down and reconnect. The pipeline goes back through Connecting, the
// same as a fresh start. It is a no-op on an idle camera.
func (m *Manager) Restart() {
	m.mu.Lock()
	m.failures = 0
	m.failedAt = time.Time{}
	m.hadStream = false
	running := m.running
	m.mu.Unlock()

	if running {
		m.log.Info("restart requested")
		m.signalRestart()
	}
}

// Close shuts the pipeline down and detaches every session.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	for id, s := range m.sessions {
		delete(m.sessions, id)
		s.close()
	}
	m.mu.Unlock()
}

func (m *Manager) signalRestart() {
	select {
	case m.restartCh <- struct{}{}:
	default:
	}
}

// run is the single goroutine owning the upstream connection. It loops
// through connect cycles until the camera goes idle, fails past its budget
// with no restart, or the manager is closed.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		if m.stopIfIdle(ctx) {
			return
		}

		m.mu.Lock()
		exhausted := m.failures >= m.cfg.MaxFailures
		retrying := m.failures > 0 || m.hadStream
		m.mu.Unlock()

		if exhausted {
			m.setState(StateFailed)
			m.awaitRestart(ctx)
			continue
		}

		// Connecting only on a camera's first cycle since idle or restart;
		// every retry after a failed cycle or a lost stream is Reconnecting.
		if retrying {
			m.setState(StateReconnecting)
		} else {
			m.setState(StateConnecting)
		}

		produced, aborted := m.attemptCycle(ctx)
		if produced || aborted {
			continue
		}

		m.mu.Lock()
		m.failures++
		attempt := m.failures
		if attempt >= m.cfg.MaxFailures {
			m.failedAt = time.Now()
		}
		lastErr := m.lastErr
		m.mu.Unlock()

		m.log.WithFields(logging.Fields{
			"attempt": attempt,
			"error":   lastErr,
		}).Warn("connect cycle failed")
		m.cfg.Hooks.reconnect(m.desc.Name, attempt)

		if attempt < m.cfg.MaxFailures {
			m.backoff(ctx, attempt)
		}
	}
}

// stopIfIdle decides atomically whether the run goroutine should exit, so a
// subscriber racing in while the pipeline winds down is never stranded.
func (m *Manager) stopIfIdle(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	graceOver := len(m.sessions) == 0 && !m.idleSince.IsZero() &&
		time.Since(m.idleSince) >= m.cfg.GracePeriod
	if ctx.Err() == nil && !graceOver {
		return false
	}

	m.running = false
	m.hadStream = false
	m.backendName = ""
	m.setStateLocked(StateIdle)
	if ctx.Err() != nil {
		for id, s := range m.sessions {
			delete(m.sessions, id)
			s.close()
		}
	}
	return true
}

// idleGraceElapsed is the non-destructive variant used inside a connection
// cycle; the authoritative exit decision stays with stopIfIdle.
func (m *Manager) idleGraceElapsed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions) == 0 && !m.idleSince.IsZero() &&
		time.Since(m.idleSince) >= m.cfg.GracePeriod
}

// attemptCycle walks the backend stack in preference order. A variant that
// connects but dies before its first frame triggers fallback to the next
// variant within the same cycle. The stack is re-evaluated from the top every
// cycle, so a camera served by the fallback migrates back to the preferred
// path on its next reconnect. It reports whether any frame arrived and
// whether the cycle was cut short by shutdown, restart or idle grace.
func (m *Manager) attemptCycle(ctx context.Context) (produced, aborted bool) {
	backends := m.cfg.BackendsFor(m.desc, m.cfg.JPEGQuality)
	if len(backends) == 0 {
		m.noteError(errors.New("stream: no backends configured"))
		return false, false
	}
	for _, b := range backends {
		if ctx.Err() != nil {
			return false, true
		}

		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		handle, err := b.Connect(attemptCtx, m.desc)
		cancel()
		if err != nil {
			m.noteError(err)
			m.log.WithFields(logging.Fields{
				"backend": b.Name(),
				"error":   err.Error(),
			}).Warn("backend connect failed")
			continue
		}

		produced, aborted = m.serve(ctx, handle, b.Name())
		if produced || aborted {
			return produced, aborted
		}
		// Connected but no frame ever arrived; fall back to the next variant.
	}
	return false, false
}

type readResult struct {
	raw backend.RawFrame
	err error
}

// serve runs one established connection until it ends: source error, stall,
// decode error burst, restart request, idle grace or shutdown. The pipeline
// enters Streaming only once the first frame arrives.
func (m *Manager) serve(ctx context.Context, handle backend.Handle, backendName string) (produced, aborted bool) {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer handle.Close()

	now := time.Now()
	m.mu.Lock()
	m.backendName = backendName
	m.connectedAt = now
	m.lastFrameAt = now
	m.lastDeliveryAt = now
	m.mu.Unlock()

	m.log.WithField("backend", backendName).Info("camera connected")

	results := make(chan readResult, 1)
	go func() {
		for {
			raw, err := handle.ReadFrame(cycleCtx)
			select {
			case results <- readResult{raw: raw, err: err}:
			case <-cycleCtx.Done():
				return
			}
			if err != nil && !errors.Is(err, backend.ErrDecode) {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()

	decodeErrs := 0
	for {
		select {
		case <-ctx.Done():
			return produced, true

		case <-m.restartCh:
			m.log.Info("connection cycle torn down for restart")
			return produced, true

		case res := <-results:
			if res.err != nil {
				if errors.Is(res.err, backend.ErrDecode) {
					decodeErrs++
					m.log.WithFields(logging.Fields{
						"consecutive": decodeErrs,
						"error":       res.err.Error(),
					}).Warn("frame decode failed")
					if decodeErrs >= m.cfg.DecodeErrorLimit {
						m.noteError(res.err)
						return produced, false
					}
					continue
				}
				if errors.Is(res.err, backend.ErrEndOfStream) {
					m.log.Info("source closed the stream")
				} else if cycleCtx.Err() == nil {
					m.log.WithField("error", res.err.Error()).Warn("stream read failed")
				}
				m.noteError(res.err)
				return produced, false
			}
			decodeErrs = 0
			if !produced {
				produced = true
				m.mu.Lock()
				m.failures = 0
				m.failedAt = time.Time{}
				m.hadStream = true
				m.lastErr = ""
				m.setStateLocked(StateStreaming)
				m.mu.Unlock()
			}
			m.handleFrame(res.raw)

		case <-ticker.C:
			now := time.Now()
			if m.idleGraceElapsed() {
				m.log.Info("no sessions left, disconnecting")
				return produced, true
			}

			m.mu.Lock()
			stalled := now.Sub(m.lastFrameAt) > m.cfg.FrameTimeout
			needKeepAlive := len(m.sessions) > 0 &&
				now.Sub(m.lastDeliveryAt) >= m.cfg.KeepAliveInterval
			m.mu.Unlock()

			if stalled {
				m.log.WithField("frame_timeout", m.cfg.FrameTimeout.String()).Warn("stream stalled")
				m.noteError(errors.New("stream: frame timeout"))
				return produced, false
			}
			if needKeepAlive {
				m.sendKeepAlive()
			}
		}
	}
}

func (m *Manager) noteError(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

// handleFrame applies rate control, encodes retained frames once and fans
// them out. Every arriving frame feeds the stall watchdog, retained or not.
func (m *Manager) handleFrame(raw backend.RawFrame) {
	now := time.Now()

	m.mu.Lock()
	m.lastFrameAt = now
	interval := time.Duration(float64(time.Second) / m.cfg.TargetFPS)
	if !m.lastRetainedAt.IsZero() && now.Sub(m.lastRetainedAt) < interval {
		m.mu.Unlock()
		return
	}
	m.lastRetainedAt = now
	m.mu.Unlock()

	payload, err := m.cfg.Encoder(raw, m.cfg.JPEGQuality)
	if err != nil {
		m.log.WithField("error", err.Error()).Warn("frame encode failed")
		return
	}

	m.mu.Lock()
	f := m.ring.Append(raw.Timestamp, payload)
	for _, s := range m.sessions {
		if !s.deliver(Update{Frame: f}) {
			m.cfg.Hooks.frameDropped(m.desc.Name, s.id)
		}
	}
	m.lastDeliveryAt = now
	m.mu.Unlock()

	m.cfg.Hooks.frame(m.desc.Name, len(payload))
}

// sendKeepAlive pushes a marker carrying the newest retained frame so quiet
// transports can re-emit it instead of going silent.
func (m *Manager) sendKeepAlive() {
	m.mu.Lock()
	newest := m.ring.Newest()
	for _, s := range m.sessions {
		s.deliver(Update{Frame: newest, KeepAlive: true})
	}
	m.lastDeliveryAt = time.Now()
	m.mu.Unlock()
}

// backoff sleeps between failed connect cycles, doubling from the base up to
// the ceiling. It wakes early on restart, shutdown or idle grace expiry.
func (m *Manager) backoff(ctx context.Context, attempt int) {
	d := m.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.BackoffCeiling {
			d = m.cfg.BackoffCeiling
			break
		}
	}

	deadline := time.Now().Add(d)
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.restartCh:
			m.mu.Lock()
			m.failures = 0
			m.failedAt = time.Time{}
			m.mu.Unlock()
			return
		case <-ticker.C:
			if m.idleGraceElapsed() || !time.Now().Before(deadline) {
				return
			}
		}
	}
}

// awaitRestart parks a failed pipeline until a restart arrives, the last
// session's grace expires or the manager shuts down.
func (m *Manager) awaitRestart(ctx context.Context) {
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.restartCh:
			m.mu.Lock()
			m.failures = 0
			m.failedAt = time.Time{}
			m.mu.Unlock()
			return
		case <-ticker.C:
			if m.idleGraceElapsed() {
				return
			}
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.setStateLocked(s)
	m.mu.Unlock()
}

// setStateLocked requires m.mu. Hooks fire inline and must not call back
// into the manager.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	m.log.WithFields(logging.Fields{
		"from": string(prev),
		"to":   string(next),
	}).Info("camera state changed")
	m.cfg.Hooks.stateChange(m.desc.Name, prev, next)
}
