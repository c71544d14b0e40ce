package stream

import "time"

// SessionStatus is a point-in-time view of one session's delivery counters.
type SessionStatus struct {
	ID        string `json:"id"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	LastSeq   uint64 `json:"last_seq"`
}

// Status is a point-in-time view of one camera pipeline.
type Status struct {
	Camera      string          `json:"camera"`
	Brand       string          `json:"brand"`
	State       State           `json:"state"`
	Backend     string          `json:"backend,omitempty"`
	Sessions    int             `json:"sessions"`
	FramesTotal uint64          `json:"frames_total"`
	Buffered    int             `json:"buffered"`
	Failures    int             `json:"failures"`
	LastError   string          `json:"last_error,omitempty"`
	ConnectedAt *time.Time      `json:"connected_at,omitempty"`
	LastFrameAt *time.Time      `json:"last_frame_at,omitempty"`
	Viewers     []SessionStatus `json:"viewers,omitempty"`
}

// Status reports the pipeline's current state and counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Camera:      m.desc.Name,
		Brand:       m.desc.Brand,
		State:       m.state,
		Backend:     m.backendName,
		Sessions:    len(m.sessions),
		FramesTotal: m.ring.LastSeq(),
		Buffered:    m.ring.Len(),
		Failures:    m.failures,
		LastError:   m.lastErr,
	}
	if !m.connectedAt.IsZero() && m.state == StateStreaming {
		t := m.connectedAt
		st.ConnectedAt = &t
	}
	if !m.lastFrameAt.IsZero() && m.hadStream {
		t := m.lastFrameAt
		st.LastFrameAt = &t
	}
	for _, s := range m.sessions {
		st.Viewers = append(st.Viewers, SessionStatus{
			ID:        s.id,
			Delivered: s.Delivered(),
			Dropped:   s.Dropped(),
			LastSeq:   s.LastSeq(),
		})
	}
	return st
}
