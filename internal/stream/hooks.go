package stream

// Hooks receive pipeline events for metrics and lifecycle publishing. Every
// field is optional; a nil Hooks or nil field is a no-op. Callbacks run on
// the manager goroutine and must not block.
type Hooks struct {
	OnStateChange       func(camera string, from, to State)
	OnFrame             func(camera string, bytes int)
	OnFrameDropped      func(camera, sessionID string)
	OnSessionStart      func(camera string, active int)
	OnSessionEnd        func(camera string, active int)
	OnReconnect         func(camera string, attempt int)
	OnSubscribeRejected func(camera, reason string)
}

func (h *Hooks) stateChange(camera string, from, to State) {
	if h != nil && h.OnStateChange != nil {
		h.OnStateChange(camera, from, to)
	}
}

func (h *Hooks) frame(camera string, bytes int) {
	if h != nil && h.OnFrame != nil {
		h.OnFrame(camera, bytes)
	}
}

func (h *Hooks) frameDropped(camera, sessionID string) {
	if h != nil && h.OnFrameDropped != nil {
		h.OnFrameDropped(camera, sessionID)
	}
}

func (h *Hooks) sessionStart(camera string, active int) {
	if h != nil && h.OnSessionStart != nil {
		h.OnSessionStart(camera, active)
	}
}

func (h *Hooks) sessionEnd(camera string, active int) {
	if h != nil && h.OnSessionEnd != nil {
		h.OnSessionEnd(camera, active)
	}
}

func (h *Hooks) reconnect(camera string, attempt int) {
	if h != nil && h.OnReconnect != nil {
		h.OnReconnect(camera, attempt)
	}
}

func (h *Hooks) subscribeRejected(camera, reason string) {
	if h != nil && h.OnSubscribeRejected != nil {
		h.OnSubscribeRejected(camera, reason)
	}
}
