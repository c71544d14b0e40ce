package stream

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"frameworks/lookout/internal/backend"
	"frameworks/lookout/pkg/logging"
)

// ErrUnknownCamera is returned for camera names absent from the roster.
var ErrUnknownCamera = errors.New("stream: unknown camera")

// Registry maps camera names to their pipelines. Managers are created lazily
// on first use and live until shutdown; an unused manager costs nothing
// because its pipeline stays Idle.
type Registry struct {
	cfg Config
	log logging.Logger

	mu       sync.Mutex
	roster   map[string]backend.Descriptor
	managers map[string]*Manager
	closed   bool
}

// NewRegistry creates a registry serving the given camera roster.
func NewRegistry(roster map[string]backend.Descriptor, cfg Config, logger logging.Logger) *Registry {
	r := &Registry{
		cfg:      cfg,
		log:      logger,
		roster:   make(map[string]backend.Descriptor, len(roster)),
		managers: make(map[string]*Manager),
	}
	for name, desc := range roster {
		desc.Name = name
		r.roster[name] = desc
	}
	return r
}

// Cameras returns the roster names in stable order.
func (r *Registry) Cameras() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.roster))
	for name := range r.roster {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manager returns the pipeline for a camera, creating it on first use.
func (r *Registry) Manager(camera string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("stream: registry is shut down")
	}
	if m, ok := r.managers[camera]; ok {
		return m, nil
	}
	desc, ok := r.roster[camera]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCamera, camera)
	}
	m := NewManager(desc, r.cfg, r.log)
	r.managers[camera] = m
	return m, nil
}

// Subscribe attaches a session to a camera, waking its pipeline if needed.
func (r *Registry) Subscribe(camera string) (*Session, error) {
	m, err := r.Manager(camera)
	if err != nil {
		return nil, err
	}
	return m.Subscribe()
}

// Unsubscribe detaches a session from its camera.
func (r *Registry) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	m := r.managers[s.Camera()]
	r.mu.Unlock()
	if m != nil {
		m.Unsubscribe(s)
	}
}

// Restart forces a camera's pipeline to reconnect.
func (r *Registry) Restart(camera string) error {
	m, err := r.Manager(camera)
	if err != nil {
		return err
	}
	m.Restart()
	return nil
}

// StatusFor reports one camera's pipeline status.
func (r *Registry) StatusFor(camera string) (Status, error) {
	r.mu.Lock()
	desc, known := r.roster[camera]
	m := r.managers[camera]
	r.mu.Unlock()

	if !known {
		return Status{}, fmt.Errorf("%w: %q", ErrUnknownCamera, camera)
	}
	if m == nil {
		// Never touched: report the idle shape without building a pipeline.
		return Status{Camera: camera, Brand: desc.Brand, State: StateIdle}, nil
	}
	return m.Status(), nil
}

// StatusAll reports every roster camera, ordered by name.
func (r *Registry) StatusAll() []Status {
	out := make([]Status, 0)
	for _, name := range r.Cameras() {
		if st, err := r.StatusFor(name); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// Shutdown stops every pipeline and detaches all sessions.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
	r.log.Info("all camera pipelines stopped")
}
