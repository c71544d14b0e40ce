package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/lookout/internal/backend"
)

func testRoster() map[string]backend.Descriptor {
	return map[string]backend.Descriptor{
		"gate":   {Brand: "HIKVISION", Host: "10.0.0.10"},
		"garage": {Brand: "INTELBRAS", Host: "10.0.0.11"},
		"lobby":  {Brand: "WEBCAM"},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := testConfig()
	cfg.BackendsFor = func(backend.Descriptor, int) []backend.Backend {
		return []backend.Backend{newFakeBackend("fake")}
	}
	r := NewRegistry(testRoster(), cfg, quietLogger())
	t.Cleanup(r.Shutdown)
	return r
}

func TestRegistry_UnknownCamera(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Subscribe("nope")
	assert.ErrorIs(t, err, ErrUnknownCamera)

	assert.ErrorIs(t, r.Restart("nope"), ErrUnknownCamera)

	_, err = r.StatusFor("nope")
	assert.ErrorIs(t, err, ErrUnknownCamera)
}

func TestRegistry_LazyManagerReuse(t *testing.T) {
	r := newTestRegistry(t)

	m1, err := r.Manager("gate")
	require.NoError(t, err)
	m2, err := r.Manager("gate")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, "gate", m1.Descriptor().Name, "roster key becomes the camera name")
}

func TestRegistry_StatusAllCoversUntouchedCameras(t *testing.T) {
	r := newTestRegistry(t)

	s, err := r.Subscribe("gate")
	require.NoError(t, err)
	defer r.Unsubscribe(s)

	waitFor(t, 5*time.Second, "gate pipeline woken", func() bool {
		st, err := r.StatusFor("gate")
		return err == nil && st.State != StateIdle
	})

	all := r.StatusAll()
	require.Len(t, all, 3)
	assert.Equal(t, "garage", all[0].Camera)
	assert.Equal(t, "gate", all[1].Camera)
	assert.Equal(t, "lobby", all[2].Camera)

	assert.Equal(t, StateIdle, all[0].State, "never-subscribed camera stays idle")
	assert.Equal(t, "INTELBRAS", all[0].Brand)
	assert.NotEqual(t, StateIdle, all[1].State)
	assert.Equal(t, 1, all[1].Sessions)
}

func TestRegistry_UnsubscribeByRegistry(t *testing.T) {
	r := newTestRegistry(t)

	s, err := r.Subscribe("garage")
	require.NoError(t, err)
	r.Unsubscribe(s)
	r.Unsubscribe(s)
	r.Unsubscribe(nil)

	st, err := r.StatusFor("garage")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Sessions)
}

func TestRegistry_ShutdownDetachesEverything(t *testing.T) {
	r := newTestRegistry(t)

	s, err := r.Subscribe("gate")
	require.NoError(t, err)

	r.Shutdown()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session survived shutdown")
	}

	_, err = r.Subscribe("gate")
	assert.Error(t, err)
}
