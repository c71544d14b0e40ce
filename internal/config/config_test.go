package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "18019", cfg.Port)
	assert.Equal(t, 30, cfg.RingCapacity)
	assert.Equal(t, float64(30), cfg.TargetFPS)
	assert.Equal(t, 30*time.Second, cfg.FrameTimeout)
	assert.Equal(t, 5*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, 10, cfg.SessionQueue)
	assert.Equal(t, 50, cfg.MaxSessions)
	assert.Equal(t, 85, cfg.JPEGQuality)
	assert.False(t, cfg.EagerStart)
	assert.Equal(t, "camera_lifecycle", cfg.KafkaTopic)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("FRAME_BUFFER_SIZE", "60")
	t.Setenv("TARGET_FPS", "15")
	t.Setenv("FRAME_TIMEOUT", "10s")
	t.Setenv("EAGER_START", "true")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 60, cfg.RingCapacity)
	assert.Equal(t, float64(15), cfg.TargetFPS)
	assert.Equal(t, 10*time.Second, cfg.FrameTimeout)
	assert.True(t, cfg.EagerStart)

	sc := cfg.StreamConfig()
	assert.Equal(t, 60, sc.RingCapacity)
	assert.Equal(t, float64(15), sc.TargetFPS)
}

func TestLoadRoster_SingleCameraFromEnv(t *testing.T) {
	t.Setenv("CAMERA_NAME", "gate")
	t.Setenv("CAMERA_BRAND", "INTELBRAS")
	t.Setenv("CAMERA_HOST", "10.0.0.9")
	t.Setenv("CAMERA_USERNAME", "admin")

	roster, err := Load().LoadRoster()
	require.NoError(t, err)
	require.Len(t, roster, 1)

	d := roster["gate"]
	assert.Equal(t, "INTELBRAS", d.Brand)
	assert.Equal(t, "10.0.0.9", d.Host)
	assert.Equal(t, "admin", d.Username)
	assert.Equal(t, 1, d.Channel)
}

func TestLoadRoster_DefaultsToDemoCamera(t *testing.T) {
	roster, err := Load().LoadRoster()
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "WEBCAM", roster["demo"].Brand)
}

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cameras.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRoster_FromFile(t *testing.T) {
	path := writeRoster(t, `[
		{"name": "gate", "brand": "HIKVISION", "host": "10.0.0.10", "username": "admin", "password": "s3cret"},
		{"name": "lobby", "brand": "WEBCAM"}
	]`)
	t.Setenv("CAMERAS_FILE", path)

	roster, err := Load().LoadRoster()
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "10.0.0.10", roster["gate"].Host)
	assert.Equal(t, "WEBCAM", roster["lobby"].Brand)
}

func TestLoadRoster_FileValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", `[{"brand": "HIKVISION", "host": "10.0.0.10"}]`},
		{"duplicate name", `[{"name": "a", "brand": "WEBCAM"}, {"name": "a", "brand": "WEBCAM"}]`},
		{"no endpoint", `[{"name": "a", "brand": "HIKVISION"}]`},
		{"empty list", `[]`},
		{"not json", `nope`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CAMERAS_FILE", writeRoster(t, tc.content))
			_, err := Load().LoadRoster()
			assert.Error(t, err)
		})
	}
}

func TestLoadRoster_MissingFile(t *testing.T) {
	t.Setenv("CAMERAS_FILE", filepath.Join(t.TempDir(), "absent.json"))
	_, err := Load().LoadRoster()
	assert.Error(t, err)
}
