// Package config loads the lookout service configuration: HTTP settings,
// stream pipeline tuning and the camera roster.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"frameworks/lookout/internal/backend"
	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/config"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port         string
	CamerasFile  string
	EagerStart   bool
	KafkaBrokers string
	KafkaTopic   string

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
	JPEGQuality       int
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Port:         config.GetEnv("PORT", "18019"),
		CamerasFile:  config.GetEnv("CAMERAS_FILE", ""),
		EagerStart:   config.GetEnvBool("EAGER_START", false),
		KafkaBrokers: config.GetEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   config.GetEnv("KAFKA_TOPIC", "camera_lifecycle"),

		RingCapacity:      config.GetEnvInt("FRAME_BUFFER_SIZE", 30),
		TargetFPS:         config.GetEnvFloat("TARGET_FPS", 30),
		FrameTimeout:      config.GetEnvDuration("FRAME_TIMEOUT", 30*time.Second),
		KeepAliveInterval: config.GetEnvDuration("KEEPALIVE_INTERVAL", 5*time.Second),
		SessionQueue:      config.GetEnvInt("CLIENT_QUEUE_SIZE", 10),
		MaxSessions:       config.GetEnvInt("MAX_CLIENTS_PER_CAMERA", 50),
		GracePeriod:       config.GetEnvDuration("IDLE_GRACE_PERIOD", 3*time.Second),
		BackoffBase:       config.GetEnvDuration("RECONNECT_BACKOFF", 500*time.Millisecond),
		BackoffCeiling:    config.GetEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		MaxFailures:       config.GetEnvInt("MAX_CONNECT_FAILURES", 5),
		FailedCooldown:    config.GetEnvDuration("FAILED_COOLDOWN", 30*time.Second),
		JPEGQuality:       config.GetEnvInt("JPEG_QUALITY", 85),
	}
}

// StreamConfig converts the service configuration into pipeline tuning.
func (c Config) StreamConfig() stream.Config {
	return stream.Config{
		RingCapacity:      c.RingCapacity,
		TargetFPS:         c.TargetFPS,
		FrameTimeout:      c.FrameTimeout,
		KeepAliveInterval: c.KeepAliveInterval,
		SessionQueue:      c.SessionQueue,
		MaxSessions:       c.MaxSessions,
		GracePeriod:       c.GracePeriod,
		BackoffBase:       c.BackoffBase,
		BackoffCeiling:    c.BackoffCeiling,
		MaxFailures:       c.MaxFailures,
		FailedCooldown:    c.FailedCooldown,
		JPEGQuality:       c.JPEGQuality,
	}
}

// LoadRoster builds the camera roster. A CAMERAS_FILE takes precedence;
// otherwise a single camera is read from CAMERA_* variables. With neither
// present the roster holds one synthetic demo camera, so a bare service is
// still viewable.
func (c Config) LoadRoster() (map[string]backend.Descriptor, error) {
	if c.CamerasFile != "" {
		return loadRosterFile(c.CamerasFile)
	}
	if config.GetEnv("CAMERA_HOST", "") != "" || config.GetEnv("CAMERA_BRAND", "") != "" {
		d := descriptorFromEnv()
		return map[string]backend.Descriptor{d.Name: d}, nil
	}
	return map[string]backend.Descriptor{
		"demo": {Name: "demo", Brand: "WEBCAM"},
	}, nil
}

func descriptorFromEnv() backend.Descriptor {
	return backend.Descriptor{
		Name:        config.GetEnv("CAMERA_NAME", "camera"),
		Brand:       config.GetEnv("CAMERA_BRAND", "HIKVISION"),
		Host:        config.GetEnv("CAMERA_HOST", ""),
		Port:        config.GetEnvInt("CAMERA_PORT", 0),
		Channel:     config.GetEnvInt("CAMERA_CHANNEL", 1),
		StreamType:  config.GetEnv("CAMERA_STREAM", "main"),
		Username:    config.GetEnv("CAMERA_USERNAME", ""),
		Password:    config.GetEnv("CAMERA_PASSWORD", ""),
		SourceURL:   config.GetEnv("CAMERA_SOURCE_URL", ""),
		BackendHint: config.GetEnv("CAMERA_BACKEND", ""),
	}
}

func loadRosterFile(path string) (map[string]backend.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read cameras file: %w", err)
	}

	var list []backend.Descriptor
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("config: parse cameras file %s: %w", path, err)
	}

	roster := make(map[string]backend.Descriptor, len(list))
	for i, d := range list {
		if d.Name == "" {
			return nil, fmt.Errorf("config: cameras file %s: entry %d has no name", path, i)
		}
		if _, dup := roster[d.Name]; dup {
			return nil, fmt.Errorf("config: cameras file %s: duplicate camera %q", path, d.Name)
		}
		if d.Host == "" && d.SourceURL == "" && !backend.IsWebcam(d.Brand) {
			return nil, fmt.Errorf("config: cameras file %s: camera %q has neither host nor source_url", path, d.Name)
		}
		roster[d.Name] = d
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("config: cameras file %s lists no cameras", path)
	}
	return roster, nil
}
