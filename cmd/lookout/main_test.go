package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"frameworks/lookout/internal/backend"
	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/monitoring"
)

type refusingBackend struct{}

func (refusingBackend) Name() string { return "refusing" }

func (refusingBackend) Connect(context.Context, backend.Descriptor) (backend.Handle, error) {
	return nil, errors.New("connection refused")
}

func TestCameraHealthCheck(t *testing.T) {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)

	cfg := stream.Config{
		BackoffBase:    time.Millisecond,
		BackoffCeiling: 2 * time.Millisecond,
		MaxFailures:    1,
		BackendsFor: func(backend.Descriptor, int) []backend.Backend {
			return []backend.Backend{refusingBackend{}}
		},
	}
	registry := stream.NewRegistry(map[string]backend.Descriptor{
		"gate": {Brand: "HIKVISION", Host: "10.0.0.10"},
	}, cfg, logger)
	defer registry.Shutdown()

	check := cameraHealthCheck(registry)
	if got := check(); got.Status != monitoring.StatusHealthy {
		t.Fatalf("expected healthy with idle cameras, got %s", got.Status)
	}

	s, err := registry.Subscribe("gate")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer registry.Unsubscribe(s)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := check(); got.Status == monitoring.StatusDegraded {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("health check never reported the failed camera")
}
