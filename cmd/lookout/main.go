package main

import (
	"fmt"
	"strings"

	appconfig "frameworks/lookout/internal/config"
	"frameworks/lookout/internal/events"
	"frameworks/lookout/internal/handlers"
	"frameworks/lookout/internal/metrics"
	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/config"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/monitoring"
	"frameworks/lookout/pkg/server"
	"frameworks/lookout/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("lookout")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Lookout (Camera Stream Hub)")

	cfg := appconfig.Load()
	roster, err := cfg.LoadRoster()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load camera roster")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("lookout", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("lookout", version.Version, version.GitCommit)

	// Create custom metrics
	streamMetrics := metrics.New(metricsCollector)

	// Optional lifecycle publishing to Kafka
	var lifecycleHooks *stream.Hooks
	if cfg.KafkaBrokers != "" {
		publisher, err := events.NewPublisher(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Kafka publisher")
		}
		defer publisher.Close()
		lifecycleHooks = publisher.Hooks()

		healthChecker.AddCheck("kafka", func() monitoring.CheckResult {
			if err := publisher.HealthCheck(); err != nil {
				return monitoring.CheckResult{Status: monitoring.StatusDegraded, Message: err.Error()}
			}
			return monitoring.CheckResult{Status: monitoring.StatusHealthy}
		})
	}

	// Build the camera registry
	streamCfg := cfg.StreamConfig()
	streamCfg.Hooks = streamMetrics.Hooks(lifecycleHooks)
	registry := stream.NewRegistry(roster, streamCfg, logger)
	defer registry.Shutdown()

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"cameras": fmt.Sprintf("%d", len(roster)),
	}))
	healthChecker.AddCheck("cameras", cameraHealthCheck(registry))

	// Eager start pins a warm session per camera so connections come up at
	// boot instead of on the first viewer.
	if cfg.EagerStart {
		for _, name := range registry.Cameras() {
			s, err := registry.Subscribe(name)
			if err != nil {
				logger.WithError(err).WithField("camera", name).Warn("eager start failed")
				continue
			}
			go func() {
				for range s.Updates() {
				}
			}()
		}
		logger.WithField("cameras", len(registry.Cameras())).Info("Eager start enabled")
	}

	// Initialize handlers
	lookoutHandlers := handlers.NewLookoutHandlers(registry, logger)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "lookout", healthChecker, metricsCollector)

	// Viewer pages
	router.GET("/", lookoutHandlers.HandleIndex)
	router.GET("/cameras/:camera", lookoutHandlers.HandleCameraPage)

	// Stream API
	api := router.Group("/api")
	api.GET("/status", lookoutHandlers.HandleStatus)
	api.GET("/cameras/:camera/status", lookoutHandlers.HandleCameraStatus)
	api.POST("/cameras/:camera/restart", lookoutHandlers.HandleRestart)
	api.GET("/cameras/:camera/feed", lookoutHandlers.HandleVideoFeed)
	api.GET("/cameras/:camera/ws", lookoutHandlers.HandleWSFeed)

	router.NoRoute(lookoutHandlers.HandleNotFound)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("lookout", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

// cameraHealthCheck reports degraded when any camera pipeline sits in Failed.
func cameraHealthCheck(registry *stream.Registry) monitoring.HealthCheck {
	return func() monitoring.CheckResult {
		var failed []string
		for _, st := range registry.StatusAll() {
			if st.State == stream.StateFailed {
				failed = append(failed, st.Camera)
			}
		}
		if len(failed) > 0 {
			return monitoring.CheckResult{
				Status:  monitoring.StatusDegraded,
				Message: fmt.Sprintf("cameras failed: %s", strings.Join(failed, ", ")),
			}
		}
		return monitoring.CheckResult{Status: monitoring.StatusHealthy}
	}
}
