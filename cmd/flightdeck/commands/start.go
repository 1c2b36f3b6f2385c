package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/internal/telemetry"
	"github.com/openutm/flightdeck/pkg/api"
	"github.com/openutm/flightdeck/pkg/conformance"
	"github.com/openutm/flightdeck/pkg/config"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/deconfliction"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/kv"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/notification"
	"github.com/openutm/flightdeck/pkg/orchestrator"
	"github.com/openutm/flightdeck/pkg/scheduler"

	// Import prometheus metrics to register init() functions
	_ "github.com/openutm/flightdeck/pkg/metrics/prometheus"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the flightdeck server",
	Long: `Start the flightdeck server with the specified configuration.

The server needs a reachable Redis instance and, when the USSP network is
enabled, a DSS endpoint with auth credentials.

Examples:
  # Start with default config location
  flightdeck start

  # Start with custom config file
  flightdeck start --config /etc/flightdeck/config.yaml

  # Use environment variables to override config
  FLIGHTDECK_LOGGING_LEVEL=DEBUG flightdeck start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName = "flightdeck"
	telemetryCfg.ServiceVersion = Version
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(cfg.Telemetry.Profiling, "flightdeck", Version)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST (before creating the components that use them)
	var coordMetrics metrics.CoordinationMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		coordMetrics = metrics.NewCoordinationMetrics()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Relational store: declarations, authorizations, tracking, geofences
	gormStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = gormStore.Close() }()

	// Redis: snapshots, token cache, telemetry stream, pub/sub, locks
	kvStore, err := kv.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = kvStore.Close() }()
	logger.Info("Redis connected", "addr", cfg.Redis.Addr)

	snapshots := dss.NewSnapshotStore(kvStore)

	// DSS client and peer notifier share the token provider
	tokens := dss.NewTokenProvider(cfg.DSS.Auth, kvStore)
	dssClient, err := dss.NewClient(cfg.DSS, tokens)
	if err != nil {
		return fmt.Errorf("failed to create DSS client: %w", err)
	}
	notifier := dss.NewNotifier(cfg.Coordination.SelfBaseURL, tokens)
	if cfg.Coordination.USSPNetworkEnabled {
		logger.Info("USSP network enabled", "dss", cfg.DSS.BaseURL, "self", cfg.Coordination.SelfBaseURL)
	} else {
		logger.Info("USSP network disabled, coordinating locally only")
	}

	planner := deconfliction.NewPlanner(snapshots, gormStore)
	engine := conformance.NewEngine()
	engine.TelemetryTimeout = cfg.Coordination.TelemetryTimeout
	publisher := notification.NewPublisher(kvStore)

	coordinator := orchestrator.New(orchestrator.Config{
		SelfBaseURL:                 cfg.Coordination.SelfBaseURL,
		EnableConformanceMonitoring: cfg.Coordination.EnableConformanceMonitoring,
		USSPNetworkEnabled:          cfg.Coordination.USSPNetworkEnabled,
		MaxDeclarationWindow:        cfg.Coordination.MaxDeclarationWindow,
		StreamMaxLen:                cfg.Coordination.StreamMaxLen,
	}, gormStore, kvStore, snapshots, dssClient, notifier, planner, engine, publisher, coordMetrics)

	jobs := scheduler.New(scheduler.Config{
		Workers:       cfg.Coordination.Workers,
		HeartbeatRate: cfg.Coordination.HeartbeatRate,
	}, coordinator)
	coordinator.SetScheduler(jobs)
	jobs.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := jobs.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler shutdown error", "error", err)
		}
	}()

	apiServer := api.NewServer(api.Config{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		RequestTimeout: cfg.API.RequestTimeout,
		JWTSecret:      cfg.API.JWTSecret,
	}, coordinator, gormStore, kvStore)
	logger.Info("API server configured", "host", cfg.API.Host, "port", cfg.API.Port)

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
