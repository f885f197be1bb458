package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/control"
	"github.com/shimaore/unicast/internal/ingest"
	"github.com/shimaore/unicast/internal/metrics"
	"github.com/shimaore/unicast/internal/session"
)

const (
	serviceName    = "unicastd"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	if *configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("ingest_address", fmt.Sprintf("%s:%d", cfg.Ingest.BindAddress, cfg.Ingest.Port)),
		slog.Int("max_frame_bytes", cfg.Audio.MaxFrameBytes),
		slog.String("default_local_ip", cfg.Defaults.LocalIP),
		slog.Int("default_local_port", cfg.Defaults.LocalPort),
		slog.Int("default_frames_per_packet", cfg.Defaults.FramesPerPacket),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize session manager
	manager := session.NewManager(logger, appMetrics)
	logger.Info("Session manager initialized")

	// Initialize tap ingest server
	tapServer := ingest.NewTapServer(&cfg.Ingest, &cfg.Audio, logger, manager, appMetrics)

	// Initialize control API server (if enabled)
	var httpServer *control.HTTPServer
	if cfg.Control.Enabled {
		runner := control.NewRunner(manager, cfg.Defaults, cfg.Audio)
		httpServer = control.NewHTTPServer(cfg, logger, runner, manager, tapServer, appMetrics)
		logger.Info("Control API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.Control.Address, cfg.Control.Port)),
		)
	}

	// Start tap ingest
	if err := tapServer.Start(); err != nil {
		logger.Error("Failed to start tap ingest server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start control API (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start control API server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the control API first (stop accepting new commands)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping control API server", slog.String("error", err.Error()))
		}
	}

	// Stop the tap ingest (stop accepting new frames)
	if err := tapServer.Stop(); err != nil {
		logger.Error("Error stopping tap ingest server", slog.String("error", err.Error()))
	}

	// Stop all sessions last so partial bunches flush before sockets close
	manager.StopAll()

	stats := tapServer.Statistics()
	logger.Info("Final ingest statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("frames_delivered", stats.FramesDelivered),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("unknown_sessions", stats.UnknownSessions),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
