package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"espmonitor/api"
	"espmonitor/config"
	"espmonitor/network"
	"espmonitor/output"
	"espmonitor/serial"
	"espmonitor/session"
	"espmonitor/status"
	"espmonitor/stream"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	appName    = "ESPMonitor"
	appVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when omitted)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	} else if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid default configuration: %v", err)
	}

	logger := setupLogging(cfg, *debug)
	logger.Info("Starting ESPMonitor",
		"version", appVersion,
		"instance", cfg.App.InstanceID,
		"config", *configPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Optional NATS mirror; the service runs the same without it
	var natsConn *output.NATSConnection
	if cfg.NATS.Enabled {
		conn, err := output.NewNATSConnection(cfg.NATS.URL, output.NATSOptions{
			Name:          fmt.Sprintf("%s-%s", appName, cfg.App.InstanceID),
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait(),
		}, logger)
		if err != nil {
			logger.Warn("NATS unavailable, continuing without mirror", "error", err)
		} else {
			natsConn = conn
		}
	}

	var (
		events *output.EventPublisher
		mirror *output.LineMirror
	)
	if natsConn != nil {
		events = output.NewEventPublisher(&output.EventPublisherConfig{
			Conn:       natsConn,
			Subject:    output.BuildEventsSubject(cfg.NATS.SubjectPrefix, cfg.App.InstanceID),
			InstanceID: cfg.App.InstanceID,
			Logger:     logger,
		})
		if cfg.NATS.MirrorLines {
			mirror = output.NewLineMirror(natsConn,
				output.BuildLinesSubject(cfg.NATS.SubjectPrefix, cfg.App.InstanceID), logger)
		}
	}

	broadcaster := stream.NewBroadcaster(cfg.Stream.QueueCapacity, logger)

	sinks := []session.LineSink{broadcaster}
	if mirror != nil {
		sinks = append(sinks, mirror)
	}
	manager := session.NewManager(session.ManagerConfig{
		Opener:  serial.RealOpener{ReadTimeout: cfg.Serial.ReadTimeout()},
		Sinks:   sinks,
		OnEvent: events.Publish,
		Logger:  logger,
	})

	adapter, err := network.NewAdapter(cfg.Network.Router)
	if err != nil {
		logger.Error("Failed to create router adapter", "error", err)
		os.Exit(1)
	}
	controller := network.NewController(network.ControllerConfig{
		Adapter:        adapter,
		Scheme:         cfg.Network.Router.Scheme,
		RequestTimeout: cfg.Network.RequestTimeout(),
		SessionTTL:     cfg.Network.SessionTTL(),
		SkipTLSVerify:  cfg.Network.Router.SkipTLSVerify,
		OnEvent:        events.Publish,
		Logger:         logger,
	})

	aggregator := status.NewAggregator(manager, controller, broadcaster)

	var health *output.HealthPublisher
	if natsConn != nil {
		health = output.NewHealthPublisher(&output.HealthPublisherConfig{
			Conn:       natsConn,
			Subject:    output.BuildHealthSubject(cfg.NATS.SubjectPrefix, cfg.App.InstanceID),
			InstanceID: cfg.App.InstanceID,
			Interval:   cfg.NATS.HeartbeatInterval(),
			Logger:     logger,
			StatsFunc:  func() output.HealthStats { return healthStats(manager, aggregator) },
		})
		health.Start()
	}

	server := api.NewServer(cfg, api.Deps{
		Session:     manager,
		Network:     controller,
		Status:      aggregator,
		Broadcaster: broadcaster,
	}, logger)
	if err := server.Start(); err != nil {
		logger.Error("Failed to start API server", "error", err)
		os.Exit(1)
	}

	events.PublishServiceStart(appVersion)
	logger.Info("ESPMonitor started successfully",
		"instance", cfg.App.InstanceID,
		"listen", cfg.Server.Listen,
		"nats", natsConn != nil)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping API server", "error", err)
	}

	// Releasing the port can block on a wedged driver
	done := make(chan struct{})
	go func() {
		manager.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Serial shutdown timed out, forcing exit")
	}

	broadcaster.Close()

	if health != nil {
		health.Stop()
	}
	events.PublishServiceStop("signal: " + sig.String())
	if natsConn != nil {
		natsConn.Close()
	}

	logger.Info("ESPMonitor stopped")
}

// healthStats flattens the status snapshot into a heartbeat payload
func healthStats(manager *session.Manager, aggregator *status.Aggregator) output.HealthStats {
	snap := aggregator.Snapshot()
	info := manager.Info()

	stats := output.HealthStats{
		Attached:         snap.Attached,
		State:            snap.State.String(),
		Port:             snap.Port,
		BaudRate:         snap.BaudRate,
		Generation:       snap.Generation,
		LinesRead:        snap.LinesRead,
		BytesRead:        info.BytesRead,
		LastError:        snap.LastError,
		NetworkConnected: snap.NetworkConnected,
		Subscribers:      snap.Subscribers,
	}
	if snap.MACAddress != nil {
		stats.MACAddress = *snap.MACAddress
	}
	return stats
}

// setupLogging configures logging with optional file rotation
func setupLogging(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler

	if cfg.Logging.BasePath != "" {
		if err := os.MkdirAll(cfg.Logging.BasePath, 0755); err != nil {
			log.Printf("Warning: failed to create log directory: %v", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			writer := &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Logging.BasePath, "espmonitor.log"),
				MaxSize:    cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
				Compress:   cfg.Logging.Compress,
			}
			handler = slog.NewJSONHandler(writer, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
