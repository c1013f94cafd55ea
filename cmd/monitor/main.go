package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/alert"
	"github.com/afroash/worker-monitor/internal/config"
	"github.com/afroash/worker-monitor/internal/feed"
	"github.com/afroash/worker-monitor/internal/logging"
	"github.com/afroash/worker-monitor/internal/models"
	"github.com/afroash/worker-monitor/internal/monitor"
	"github.com/afroash/worker-monitor/internal/notify"
	"github.com/afroash/worker-monitor/internal/server"
	"github.com/afroash/worker-monitor/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Dur("poll_delay", cfg.Poll.Delay).
		Dur("retention", cfg.Poll.Retention).
		Msg("Starting Worker Monitor")
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	session, err := newSession(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create session")
	}

	gate := server.NewGate(cfg.Session.Username, cfg.Session.Password, cfg.Session.CookieName, session, logger)
	hub := server.NewHub(gate, logger, cfg.Server.AllowedOrigins...)
	sinks := []monitor.Sink{hub}

	var (
		archive          *storage.SQLiteStore
		dbWriter         *storage.DBWriter
		retentionCleaner *storage.RetentionCleaner
	)
	if cfg.Archive.Enabled {
		dataDir := filepath.Dir(cfg.Archive.DBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			logger.Fatal().Err(err).Str("dir", dataDir).Msg("Failed to create data directory")
		}
		archive, err = storage.NewSQLiteStore(cfg.Archive.DBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open archive")
		}

		dbWriter = storage.NewDBWriter(archive, storage.DBWriterConfig{
			BatchSize:   cfg.Archive.BatchSize,
			FlushPeriod: cfg.Archive.FlushPeriod,
			ChannelSize: cfg.Archive.ChannelSize,
		}, logger)
		retentionCleaner = storage.NewRetentionCleaner(archive, storage.RetentionCleanerConfig{
			RetentionHours: cfg.Archive.RetentionHours,
			CleanupPeriod:  cfg.Archive.CleanupPeriod,
		}, logger)
		sinks = append(sinks, dbWriter)
	}

	var publisher *notify.Publisher
	if cfg.Notify.Enabled {
		publisher, err = notify.Connect(notify.Config{
			Broker:   cfg.Notify.Broker,
			ClientID: cfg.Notify.ClientID,
			Username: cfg.Notify.Username,
			Password: cfg.Notify.Password,
			Topic:    cfg.Notify.Topic,
			QoS:      cfg.Notify.QoS,
		}, logger)
		if err != nil {
			// Alerts still reach the dashboard without the broker
			logger.Error().Err(err).Msg("MQTT alert publishing disabled")
		} else {
			sinks = append(sinks, publisher)
		}
	}

	evaluator := alert.NewEvaluator(alert.Thresholds{
		GasLevel:    cfg.Alerts.GasThreshold,
		FallKeyword: cfg.Alerts.FallKeyword,
	})
	orchestrator := monitor.NewOrchestrator(session, evaluator, logger, sinks...)
	runner := monitor.NewRunner(orchestrator, session, cfg.Poll.Delay, logger)

	var snapshots server.SnapshotSource
	if cfg.Camera.Enabled() {
		snapshots = feed.NewSnapshotClient(cfg.Camera.URL, cfg.Camera.Timeout, logger)
	}
	api := server.NewAPIHandler(session, gate, snapshots, cfg.Poll.LogRows, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewRouter(api, hub, version, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Runner stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	// The cycle in progress finishes before sinks go away
	<-runnerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	hub.Close()

	if publisher != nil {
		publisher.Close()
		logger.Info().Interface("stats", publisher.Stats()).Msg("Alert publisher closed")
	}
	if dbWriter != nil {
		dbWriter.Stop()
		logger.Info().Interface("stats", dbWriter.Stats()).Msg("DBWriter stopped")
	}
	if retentionCleaner != nil {
		retentionCleaner.Stop()
		logger.Info().Interface("stats", retentionCleaner.Stats()).Msg("RetentionCleaner stopped")
	}
	if archive != nil {
		if stats, err := archive.GetStorageStats(); err == nil {
			logger.Info().
				Int64("readings", stats.TotalReadings).
				Int64("alerts", stats.TotalAlerts).
				Float64("size_mb", stats.DatabaseSizeMB).
				Msg("Archive summary")
		}
		archive.Close()
		logger.Info().Msg("Archive closed")
	}

	logger.Info().Msg("Monitor stopped")
}

// newSession binds the live worker to its feeds and the dummy worker to fixed values
func newSession(cfg *config.Config, logger zerolog.Logger) (*monitor.Session, error) {
	motion := feed.NewMotionFeed(feed.NewClient("motion", cfg.Feeds.MotionURL, cfg.Feeds.Timeout, logger))
	health := feed.NewHealthFeed(feed.NewClient("health", cfg.Feeds.HealthURL, cfg.Feeds.Timeout, logger))

	subjects := models.DefaultSubjects()
	bindings := make([]monitor.Binding, 0, len(subjects))
	for _, s := range subjects {
		var source feed.Source = feed.NewSyntheticSource()
		if s.IsLive() {
			source = feed.NewLiveSource(motion, health)
		}
		bindings = append(bindings, monitor.Binding{Subject: s, Source: source})
	}

	return monitor.NewSession(bindings, monitor.SessionOptions{
		Retention:     cfg.Poll.Retention,
		EvictOnAppend: cfg.Poll.Evicts(),
		StaleAfter:    cfg.Poll.StaleAfter,
	})
}
