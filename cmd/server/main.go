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

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/app"
	"github.com/afroash/pump-controller/internal/config"
	"github.com/afroash/pump-controller/internal/events"
	"github.com/afroash/pump-controller/internal/hardware"
	"github.com/afroash/pump-controller/internal/metrics"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/schedule"
	"github.com/afroash/pump-controller/internal/server"
	"github.com/afroash/pump-controller/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "pump-controller"
	}
	logger = logger.With().Str("device_id", hostname).Logger()

	logger.Info().
		Str("version", version).
		Str("addr", cfg.Address()).
		Msg("Starting pump controller")
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	backend := hardware.Open(cfg.Hardware, component(logger, "hardware"))
	device := models.NewDeviceInfo(hostname, string(backend.Kind()), version)

	m := metrics.New()
	eventStore := server.NewEventStore(cfg.Events.BufferSize)
	hub := server.NewHub(component(logger, "stream"), cfg.Server.AllowedOrigins...)

	deps := app.Deps{
		Backend:     backend,
		Calibration: models.CalibrationBounds{Dry: cfg.Calibration.Dry, Wet: cfg.Calibration.Wet},
		Metrics:     m,
		EventLog:    eventStore,
		Broadcaster: hub,
		Logger:      component(logger, "app"),
	}

	var sqliteStore *storage.SQLiteStore
	var dbWriter *storage.DBWriter
	var retentionCleaner *storage.RetentionCleaner
	var history server.HistoryStore

	if cfg.Database.Enabled {
		dataDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			logger.Fatal().Err(err).Str("dir", dataDir).Msg("Failed to create data directory")
		}
		storageLogger := component(logger, "storage")
		sqliteStore, err = storage.NewSQLiteStore(cfg.Database.Path, storageLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create SQLite store")
		}

		dbWriter = storage.NewDBWriter(sqliteStore, storage.DBWriterConfig{
			BatchSize:   cfg.Database.BatchSize,
			FlushPeriod: cfg.Database.FlushPeriod,
			ChannelSize: cfg.Database.ChannelSize,
		}, storageLogger)

		retentionCleaner = storage.NewRetentionCleaner(sqliteStore, storage.RetentionCleanerConfig{
			SampleRetentionDays: cfg.Database.RetentionDays,
			EventRetentionDays:  cfg.Database.EventRetentionDays,
			CleanupPeriod:       cfg.Database.CleanupPeriod,
		}, storageLogger)

		deps.History = dbWriter
		history = sqliteStore
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := events.NewRealPublisher(cfg.MQTT, component(logger, "mqtt"))
		if err != nil {
			// events still reach the log, history and stream
			logger.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT unavailable, publishing disabled")
		} else {
			deps.Publisher = publisher
			defer publisher.Close()
		}
	}

	pumpApp := app.New(deps)

	scheduler, err := schedule.New(pumpApp, cfg.Schedules, component(logger, "schedule"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid schedule")
	}
	scheduler.Start()

	router := server.NewRouter(server.RouterConfig{
		Controller:     pumpApp,
		Events:         eventStore,
		History:        history,
		Schedules:      scheduler,
		Hub:            hub,
		Metrics:        m,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        version,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("backend", device.Backend).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("sd_notify READY failed")
	} else if ok {
		logger.Debug().Msg("Notified systemd: ready")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Dur("uptime", device.Uptime()).Msg("Shutting down...")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	// stops the pump before anything else is torn down
	pumpApp.Shutdown()

	if dbWriter != nil {
		dbWriter.Stop()
	}
	if retentionCleaner != nil {
		retentionCleaner.Stop()
	}
	if sqliteStore != nil {
		sqliteStore.Close()
		logger.Info().Msg("SQLiteStore closed")
	}

	logger.Info().Msg("Server stopped")
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
