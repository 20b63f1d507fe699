// CountCam Core - People Counting Backend
//
// This is the main entry point for the CountCam Core application. It owns
// the camera catalogue, drives the processing-state lifecycle against the
// instance manager over MQTT, collects people-count readings into InfluxDB,
// and serves the REST/WebSocket API used by dashboards and site tooling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/countcam/countcam-core/migrations"

	"github.com/countcam/countcam-core/internal/api"
	"github.com/countcam/countcam-core/internal/auth"
	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/infrastructure/config"
	"github.com/countcam/countcam-core/internal/infrastructure/database"
	"github.com/countcam/countcam-core/internal/infrastructure/influxdb"
	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/infrastructure/mqtt"
	"github.com/countcam/countcam-core/internal/metric"
	"github.com/countcam/countcam-core/internal/processing"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence: each component wired in order
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting CountCam Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	groupRepo := device.NewSQLiteGroupRepository(db.DB)
	userRepo := auth.NewUserRepository(db.DB)

	// Seed the initial admin account on a fresh install
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled, count history unavailable")
	}

	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2 by config.Validate

	// Processing-state lifecycle: service, ack dispatcher, pending janitor
	lifecycle := processing.NewService(deviceRepo, mqttClient, qos, log)

	dispatcher := processing.NewDispatcher(lifecycle, qos, log)
	if err := dispatcher.Start(mqttClient); err != nil {
		return fmt.Errorf("starting ack dispatcher: %w", err)
	}
	log.Info("ack dispatcher started")

	janitor := processing.NewJanitor(lifecycle, deviceRepo, cfg.PendingTimeout(), cfg.JanitorInterval(), log)
	go janitor.Run(ctx)
	log.Info("pending-transition janitor started",
		"timeout", cfg.PendingTimeout(),
		"interval", cfg.JanitorInterval(),
	)

	// Count collector: camera readings into InfluxDB and the WebSocket feed
	var writer metric.Writer
	if influxClient != nil {
		writer = influxClient
	}
	collector := metric.NewCollector(writer, qos, log)
	if err := collector.Start(mqttClient); err != nil {
		return fmt.Errorf("starting count collector: %w", err)
	}
	log.Info("count collector started")

	// API server
	apiDeps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Processing: cfg.Processing,
		Logger:     log,
		Devices:    deviceRepo,
		Groups:     groupRepo,
		Users:      userRepo,
		Lifecycle:  lifecycle,
		Collector:  collector,
		MQTT:       mqttClient,
		Version:    version,
	}
	if influxClient != nil {
		apiDeps.Counts = influxClient
	}

	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("CountCam Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses COUNTCAM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COUNTCAM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
