// Media Server - UPnP AV control plane
//
// This is the main entry point for the media server. It hosts one root
// MediaServer device with a ContentDirectory and a ConnectionManager,
// advertises it over SSDP and answers SOAP and GENA requests.
//
// Optional sidecars: an admin HTTP API with WebSocket events, Prometheus
// metrics, MQTT status publishing and InfluxDB dispatch telemetry.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/graymedia/mediaserver/migrations"

	"github.com/graymedia/mediaserver/internal/api"
	"github.com/graymedia/mediaserver/internal/audit"
	"github.com/graymedia/mediaserver/internal/auth"
	"github.com/graymedia/mediaserver/internal/eventing"
	"github.com/graymedia/mediaserver/internal/infrastructure/config"
	"github.com/graymedia/mediaserver/internal/infrastructure/database"
	"github.com/graymedia/mediaserver/internal/infrastructure/influxdb"
	"github.com/graymedia/mediaserver/internal/infrastructure/logging"
	"github.com/graymedia/mediaserver/internal/infrastructure/mqtt"
	"github.com/graymedia/mediaserver/internal/server"
	"github.com/graymedia/mediaserver/internal/telemetry"
	"github.com/graymedia/mediaserver/internal/transport"
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
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting media server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	settings := database.NewSettings(db)
	auditLog := audit.NewSQLiteRepository(db.DB)

	udn, err := server.ResolveUDN(ctx, cfg.Server.UDN, settings)
	if err != nil {
		return fmt.Errorf("resolving device identity: %w", err)
	}
	log.Info("device identity resolved", "udn", udn)

	checks := map[string]api.HealthChecker{"database": db}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB,
			influxdb.WithDefaultTag("udn", udn),
			influxdb.WithErrorHandler(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			}),
		)
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
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	recorder, err := newRecorder(cfg, udn, registry, mqttClient, influxClient, hub, log)
	if err != nil {
		return fmt.Errorf("creating telemetry recorder: %w", err)
	}

	catalog, err := buildCatalog(cfg.Media.Library)
	if err != nil {
		return fmt.Errorf("building catalog: %w", err)
	}
	log.Info("catalog loaded", "objects", catalog.Len())

	srv := server.New(server.Options{
		UDN:   udn,
		Store: settings,
		Transport: transport.NewHTTP(transport.Options{
			ServerHeader: serverHeader(),
			ReadTimeout:  cfg.GetReadTimeout(),
			WriteTimeout: cfg.GetWriteTimeout(),
			IdleTimeout:  cfg.GetIdleTimeout(),
			Logger:       log.Component("transport"),
		}),
		AliveInterval:     cfg.GetAliveInterval(),
		VirtualDirectory:  cfg.Server.VirtualDirectory,
		Device:            deviceInfo(cfg.Device),
		Catalog:           catalog,
		ProtocolInfo:      cfg.Media.ProtocolInfo,
		Eventing:          eventingOptions(cfg.Eventing),
		Logger:            log.Component("server"),
		DispatchObserver:  recorder,
		LifecycleObserver: recorder,
	})

	if err := srv.Init(ctx); err != nil {
		return fmt.Errorf("initialising media server: %w", err)
	}

	address := cfg.Server.IP
	if address == "" {
		address, err = transport.DefaultAddress(cfg.Server.Interface)
		if err != nil {
			return fmt.Errorf("selecting bind address: %w", err)
		}
	}
	if err := srv.Start(ctx, address, cfg.Server.Port); err != nil {
		return fmt.Errorf("starting media server: %w", err)
	}
	defer func() {
		log.Info("stopping media server")
		if stopErr := srv.Stop(); stopErr != nil {
			log.Error("error stopping media server", "error", stopErr)
		}
		recordLifecycle(context.Background(), auditLog, audit.ActionStop, udn, log)
	}()
	id := srv.Identity()
	log.Info("media server running",
		"udn", id.UDN,
		"address", id.BindAddress,
		"port", id.BoundPort,
		"description", id.DescriptionURL,
	)
	recordLifecycle(ctx, auditLog, audit.ActionStart, udn, log,
		"address", id.BindAddress,
		"port", id.BoundPort,
	)

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Media:    srv,
			Stats:    recorder,
			Gatherer: registry,
			Checks:   checks,
			Hub:      hub,
			Audit:    auditLog,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("admin API has no JWT secret, requests are not authenticated")
		}
	} else {
		log.Info("admin API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, media server, InfluxDB, MQTT, database.

	log.Info("media server stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MEDIASERVER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MEDIASERVER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects the status publisher and hooks connection logging.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	client.SetOnConnect(func() {
		if err := client.HealthCheck(context.Background()); err != nil {
			log.Warn("MQTT connected, retained status not restored", "error", err)
			return
		}
		log.Info("MQTT connection established")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	return client, nil
}

// newRecorder builds the telemetry recorder. Disabled sinks stay nil
// interfaces so the recorder skips them.
//
// Parameters:
//   - cfg: Application configuration
//   - udn: Resolved device UDN
//   - reg: Prometheus registry for the UPnP collectors
//   - mqttClient: Status publisher (may be nil if disabled)
//   - influxClient: Point writer (may be nil if disabled)
//   - hub: WebSocket hub receiving dispatch and lifecycle events
//   - log: Logger instance
//
// Returns:
//   - *telemetry.Recorder: Observer for server.Options
//   - error: If a collector cannot be registered
func newRecorder(
	cfg *config.Config,
	udn string,
	reg prometheus.Registerer,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	hub *api.Hub,
	log *logging.Logger,
) (*telemetry.Recorder, error) {
	opts := telemetry.Options{
		Registerer:  reg,
		Broadcaster: hub,
		UDN:         udn,
		Logger:      log.Component("telemetry"),
	}
	if mqttClient != nil {
		opts.Publisher = mqttClient
		opts.StatusTopic = mqtt.Topics{}.Status(cfg.MQTT.Broker.ClientID)
		opts.QoS = byte(cfg.MQTT.QoS)
	}
	if influxClient != nil {
		opts.Points = influxClient
	}
	return telemetry.NewRecorder(opts)
}

// recordLifecycle writes a system audit entry. details are key/value
// pairs. Failures are logged.
func recordLifecycle(ctx context.Context, repo audit.Repository, action, udn string, log *logging.Logger, details ...any) {
	entry := &audit.Entry{
		Action:  action,
		Source:  audit.SourceSystem,
		Details: map[string]any{"udn": udn},
	}
	for i := 0; i+1 < len(details); i += 2 {
		if key, ok := details[i].(string); ok {
			entry.Details[key] = details[i+1]
		}
	}
	if err := repo.Record(ctx, entry); err != nil {
		log.Warn("recording audit entry", "action", action, "error", err)
	}
}

func deviceInfo(c config.DeviceConfig) server.DeviceInfo {
	return server.DeviceInfo{
		FriendlyName:     c.FriendlyName,
		Manufacturer:     c.Manufacturer,
		ManufacturerURL:  c.ManufacturerURL,
		ModelDescription: c.ModelDescription,
		ModelName:        c.ModelName,
		ModelNumber:      c.ModelNumber,
		ModelURL:         c.ModelURL,
		SerialNumber:     c.SerialNumber,
		PresentationURL:  c.PresentationURL,
	}
}

func eventingOptions(c config.EventingConfig) eventing.Options {
	return eventing.Options{
		MaxTimeout:     time.Duration(c.MaxTimeout) * time.Second,
		MinTimeout:     time.Duration(c.MinTimeout) * time.Second,
		MaxSubscribers: c.MaxSubscribers,
	}
}

func serverHeader() string {
	return "Go UPnP/1.0 mediaserver/" + version
}

// hashPassword reads one line from in and writes its Argon2id hash to out,
// ready for security.admin.password_hash.
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
