// dsbridge connects a dstiny serial bus module to the home-automation hub.
//
// Scene calls and configuration requests arriving on the bus become hub
// actions; level changes reported by the hub are written back to the bus as
// status events. Configuration is read from configs/config.yaml (or the
// file named by DSBRIDGE_CONFIG) with DSBRIDGE_* environment overrides.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/nerrad567/dstiny-bridge/migrations"

	"github.com/nerrad567/dstiny-bridge/internal/api"
	"github.com/nerrad567/dstiny-bridge/internal/bridges/dstiny"
	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
	"github.com/nerrad567/dstiny-bridge/internal/hub"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/config"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/database"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/dstiny-bridge/internal/scenes"
)

// Set at build time via -ldflags "-X main.version=1.0.0 ...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
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

// run wires both workers and blocks until ctx is cancelled or the serial
// link is lost. Only startup failures and a lost serial link return an error.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting dstiny bridge", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Scene levels
	store, db, closeStore, err := openSceneStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening scene store: %w", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("error closing scene store", "error", closeErr)
		}
	}()
	if err := scenes.EnsureDefaults(ctx, store); err != nil {
		return fmt.Errorf("writing scene defaults: %w", err)
	}
	log.Info("scene store ready", "backend", cfg.Scenes.Backend)

	// Serial link
	transport, err := dstiny.OpenSerial(dstiny.SerialConfig{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		ReadTimeout: cfg.Serial.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	defer func() {
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()
	log.Info("serial port open", "port", cfg.Serial.Port, "baud", cfg.Serial.BaudRate)

	hubClient, err := hub.NewClient(hub.ClientConfig{
		URL:             cfg.Hub.URL,
		ExhoodDevice:    cfg.Hub.ExhoodDevice,
		LightDevice:     cfg.Hub.LightDevice,
		WindowDevice:    cfg.Hub.WindowDevice,
		RequestTimeout:  cfg.Hub.RequestTimeout,
		LongPollTimeout: cfg.Hub.LongPollTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}

	queue := eventbridge.NewQueue(cfg.Bus.QueueSize)
	shared := eventbridge.NewSharedState()

	metrics := dstiny.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := registerMetrics(registry, metrics, queue); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// Optional telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	busLog := log.With("component", "bus")
	device := dstiny.NewDevice(transport, dstiny.DeviceOptions{
		Retries: cfg.Bus.Retries,
		Metrics: metrics,
		Logger:  busLog,
	})
	dispatcher := dstiny.NewDispatcher(dstiny.DispatcherConfig{
		Device:  device,
		Store:   store,
		Hub:     hubClient,
		State:   shared,
		Metrics: metrics,
		Logger:  busLog,
	})

	// The reporter is created before the session so state changes can be
	// published from the first transition.
	var mqttClient *mqtt.Client
	var health *dstiny.HealthReporter
	if cfg.MQTT.Enabled {
		mqttClient, health, err = startHealth(cfg, queue, shared, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	session := dstiny.NewSession(dstiny.SessionConfig{
		Device:     device,
		Dispatcher: dispatcher,
		Queue:      queue,
		BringUp: dstiny.BringUpConfig{
			HeartbeatSeconds: byte(cfg.Bus.HeartbeatSeconds),
			CommandMode:      byte(cfg.Bus.CommandMode),
			DeviceMask:       byte(cfg.Bus.DeviceMask),
		},
		EventPacing: cfg.Bus.EventPacing,
		IdleDelay:   cfg.Bus.IdleDelay,
		OnStateChange: func(s dstiny.State) {
			if health != nil {
				health.PublishSessionState(s)
			}
			influxClient.WriteSessionState(s.String())
		},
		Metrics: metrics,
		Logger:  busLog,
	})

	pollerCfg := hub.PollerConfig{
		Hub:        hubClient,
		Queue:      queue,
		State:      shared,
		Observer:   metrics,
		Logger:     log.With("component", "hub"),
		MaxBackoff: cfg.Hub.MaxBackoff,
	}
	if influxClient != nil {
		pollerCfg.Recorder = influxClient
	}
	poller := hub.NewPoller(pollerCfg)

	if health != nil {
		health.SetSession(session)
		health.Start(ctx)
		defer health.Stop()
	}

	checks := healthChecks{db: db, mqtt: mqttClient, influx: influxClient, session: session}
	if cfg.Metrics.Enabled {
		srv := newHTTPServer(cfg.Metrics.Listen, newHTTPHandler(cfg.Metrics.Path, registry, checks))
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck // best effort on exit
		}()
		log.Info("metrics server listening", "addr", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
	}

	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Listen:       cfg.API.Listen,
			MaxBodyBytes: cfg.API.MaxBodyBytes,
			Version:      version,
			JWTSecret:    cfg.API.JWTSecret,
			Logger:       log.With("component", "api"),
			Store:        store,
			Session:      session,
			Queue:        queue,
			Shared:       shared,
		})
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
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	var busErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		// A lost serial link ends the process.
		busErr = session.Run(workerCtx)
		stopWorkers()
	}()
	go func() {
		defer wg.Done()
		poller.Run(workerCtx) //nolint:errcheck // returns nil on cancellation
	}()

	log.Info("initialisation complete", "hub", cfg.Hub.URL)
	wg.Wait()

	if busErr != nil {
		return fmt.Errorf("bus session: %w", busErr)
	}
	log.Info("dstiny bridge stopped")
	return nil
}

// getConfigPath returns DSBRIDGE_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("DSBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSceneStore opens the configured scene backend. db is non-nil only
// for the sqlite backend.
func openSceneStore(ctx context.Context, cfg *config.Config) (scenes.Store, *database.DB, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Scenes.Backend {
	case config.ScenesBackendSQLite:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return scenes.NewSQLiteStore(db.DB), db, db.Close, nil

	case config.ScenesBackendINI:
		store, err := scenes.OpenINIStore(cfg.Scenes.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, noop, nil

	case config.ScenesBackendMemory:
		return scenes.NewMemoryStore(), nil, noop, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown scenes backend %q", cfg.Scenes.Backend)
}

// startHealth connects to the broker with the bridge LWT and creates the
// health reporter. The caller closes the client.
func startHealth(cfg *config.Config, queue *eventbridge.Queue, shared *eventbridge.SharedState, log *logging.Logger) (*mqtt.Client, *dstiny.HealthReporter, error) {
	topic, payload, err := dstiny.LWT()
	if err != nil {
		return nil, nil, fmt.Errorf("building LWT: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: topic, Payload: payload})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	health := dstiny.NewHealthReporter(dstiny.HealthReporterConfig{
		Version:    version,
		SerialPort: cfg.Serial.Port,
		Interval:   cfg.MQTT.HealthInterval,
		Publisher:  client,
		Queue:      queue,
		Shared:     shared,
	})
	health.SetLogger(log.With("component", "health"))

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if err := health.PublishNow(); err != nil {
			log.Warn("failed to refresh health after reconnect", "error", err)
		}
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if err := health.PublishStarting(); err != nil {
		log.Warn("failed to publish starting status", "error", err)
	}
	return client, health, nil
}
