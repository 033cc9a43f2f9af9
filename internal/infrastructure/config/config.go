package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scene store backends.
const (
	ScenesBackendSQLite = "sqlite"
	ScenesBackendINI    = "ini"
	ScenesBackendMemory = "memory"
)

// Config is the root configuration structure of the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Bus      BusConfig      `yaml:"bus"`
	Hub      HubConfig      `yaml:"hub"`
	Scenes   ScenesConfig   `yaml:"scenes"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SerialConfig contains the serial link to the bus module.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// BusConfig contains bus session settings.
type BusConfig struct {
	// HeartbeatSeconds is written to the module during bring-up.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`

	// DeviceMask selects the logical devices registered (bit n = device n).
	DeviceMask int `yaml:"device_mask"`

	// CommandMode is the forwarding mode (0 none, 1 device and group, 2 all groups).
	CommandMode int `yaml:"command_mode"`

	// Retries after the first send of a request.
	Retries int `yaml:"retries"`

	// EventPacing is the pause after each hub event written to the bus.
	EventPacing time.Duration `yaml:"event_pacing"`

	// IdleDelay is the pause between bus loop iterations.
	IdleDelay time.Duration `yaml:"idle_delay"`

	// QueueSize bounds the hub-to-bus event queue.
	QueueSize int `yaml:"queue_size"`
}

// HubConfig contains the home-automation hub connection.
type HubConfig struct {
	URL string `yaml:"url"`

	// Device names in the hub object model.
	ExhoodDevice string `yaml:"exhood_device"`
	LightDevice  string `yaml:"light_device"`
	WindowDevice string `yaml:"window_device"`

	RequestTimeout  time.Duration `yaml:"request_timeout"`
	LongPollTimeout time.Duration `yaml:"long_poll_timeout"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
}

// ScenesConfig selects where scene levels are persisted.
type ScenesConfig struct {
	// Backend is "sqlite", "ini" or "memory".
	Backend string `yaml:"backend"`

	// Path is the INI file used by the "ini" backend.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// HealthInterval is how often bridge health is published.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// APIConfig contains the admin HTTP API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// JWTSecret signs the HS256 bearer tokens required by write routes.
	// Set it via DSBRIDGE_API_JWT_SECRET rather than in the file.
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DSBRIDGE_SECTION_KEY
// For example: DSBRIDGE_SERIAL_PORT, DSBRIDGE_HUB_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the bus module's factory values.
// MinJWTSecretLength is the shortest accepted api.jwt_secret.
const MinJWTSecretLength = 32

func defaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyS3",
			BaudRate:    19200,
			ReadTimeout: 500 * time.Millisecond,
		},
		Bus: BusConfig{
			HeartbeatSeconds: 30,
			DeviceMask:       0x07,
			CommandMode:      1,
			Retries:          3,
			EventPacing:      5 * time.Second,
			IdleDelay:        100 * time.Millisecond,
			QueueSize:        32,
		},
		Hub: HubConfig{
			URL:             "127.0.0.1",
			ExhoodDevice:    "integrierter Haubenluefter",
			LightDevice:     "Licht1",
			WindowDevice:    "Zuluft FKS",
			RequestTimeout:  10 * time.Second,
			LongPollTimeout: 90 * time.Second,
			MaxBackoff:      time.Minute,
		},
		Scenes: ScenesConfig{
			Backend: ScenesBackendSQLite,
			Path:    "./data/scenes.conf",
		},
		Database: DatabaseConfig{
			Path:        "./data/dsbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dsbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9464",
			Path:    "/metrics",
		},
		API: APIConfig{
			Enabled:      false,
			Listen:       "127.0.0.1:8090",
			MaxBodyBytes: 1 << 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DSBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("DSBRIDGE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}

	// Hub
	if v := os.Getenv("DSBRIDGE_HUB_URL"); v != "" {
		cfg.Hub.URL = v
	}

	// Scenes
	if v := os.Getenv("DSBRIDGE_SCENES_BACKEND"); v != "" {
		cfg.Scenes.Backend = v
	}
	if v := os.Getenv("DSBRIDGE_SCENES_PATH"); v != "" {
		cfg.Scenes.Path = v
	}

	// Database
	if v := os.Getenv("DSBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DSBRIDGE_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("DSBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DSBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DSBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DSBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("DSBRIDGE_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("DSBRIDGE_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	// Logging
	if v := os.Getenv("DSBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Serial
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	// Bus
	if c.Bus.HeartbeatSeconds < 0 || c.Bus.HeartbeatSeconds > 0xFF {
		errs = append(errs, "bus.heartbeat_seconds must be between 0 and 255")
	}
	if c.Bus.DeviceMask < 0 || c.Bus.DeviceMask > 0xFF {
		errs = append(errs, "bus.device_mask must fit in one byte")
	}
	if c.Bus.CommandMode < 0 || c.Bus.CommandMode > 2 {
		errs = append(errs, "bus.command_mode must be 0, 1, or 2")
	}
	if c.Bus.Retries < 0 {
		errs = append(errs, "bus.retries must not be negative")
	}
	if c.Bus.QueueSize <= 0 {
		errs = append(errs, "bus.queue_size must be positive")
	}

	// Hub
	if c.Hub.URL == "" {
		errs = append(errs, "hub.url is required")
	}

	// Scenes
	switch c.Scenes.Backend {
	case ScenesBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite scenes backend")
		}
	case ScenesBackendINI:
		if c.Scenes.Path == "" {
			errs = append(errs, "scenes.path is required for the ini scenes backend")
		}
	case ScenesBackendMemory:
	default:
		errs = append(errs, "scenes.backend must be sqlite, ini, or memory")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	// API
	if c.API.Enabled && c.API.Listen == "" {
		errs = append(errs, "api.listen is required when the api is enabled")
	}
	if c.API.Enabled && c.API.Listen == c.Metrics.Listen && c.Metrics.Enabled {
		errs = append(errs, "api.listen and metrics.listen must differ")
	}
	if c.API.Enabled && len(c.API.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.jwt_secret must be at least %d characters when the api is enabled", MinJWTSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
