package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the openHAB bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controllers []ControllerConfig `yaml:"controllers"`
	Nodes       []NodeConfig       `yaml:"nodes"`
	Context     ContextConfig      `yaml:"context"`
	Database    DatabaseConfig     `yaml:"database"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	API         APIConfig          `yaml:"api"`
	WebSocket   WebSocketConfig    `yaml:"websocket"`
	InfluxDB    InfluxDBConfig     `yaml:"influxdb"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// ControllerConfig describes one openHAB server connection.
type ControllerConfig struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Path     string `yaml:"path"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// BusPrefix is the event bus namespace, "smarthome" on openHAB 2.
	BusPrefix      string `yaml:"bus_prefix"`
	AllowRawEvents bool   `yaml:"allow_raw_events"`

	// Delays in seconds.
	ReconnectDelay  int `yaml:"reconnect_delay"`
	StateRetryDelay int `yaml:"state_retry_delay"`
	RequestTimeout  int `yaml:"request_timeout"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	PersistItemList    bool `yaml:"persist_item_list"`
}

// GetReconnectDelay returns the stream reconnect delay as a Duration.
func (c ControllerConfig) GetReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelay) * time.Second
}

// GetStateRetryDelay returns the delay before retrying a 503 item listing.
func (c ControllerConfig) GetStateRetryDelay() time.Duration {
	return time.Duration(c.StateRetryDelay) * time.Second
}

// GetRequestTimeout returns the REST request timeout as a Duration.
func (c ControllerConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// NodeConfig describes one consumer attached to a controller.
//
// Settings is node-type specific and decoded by the node factory.
type NodeConfig struct {
	ID         string    `yaml:"id"`
	Type       string    `yaml:"type"`
	Name       string    `yaml:"name"`
	Controller string    `yaml:"controller"`
	Flow       string    `yaml:"flow"`
	Settings   yaml.Node `yaml:"settings"`
}

// ContextConfig selects the backend for flow/global/node scoped values.
type ContextConfig struct {
	Backend string `yaml:"backend"` // memory or sqlite
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
}

// APIConfig contains admin HTTP server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	JWTSecret string           `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for item state history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Controller defaults (filled per entry)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: OHBRIDGE_SECTION_KEY
// For example: OHBRIDGE_DATABASE_PATH, OHBRIDGE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyControllerDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Context: ContextConfig{
			Backend: "memory",
		},
		Database: DatabaseConfig{
			Path:        "./data/ohbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ohbridge",
			},
			QoS:         1,
			TopicPrefix: "ohbridge",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    1880,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/ohbridge.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// Controller defaults, matching openHAB 2 behaviour.
const (
	DefaultProtocol        = "http"
	DefaultBusPrefix       = "smarthome"
	DefaultReconnectDelay  = 30
	DefaultStateRetryDelay = 10
	DefaultRequestTimeout  = 30
)

// applyControllerDefaults fills unset per-controller fields.
func applyControllerDefaults(cfg *Config) {
	for i := range cfg.Controllers {
		c := &cfg.Controllers[i]
		if strings.TrimSpace(c.Protocol) == "" {
			c.Protocol = DefaultProtocol
		}
		if strings.TrimSpace(c.BusPrefix) == "" {
			c.BusPrefix = DefaultBusPrefix
		}
		if c.ReconnectDelay <= 0 {
			c.ReconnectDelay = DefaultReconnectDelay
		}
		if c.StateRetryDelay <= 0 {
			c.StateRetryDelay = DefaultStateRetryDelay
		}
		if c.RequestTimeout <= 0 {
			c.RequestTimeout = DefaultRequestTimeout
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OHBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("OHBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("OHBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OHBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OHBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("OHBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("OHBRIDGE_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("OHBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Controller passwords: OHBRIDGE_CONTROLLER_PASSWORD_<NAME>
	for i := range cfg.Controllers {
		key := "OHBRIDGE_CONTROLLER_PASSWORD_" + envName(cfg.Controllers[i].Name)
		if v := os.Getenv(key); v != "" {
			cfg.Controllers[i].Password = v
		}
	}
}

// envName upper-cases a controller name and replaces anything outside
// [A-Z0-9] with an underscore.
func envName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	names := make(map[string]bool, len(c.Controllers))
	for i, ctrl := range c.Controllers {
		switch {
		case strings.TrimSpace(ctrl.Name) == "":
			errs = append(errs, fmt.Sprintf("controllers[%d].name is required", i))
		case names[ctrl.Name]:
			errs = append(errs, fmt.Sprintf("controllers[%d].name %q is duplicated", i, ctrl.Name))
		}
		names[ctrl.Name] = true

		if strings.TrimSpace(ctrl.Host) == "" {
			errs = append(errs, fmt.Sprintf("controllers[%d].host is required", i))
		}
		if p := strings.ToLower(ctrl.Protocol); p != "http" && p != "https" {
			errs = append(errs, fmt.Sprintf("controllers[%d].protocol must be http or https", i))
		}
	}

	ids := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Sprintf("nodes[%d].id is required", i))
		} else if ids[n.ID] {
			errs = append(errs, fmt.Sprintf("nodes[%d].id %q is duplicated", i, n.ID))
		}
		ids[n.ID] = true

		if n.Type == "" {
			errs = append(errs, fmt.Sprintf("nodes[%d].type is required", i))
		}
		if !names[n.Controller] {
			errs = append(errs, fmt.Sprintf("nodes[%d].controller %q is not configured", i, n.Controller))
		}
	}

	switch c.Context.Backend {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite context backend")
		}
	default:
		errs = append(errs, "context.backend must be memory or sqlite")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// An empty secret disables auth; a short one is a mistake.
	const minJWTSecretLength = 32
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "api.jwt_secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
