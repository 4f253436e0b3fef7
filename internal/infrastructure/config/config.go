package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the media server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Device    DeviceConfig    `yaml:"device"`
	Media     MediaConfig     `yaml:"media"`
	Eventing  EventingConfig  `yaml:"eventing"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig contains the UPnP endpoint settings.
type ServerConfig struct {
	// IP is the address to bind. Empty picks the first multicast-capable
	// IPv4 address of Interface (or of any interface).
	IP        string `yaml:"ip"`
	Interface string `yaml:"interface"`

	// Port is the requested HTTP port. 0 lets the system choose.
	Port int `yaml:"port"`

	// UDN pins the device UDN. Empty uses the one stored in the database.
	UDN string `yaml:"udn"`

	// AliveInterval is the SSDP alive period in seconds.
	AliveInterval int `yaml:"alive_interval"`

	VirtualDirectory string `yaml:"virtual_directory"`
}

// DeviceConfig contains the device description fields.
type DeviceConfig struct {
	FriendlyName     string `yaml:"friendly_name"`
	Manufacturer     string `yaml:"manufacturer"`
	ManufacturerURL  string `yaml:"manufacturer_url"`
	ModelDescription string `yaml:"model_description"`
	ModelName        string `yaml:"model_name"`
	ModelNumber      string `yaml:"model_number"`
	ModelURL         string `yaml:"model_url"`
	SerialNumber     string `yaml:"serial_number"`
	PresentationURL  string `yaml:"presentation_url"`
}

// MediaConfig describes what the ContentDirectory publishes.
type MediaConfig struct {
	// ProtocolInfo is the ConnectionManager source protocol list.
	ProtocolInfo []string `yaml:"protocol_info"`

	// Library seeds the catalog below the root container.
	Library []LibraryFolder `yaml:"library"`
}

// LibraryFolder is a container with its items and sub-folders.
type LibraryFolder struct {
	Title   string          `yaml:"title"`
	Items   []LibraryItem   `yaml:"items"`
	Folders []LibraryFolder `yaml:"folders"`
}

// LibraryItem is one playable object.
type LibraryItem struct {
	Title string `yaml:"title"`

	// Class is "audio", "video" or "image".
	Class        string `yaml:"class"`
	Path         string `yaml:"path"`
	ProtocolInfo string `yaml:"protocol_info"`
	Size         int64  `yaml:"size"`
}

// EventingConfig contains GENA subscription limits.
type EventingConfig struct {
	MaxTimeout     int `yaml:"max_timeout"`
	MinTimeout     int `yaml:"min_timeout"`
	MaxSubscribers int `yaml:"max_subscribers"`
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

// APIConfig contains admin HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT   JWTConfig   `yaml:"jwt"`
	Admin AdminConfig `yaml:"admin"`
}

// JWTConfig contains admin API token settings. An empty secret leaves the
// admin API unauthenticated.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// AdminConfig holds the single admin API account. PasswordHash is an
// Argon2id PHC string, produced by `mediaserver hash-password`.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MEDIASERVER_SECTION_KEY
// For example: MEDIASERVER_SERVER_PORT, MEDIASERVER_DATABASE_PATH
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             49152,
			AliveInterval:    1800,
			VirtualDirectory: "/content",
		},
		Device: DeviceConfig{
			FriendlyName:     "Media Server",
			Manufacturer:     "Gray Media",
			ModelDescription: "UPnP AV Media Server",
			ModelName:        "mediaserver",
			ModelNumber:      "1",
		},
		Media: MediaConfig{
			ProtocolInfo: []string{
				"http-get:*:audio/mpeg:*",
				"http-get:*:audio/flac:*",
				"http-get:*:video/mp4:*",
				"http-get:*:image/jpeg:*",
			},
		},
		Eventing: EventingConfig{
			MaxTimeout:     1800,
			MinTimeout:     60,
			MaxSubscribers: 128,
		},
		Database: DatabaseConfig{
			Path:        "./data/mediaserver.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mediaserver",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "mediaserver",
				AccessTokenTTL: 15,
			},
			Admin: AdminConfig{
				Username: "admin",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MEDIASERVER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("MEDIASERVER_SERVER_IP"); v != "" {
		cfg.Server.IP = v
	}
	if v := os.Getenv("MEDIASERVER_SERVER_INTERFACE"); v != "" {
		cfg.Server.Interface = v
	}
	if v := os.Getenv("MEDIASERVER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MEDIASERVER_SERVER_UDN"); v != "" {
		cfg.Server.UDN = v
	}

	// Device
	if v := os.Getenv("MEDIASERVER_DEVICE_FRIENDLY_NAME"); v != "" {
		cfg.Device.FriendlyName = v
	}

	// Database
	if v := os.Getenv("MEDIASERVER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MEDIASERVER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MEDIASERVER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MEDIASERVER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MEDIASERVER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MEDIASERVER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("MEDIASERVER_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("MEDIASERVER_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Security.Admin.PasswordHash = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if c.Server.AliveInterval <= 0 {
		errs = append(errs, "server.alive_interval must be positive")
	}
	if c.Server.UDN != "" && !strings.HasPrefix(c.Server.UDN, "uuid:") {
		errs = append(errs, "server.udn must start with uuid:")
	}
	if !strings.HasPrefix(c.Server.VirtualDirectory, "/") {
		errs = append(errs, "server.virtual_directory must start with /")
	}

	// Device validation
	if c.Device.FriendlyName == "" {
		errs = append(errs, "device.friendly_name is required")
	}

	// Media validation
	errs = append(errs, validateFolders("media.library", c.Media.Library)...)

	// Eventing validation
	if c.Eventing.MinTimeout < 0 || c.Eventing.MaxTimeout < 0 || c.Eventing.MaxSubscribers < 0 {
		errs = append(errs, "eventing limits must not be negative")
	} else if c.Eventing.MaxTimeout > 0 && c.Eventing.MinTimeout > c.Eventing.MaxTimeout {
		errs = append(errs, "eventing.min_timeout must not exceed eventing.max_timeout")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A JWT secret is optional, but a short one is worse than none.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}
	if c.Security.Admin.PasswordHash != "" && c.Security.JWT.Secret == "" {
		errs = append(errs, "security.admin.password_hash requires security.jwt.secret")
	}
	if c.Security.Admin.PasswordHash != "" && !strings.HasPrefix(c.Security.Admin.PasswordHash, "$argon2id$") {
		errs = append(errs, "security.admin.password_hash must be an argon2id hash")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

var itemClasses = map[string]bool{"audio": true, "video": true, "image": true}

func validateFolders(prefix string, folders []LibraryFolder) []string {
	var errs []string
	for i, f := range folders {
		at := fmt.Sprintf("%s[%d]", prefix, i)
		if f.Title == "" {
			errs = append(errs, at+".title is required")
		}
		for j, item := range f.Items {
			itemAt := fmt.Sprintf("%s.items[%d]", at, j)
			if item.Title == "" {
				errs = append(errs, itemAt+".title is required")
			}
			if !itemClasses[item.Class] {
				errs = append(errs, itemAt+".class must be audio, video or image")
			}
		}
		errs = append(errs, validateFolders(at+".folders", f.Folders)...)
	}
	return errs
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

// GetAliveInterval returns the SSDP alive period as a Duration.
func (c *Config) GetAliveInterval() time.Duration {
	return time.Duration(c.Server.AliveInterval) * time.Second
}
