package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to empty fields
const (
	DefaultLogLevel        = "info"
	DefaultRole            = "server"
	DefaultPort            = 44445
	DefaultTickHz          = 50
	DefaultInboxSize       = 1024
	DefaultMaxDatagramSize = 1400
	DefaultCodec           = "json"
	DefaultHTTPPort        = 8080
)

// Config is the posync process configuration (posync.yaml)
type Config struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Session SessionConfig `yaml:"session" json:"session"`
	Codec   CodecConfig   `yaml:"codec" json:"codec"`
	API     APIConfig     `yaml:"api" json:"api"`
	ZeroMQ  ZeroMQConfig  `yaml:"zeromq" json:"zeromq"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	LogPath string `yaml:"log_path,omitempty" json:"log_path,omitempty"`
}

// SessionConfig holds the sync session settings
type SessionConfig struct {
	Role            string `yaml:"role" json:"role"`
	ServerAddress   string `yaml:"server_address" json:"server_address"`
	BindAddress     string `yaml:"bind_address,omitempty" json:"bind_address,omitempty"`
	Port            int    `yaml:"port" json:"port"`
	TickHz          int    `yaml:"tick_hz" json:"tick_hz"`
	PeerID          string `yaml:"peer_id,omitempty" json:"peer_id,omitempty"`
	InboxSize       int    `yaml:"inbox_size" json:"inbox_size"`
	MaxDatagramSize int    `yaml:"max_datagram_size" json:"max_datagram_size"`
	HostPlayer      bool   `yaml:"host_player" json:"host_player"`
}

// CodecConfig selects the wire format. All participants must agree.
type CodecConfig struct {
	Format string `yaml:"format" json:"format"`
}

// APIConfig holds the status HTTP server settings
type APIConfig struct {
	Enabled  bool `yaml:"enabled" json:"enabled"`
	HTTPPort int  `yaml:"http_port" json:"http_port"`
}

// ZeroMQConfig holds the event publisher settings. An empty address
// disables publishing.
type ZeroMQConfig struct {
	PublishBindAddress string `yaml:"publish_bind_address" json:"publish_bind_address"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{API: APIConfig{Enabled: true}}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig loads configuration from the specified file path, applies
// defaults and environment variable overrides, then validates the result.
func LoadConfig(path string) (*Config, error) {
	config, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ReadConfig is LoadConfig without validation, for callers that apply
// further overrides first.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file '%s': %w", path, err)
	}

	// api.enabled defaults to true when the section is absent
	config := Config{API: APIConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}

	config.ApplyDefaults()
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults fills empty fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Session.Role == "" {
		c.Session.Role = DefaultRole
	}
	if c.Session.Port == 0 {
		c.Session.Port = DefaultPort
	}
	if c.Session.TickHz == 0 {
		c.Session.TickHz = DefaultTickHz
	}
	if c.Session.InboxSize == 0 {
		c.Session.InboxSize = DefaultInboxSize
	}
	if c.Session.MaxDatagramSize == 0 {
		c.Session.MaxDatagramSize = DefaultMaxDatagramSize
	}
	if c.Codec.Format == "" {
		c.Codec.Format = DefaultCodec
	}
	if c.API.HTTPPort == 0 {
		c.API.HTTPPort = DefaultHTTPPort
	}
}

// Validate checks the configuration for missing or out of range values.
func (c *Config) Validate() error {
	switch c.Session.Role {
	case "server":
	case "client":
		if c.Session.ServerAddress == "" {
			return fmt.Errorf("missing required field in config: session.server_address (required for role client)")
		}
	default:
		return fmt.Errorf("invalid session.role %q: must be server or client", c.Session.Role)
	}

	if c.Session.Port < 1 || c.Session.Port > 65535 {
		return fmt.Errorf("invalid session.port %d", c.Session.Port)
	}
	if c.Session.TickHz < 1 || c.Session.TickHz > 1000 {
		return fmt.Errorf("invalid session.tick_hz %d: must be between 1 and 1000", c.Session.TickHz)
	}
	if c.Session.InboxSize < 1 {
		return fmt.Errorf("invalid session.inbox_size %d", c.Session.InboxSize)
	}
	if c.Session.MaxDatagramSize < 64 || c.Session.MaxDatagramSize > 65507 {
		return fmt.Errorf("invalid session.max_datagram_size %d: must be between 64 and 65507", c.Session.MaxDatagramSize)
	}

	switch c.Codec.Format {
	case "json", "flatbuffers":
	default:
		return fmt.Errorf("invalid codec.format %q: must be json or flatbuffers", c.Codec.Format)
	}

	if c.API.Enabled && (c.API.HTTPPort < 1 || c.API.HTTPPort > 65535) {
		return fmt.Errorf("invalid api.http_port %d", c.API.HTTPPort)
	}
	return nil
}

// TickInterval converts tick_hz into the interval between ticks.
func (c *Config) TickInterval() time.Duration {
	if c.Session.TickHz <= 0 {
		return time.Second / DefaultTickHz
	}
	return time.Second / time.Duration(c.Session.TickHz)
}
