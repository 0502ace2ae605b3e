package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Relay   RelayConfig   `yaml:"relay"`
	Storage StorageConfig `yaml:"storage"`
	Static  StaticConfig  `yaml:"static"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains the front-end HTTP listener configuration
type HTTPConfig struct {
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	MaxBodySize int64  `yaml:"max_body_size"` // bytes, used when Content-Length is absent
}

// RelayConfig contains the UDP relay configuration. The HTTP front-end
// sends to this address and the relay server binds it.
type RelayConfig struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	BufferSize int    `yaml:"buffer_size"` // receive buffer, longer datagrams are truncated
}

// StorageConfig contains document store configuration
type StorageConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Timeout    int    `yaml:"timeout"` // seconds, per stored message
}

// StaticConfig describes where pages and assets are served from
type StaticConfig struct {
	Root      string `yaml:"root"`
	Index     string `yaml:"index"`
	Message   string `yaml:"message"`
	ErrorPage string `yaml:"error_page"`
}

// MetricsConfig contains the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the compiled-in configuration
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:     "0.0.0.0",
			Port:        3000,
			MaxBodySize: 1024,
		},
		Relay: RelayConfig{
			Address:    "127.0.0.1",
			Port:       5000,
			BufferSize: 1024,
		},
		Storage: StorageConfig{
			URI:        "mongodb://mongoserver:27017/",
			Database:   "homework6",
			Collection: "messages",
			Timeout:    5,
		},
		Static: StaticConfig{
			Root:      "src",
			Index:     "index.html",
			Message:   "message.html",
			ErrorPage: "error.html",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file on top of the defaults. Keys missing
// from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Static.Validate(); err != nil {
		return fmt.Errorf("static config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.MaxBodySize < 1 {
		return fmt.Errorf("max_body_size must be positive, got %d", h.MaxBodySize)
	}

	return nil
}

// Validate validates relay configuration
func (r *RelayConfig) Validate() error {
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("relay port must be between 1 and 65535, got %d", r.Port)
	}

	if r.Address == "" {
		return fmt.Errorf("relay address cannot be empty")
	}

	if r.BufferSize < 1 || r.BufferSize > 65535 {
		return fmt.Errorf("buffer_size must be between 1 and 65535 bytes, got %d", r.BufferSize)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.URI == "" {
		return fmt.Errorf("uri cannot be empty")
	}

	if s.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}

	if s.Collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates static content configuration
func (s *StaticConfig) Validate() error {
	if s.Root == "" {
		return fmt.Errorf("root cannot be empty")
	}

	if s.Index == "" || s.Message == "" || s.ErrorPage == "" {
		return fmt.Errorf("index, message and error_page must all be set")
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("metrics port must be between 1 and 65535, got %d", m.Port)
	}

	if m.Address == "" {
		return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr or a file path
	return nil
}

// HTTPAddr returns the host:port the front-end listens on
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTP.Address, strconv.Itoa(c.HTTP.Port))
}

// RelayAddr returns the host:port of the datagram relay
func (c *Config) RelayAddr() string {
	return net.JoinHostPort(c.Relay.Address, strconv.Itoa(c.Relay.Port))
}

// MetricsAddr returns the host:port of the metrics listener
func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.Metrics.Address, strconv.Itoa(c.Metrics.Port))
}

// GetTimeoutDuration returns the per-message storage timeout as a time.Duration
func (s *StorageConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
