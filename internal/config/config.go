package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	RTMP    RTMPConfig    `yaml:"rtmp"`
	Ingest  IngestConfig  `yaml:"ingest"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
	Devices DevicesConfig `yaml:"devices"`
	Loop    LoopConfig    `yaml:"loop"`
	Logging LoggingConfig `yaml:"logging"`
}

// RTMPConfig contains the RTMP ingest listener configuration
type RTMPConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Address             string `yaml:"address"`
	BandwidthWindowSize uint32 `yaml:"bandwidth_window_size"` // bytes
	MTU                 int    `yaml:"mtu"`
}

// IngestConfig controls how published streams are exposed
type IngestConfig struct {
	AutoProduce bool `yaml:"auto_produce"`
}

// APIConfig contains the HTTP management API configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// MetricsConfig controls the Prometheus endpoint served by the API
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DevicesConfig lists the virtual capture devices offered through the API
type DevicesConfig struct {
	Video []DeviceConfig `yaml:"video"`
	Audio []DeviceConfig `yaml:"audio"`
}

// DeviceConfig describes one virtual device. Codec is a mime type; empty
// picks the kind's default.
type DeviceConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Codec string `yaml:"codec"`
}

// LoopConfig configures the event loop shared by every stream
type LoopConfig struct {
	CallTimeout int `yaml:"call_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		RTMP: RTMPConfig{
			Enabled:             true,
			Address:             ":1935",
			BandwidthWindowSize: 6 * 1024 * 1024,
			MTU:                 1200,
		},
		Ingest: IngestConfig{AutoProduce: true},
		API: APIConfig{
			Enabled: true,
			Address: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Loop: LoopConfig{CallTimeout: 5},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file at path on top of Default. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.RTMP.Validate(); err != nil {
		return fmt.Errorf("rtmp config: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Devices.Validate(); err != nil {
		return fmt.Errorf("devices config: %w", err)
	}

	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates RTMP configuration
func (r *RTMPConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if err := validateAddress(r.Address); err != nil {
		return err
	}

	if r.BandwidthWindowSize < 2500 {
		return fmt.Errorf("bandwidth_window_size must be at least 2500 bytes, got %d", r.BandwidthWindowSize)
	}

	if r.MTU < 100 || r.MTU > 9000 {
		return fmt.Errorf("mtu must be between 100 and 9000, got %d", r.MTU)
	}

	return nil
}

// Validate validates API configuration
func (a *APIConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	return validateAddress(a.Address)
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with '/', got '%s'", m.Path)
	}
	return nil
}

// Validate checks that device ids are set and unique
func (d *DevicesConfig) Validate() error {
	seen := make(map[string]bool)
	for _, dev := range append(append([]DeviceConfig{}, d.Video...), d.Audio...) {
		if dev.ID == "" {
			return fmt.Errorf("device id cannot be empty")
		}
		if seen[dev.ID] {
			return fmt.Errorf("duplicate device id '%s'", dev.ID)
		}
		seen[dev.ID] = true
	}
	return nil
}

// Enabled reports whether any device is configured
func (d *DevicesConfig) Enabled() bool {
	return len(d.Video)+len(d.Audio) > 0
}

// Validate validates loop configuration
func (l *LoopConfig) Validate() error {
	if l.CallTimeout < 1 {
		return fmt.Errorf("call_timeout must be at least 1 second, got %d", l.CallTimeout)
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

	return nil
}

// GetCallTimeoutDuration returns the loop call timeout as a time.Duration
func (l *LoopConfig) GetCallTimeoutDuration() time.Duration {
	return time.Duration(l.CallTimeout) * time.Second
}

func validateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address '%s': %w", addr, err)
	}
	return nil
}
