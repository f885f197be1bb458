package config

import (
	"fmt"
	"net"
	"os"

	"github.com/shimaore/unicast/internal/buncher"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Control  ControlConfig  `yaml:"control"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Audio    AudioConfig    `yaml:"audio"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ControlConfig contains the HTTP control API configuration
type ControlConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// IngestConfig contains the tap ingest UDP listener configuration
type IngestConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	BufferSize  int    `yaml:"buffer_size"`
}

// AudioConfig contains audio sizing parameters. The service is fixed to
// single-channel 16-bit linear samples; only the frame sizing is tunable.
type AudioConfig struct {
	// MaxFrameBytes is the maximum size of one incoming audio frame and
	// doubles as the byte low-water mark that triggers an early flush.
	// The accumulation buffer is sized at twice this value.
	MaxFrameBytes int `yaml:"max_frame_bytes"`
}

// DefaultsConfig contains per-session transmit defaults applied when a
// start command omits the corresponding option
type DefaultsConfig struct {
	LocalIP         string `yaml:"local_ip"`
	LocalPort       int    `yaml:"local_port"`
	FramesPerPacket int    `yaml:"frames_per_packet"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns the built-in configuration used when no file is given
func Default() *Config {
	return &Config{
		Control: ControlConfig{
			Address: "127.0.0.1",
			Port:    8088,
			Enabled: true,
		},
		Ingest: IngestConfig{
			BindAddress: "127.0.0.1",
			Port:        5877,
			BufferSize:  65536,
		},
		Audio: AudioConfig{
			MaxFrameBytes: buncher.DefaultLowWater,
		},
		Defaults: DefaultsConfig{
			LocalIP:         "127.0.0.1",
			LocalPort:       5876,
			FramesPerPacket: buncher.MaxFramesPerPacket,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates control API configuration
func (c *ControlConfig) Validate() error {
	if c.Enabled {
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
		}

		if c.Address == "" {
			return fmt.Errorf("address cannot be empty when the control API is enabled")
		}
	}

	return nil
}

// Validate validates ingest configuration
func (i *IngestConfig) Validate() error {
	if i.Port < 1 || i.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", i.Port)
	}

	if i.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if net.ParseIP(i.BindAddress) == nil {
		return fmt.Errorf("bind_address must be a valid IP address, got %q", i.BindAddress)
	}

	if i.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", i.BufferSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MaxFrameBytes < 2 {
		return fmt.Errorf("max_frame_bytes must be at least 2, got %d", a.MaxFrameBytes)
	}

	if a.MaxFrameBytes%2 != 0 {
		return fmt.Errorf("max_frame_bytes must be even for 16-bit samples, got %d", a.MaxFrameBytes)
	}

	return nil
}

// Validate validates per-session transmit defaults
func (d *DefaultsConfig) Validate() error {
	if d.LocalIP == "" {
		return fmt.Errorf("local_ip cannot be empty")
	}

	if net.ParseIP(d.LocalIP) == nil {
		return fmt.Errorf("local_ip must be a valid IP address, got %q", d.LocalIP)
	}

	if d.LocalPort < 1 || d.LocalPort > 65535 {
		return fmt.Errorf("local_port must be between 1 and 65535, got %d", d.LocalPort)
	}

	if d.FramesPerPacket < 1 || d.FramesPerPacket > buncher.MaxFramesPerPacket {
		return fmt.Errorf("frames_per_packet must be between 1 and %d, got %d",
			buncher.MaxFramesPerPacket, d.FramesPerPacket)
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

	// Output accepts "stdout", "stderr" or a file path; nothing to check
	// until the file is opened.
	return nil
}
