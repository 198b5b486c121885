// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"time"

	"github.com/Skinpack/JAProxy/internal/capture"
	"github.com/Skinpack/JAProxy/internal/core"
	"github.com/Skinpack/JAProxy/internal/jka"
)

// Config is the top-level configuration.
type Config struct {
	Device  string        `mapstructure:"device"`
	Server  ServerConfig  `mapstructure:"server"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig identifies the observed game server.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    uint16 `mapstructure:"port"`
}

// CaptureConfig configures the capture backend.
type CaptureConfig struct {
	Backend      string `mapstructure:"backend"` // pcap | afpacket | file
	SnapLen      int    `mapstructure:"snap_len"`
	Promiscuous  bool   `mapstructure:"promiscuous"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	File         string `mapstructure:"file"` // replay file for the file backend
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"` // text | json
	File   FileLogConfig `mapstructure:"file"`
}

// FileLogConfig configures rotated file output.
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: jka.DefaultPort},
		Capture: CaptureConfig{
			Backend:      string(capture.BackendPcap),
			SnapLen:      65535,
			Promiscuous:  true,
			TimeoutMs:    100,
			BufferSizeMB: 8,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks cross-field consistency. The server endpoint itself is
// validated in Endpoint, since it may still be filled from CLI flags.
func (c *Config) Validate() error {
	switch capture.Backend(c.Capture.Backend) {
	case capture.BackendPcap, capture.BackendAFPacket:
		if c.Device == "" {
			return fmt.Errorf("capture backend %q requires a device", c.Capture.Backend)
		}
	case capture.BackendFile:
		if c.Capture.File == "" {
			return fmt.Errorf("capture backend %q requires a file", c.Capture.Backend)
		}
	default:
		return fmt.Errorf("unknown capture backend %q", c.Capture.Backend)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (must be text or json)", c.Log.Format)
	}
	return nil
}

// Endpoint builds the server endpoint the listener binds to.
func (c *Config) Endpoint() (core.Endpoint, error) {
	if c.Server.Address == "" {
		return core.Endpoint{}, fmt.Errorf("server address is required")
	}
	return core.NewEndpoint(c.Server.Address, c.Server.Port)
}

// CaptureOptions converts the capture section into adapter options.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		Backend:      capture.Backend(c.Capture.Backend),
		Device:       c.Device,
		File:         c.Capture.File,
		SnapLen:      c.Capture.SnapLen,
		Promiscuous:  c.Capture.Promiscuous,
		Timeout:      time.Duration(c.Capture.TimeoutMs) * time.Millisecond,
		BufferSizeMB: c.Capture.BufferSizeMB,
	}
}
