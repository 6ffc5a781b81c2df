package config

import (
	"fmt"
	"time"

	"github.com/muurk/neopixel/internal/pixel"
)

// CurrentVersion is the config file format version this build reads and writes.
const CurrentVersion = 1

// Config represents the entire user configuration file.
// It holds tuning only: the selected device and the grid contents are never
// persisted.
type Config struct {
	Version   int             `yaml:"version"`
	Discovery *DiscoveryPrefs `yaml:"discovery,omitempty"`
	Grid      *GridPrefs      `yaml:"grid,omitempty"`
	Device    *DevicePrefs    `yaml:"device,omitempty"`
	Server    *ServerPrefs    `yaml:"server,omitempty"`
}

// DiscoveryPrefs controls mDNS browsing.
type DiscoveryPrefs struct {
	Service        string `yaml:"service"`         // DNS-SD service type (e.g., "_neopixel._tcp")
	Domain         string `yaml:"domain"`          // Browse domain (e.g., "local.")
	ResolveTimeout int    `yaml:"resolve_timeout"` // Seconds to wait for one advertisement to resolve
	SweepInterval  int    `yaml:"sweep_interval"`  // Seconds per browse sweep
}

// GridPrefs describes the matrix geometry and the color a toggle turns on.
type GridPrefs struct {
	Rows    int    `yaml:"rows"`
	Cols    int    `yaml:"cols"`
	OnColor string `yaml:"on_color"` // Palette name (e.g., "red")
}

// DevicePrefs controls HTTP requests to the matrix.
type DevicePrefs struct {
	RequestTimeout int `yaml:"request_timeout"` // Seconds per request
}

// ServerPrefs controls the websocket server started by "serve".
type ServerPrefs struct {
	Listen         string   `yaml:"listen"`                    // host:port
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // Browser origins; empty allows all
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Discovery: &DiscoveryPrefs{
			Service:        "_neopixel._tcp",
			Domain:         "local.",
			ResolveTimeout: 5,
			SweepInterval:  15,
		},
		Grid: &GridPrefs{
			Rows:    pixel.DefaultRows,
			Cols:    pixel.DefaultCols,
			OnColor: pixel.DefaultOn.String(),
		},
		Device: &DevicePrefs{
			RequestTimeout: 5,
		},
		Server: &ServerPrefs{
			Listen: ":8080",
		},
	}
}

// fillDefaults replaces missing sections and zero values with defaults.
func (c *Config) fillDefaults() {
	def := Default()

	if c.Discovery == nil {
		c.Discovery = def.Discovery
	} else {
		if c.Discovery.Service == "" {
			c.Discovery.Service = def.Discovery.Service
		}
		if c.Discovery.Domain == "" {
			c.Discovery.Domain = def.Discovery.Domain
		}
		if c.Discovery.ResolveTimeout == 0 {
			c.Discovery.ResolveTimeout = def.Discovery.ResolveTimeout
		}
		if c.Discovery.SweepInterval == 0 {
			c.Discovery.SweepInterval = def.Discovery.SweepInterval
		}
	}

	if c.Grid == nil {
		c.Grid = def.Grid
	} else {
		if c.Grid.Rows == 0 {
			c.Grid.Rows = def.Grid.Rows
		}
		if c.Grid.Cols == 0 {
			c.Grid.Cols = def.Grid.Cols
		}
		if c.Grid.OnColor == "" {
			c.Grid.OnColor = def.Grid.OnColor
		}
	}

	if c.Device == nil {
		c.Device = def.Device
	} else if c.Device.RequestTimeout == 0 {
		c.Device.RequestTimeout = def.Device.RequestTimeout
	}

	if c.Server == nil {
		c.Server = def.Server
	} else if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}
}

// Validate checks the values that would make the application misbehave.
func (c *Config) Validate() error {
	if c.Discovery.ResolveTimeout < 0 || c.Discovery.SweepInterval < 0 || c.Device.RequestTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Grid.Rows <= 0 || c.Grid.Cols <= 0 {
		return fmt.Errorf("grid size must be positive, got %dx%d", c.Grid.Rows, c.Grid.Cols)
	}
	color, err := pixel.ParseColor(c.Grid.OnColor)
	if err != nil {
		return fmt.Errorf("invalid on_color: %w", err)
	}
	if color == pixel.Off {
		return fmt.Errorf("on_color must not be %q", c.Grid.OnColor)
	}
	return nil
}

// OnColor returns the parsed grid on color, falling back to the default.
func (c *Config) OnColor() pixel.Color {
	color, err := pixel.ParseColor(c.Grid.OnColor)
	if err != nil || color == pixel.Off {
		return pixel.DefaultOn
	}
	return color
}

// ResolveTimeout returns the discovery resolve timeout as a duration.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Discovery.ResolveTimeout) * time.Second
}

// SweepInterval returns the discovery sweep length as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Discovery.SweepInterval) * time.Second
}

// RequestTimeout returns the HTTP request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Device.RequestTimeout) * time.Second
}
