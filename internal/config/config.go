package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address            string   `hcl:"address,optional"`
	Port               int      `hcl:"port,optional"`
	LogLevel           string   `hcl:"log_level,optional"`
	AllowedOrigins     []string `hcl:"allowed_origins,optional"`
	SessionIdleTimeout string   `hcl:"session_idle_timeout,optional"`
	SweepInterval      string   `hcl:"sweep_interval,optional"`
}

const (
	defaultAddress            = "localhost"
	defaultPort               = 8080
	defaultLogLevel           = "info"
	defaultFrontendURL        = "http://localhost:5173"
	defaultSessionIdleTimeout = "30m"
	defaultSweepInterval      = "1m"
)

// Default returns the default configuration
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from an HCL file. A missing file yields the
// defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{defaultFrontendURL}
	}
	if c.Server.SessionIdleTimeout == "" {
		c.Server.SessionIdleTimeout = defaultSessionIdleTimeout
	}
	if c.Server.SweepInterval == "" {
		c.Server.SweepInterval = defaultSweepInterval
	}
}

// Validate checks that durations parse and are positive
func (c *Config) Validate() error {
	if _, err := c.IdleTimeout(); err != nil {
		return err
	}
	if _, err := c.SweepEvery(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	return nil
}

// ListenAddr returns host:port for the HTTP listener
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// IdleTimeout returns how long a session may sit unused before it is swept
func (c *Config) IdleTimeout() (time.Duration, error) {
	return positiveDuration("session_idle_timeout", c.Server.SessionIdleTimeout)
}

// SweepEvery returns how often idle sessions are swept
func (c *Config) SweepEvery() (time.Duration, error) {
	return positiveDuration("sweep_interval", c.Server.SweepInterval)
}

func positiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}
