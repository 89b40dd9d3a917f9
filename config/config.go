package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration. It is loaded once at
// startup and shared read-only from then on.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig is the fixed sandbox policy: image, resource envelope,
// and isolation switches. Network and filesystem access stay disabled in
// production configurations.
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	Image              string `mapstructure:"image"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	PidsLimit          int    `mapstructure:"pids_limit"`
	CPUShares          int    `mapstructure:"cpu_shares"`
	MaxOutputKB        int    `mapstructure:"max_output_kb"`
	NetworkEnabled     bool   `mapstructure:"network_enabled"`
	FilesystemWritable bool   `mapstructure:"filesystem_writable"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
}

// DispatcherConfig holds admission control settings.
type DispatcherConfig struct {
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	AdmissionMode string `mapstructure:"admission_mode"` // "queue" or "reject"
	QueueWaitSec  int    `mapstructure:"queue_wait_sec"`
	MaxCodeBytes  int    `mapstructure:"max_code_bytes"`
}

// JournalConfig holds execution journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.image", "python:3.11-slim")
	v.SetDefault("sandbox.timeout_sec", 10)
	v.SetDefault("sandbox.memory_mb", 128)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.cpu_shares", 0)
	v.SetDefault("sandbox.max_output_kb", 200)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.filesystem_writable", false)
	v.SetDefault("sandbox.enable_local_backend", false)

	v.SetDefault("dispatcher.max_concurrent", 5)
	v.SetDefault("dispatcher.admission_mode", "queue")
	v.SetDefault("dispatcher.queue_wait_sec", 30)
	v.SetDefault("dispatcher.max_code_bytes", 5000)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "data/journal.db")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid.
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}
	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image must not be empty")
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.PidsLimit <= 0 {
		return fmt.Errorf("sandbox.pids_limit must be positive, got: %d", c.Sandbox.PidsLimit)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	if c.Dispatcher.MaxConcurrent <= 0 {
		return fmt.Errorf("dispatcher.max_concurrent must be positive, got: %d", c.Dispatcher.MaxConcurrent)
	}

	if c.Dispatcher.AdmissionMode != "queue" && c.Dispatcher.AdmissionMode != "reject" {
		return fmt.Errorf("invalid dispatcher.admission_mode: %s, must be 'queue' or 'reject'", c.Dispatcher.AdmissionMode)
	}

	if c.Dispatcher.QueueWaitSec < 0 {
		return fmt.Errorf("dispatcher.queue_wait_sec must not be negative, got: %d", c.Dispatcher.QueueWaitSec)
	}

	if c.Dispatcher.MaxCodeBytes <= 0 {
		return fmt.Errorf("dispatcher.max_code_bytes must be positive, got: %d", c.Dispatcher.MaxCodeBytes)
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path must not be empty when the journal is enabled")
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetQueueWait returns the admission queue wait as a duration.
func (c *Config) GetQueueWait() time.Duration {
	return time.Duration(c.Dispatcher.QueueWaitSec) * time.Second
}
