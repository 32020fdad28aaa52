// Package config provides configuration management for the student tracker.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStudentsFile    = "students.txt"
	DefaultLoadOnStart     = false
	DefaultAuthMode        = "none"
	DefaultConfigName      = "studenttracker"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "APP"

// Configuration keys. The environment variable for a key is EnvPrefix, an
// underscore and the upper-cased key.
const (
	KeyServerHost      = "server_host"
	KeyServerPort      = "server_port"
	KeyLogLevel        = "log_level"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyMetricsEnabled  = "metrics_enabled"
	KeyStudentsFile    = "students_file"
	KeyLoadOnStart     = "load_on_start"
	KeyAuthMode        = "auth_mode"
	KeyBasicAuthUsers  = "basic_auth_users"
	KeyAPIKeys         = "api_keys"
)

// EnvConfigFile names an explicit config file, bypassing the search path.
const EnvConfigFile = "APP_CONFIG_FILE"

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerHost      string        `mapstructure:"server_host"`
	ServerPort      int           `mapstructure:"server_port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`

	// Persistence settings.
	StudentsFile string `mapstructure:"students_file"`
	LoadOnStart  bool   `mapstructure:"load_on_start"`

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string `mapstructure:"auth_mode"`

	// Basic auth settings (format: "user1:bcrypt_hash,user2:bcrypt_hash").
	BasicAuthUsers string `mapstructure:"basic_auth_users"`

	// API key settings (format: "key1:name1,key2:name2").
	APIKeys string `mapstructure:"api_keys"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidServerHost      = errors.New("server host must not be empty")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStudentsFile    = errors.New("students file must not be empty")
	ErrInvalidAuthMode        = errors.New(
		"auth mode must be one of: none, basic, apikey, multi",
	)
	ErrInvalidBasicAuthConfig = errors.New(
		"basic auth users must be set when auth mode is basic",
	)
	ErrInvalidAPIKeyConfig = errors.New(
		"API keys must be set when auth mode is apikey",
	)
	ErrInvalidMultiAuthConfig = errors.New(
		"at least one auth config must be provided when auth mode is multi",
	)
)

// Load reads configuration from defaults, an optional studenttracker.yaml
// in the working directory (or the file named by APP_CONFIG_FILE) and
// APP_* environment variables, in increasing priority.
func Load() (*Config, error) {
	v := newViper()

	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// newViper returns a viper instance with defaults and environment binding.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyServerHost, DefaultServerHost)
	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyMetricsEnabled, DefaultMetricsEnabled)
	v.SetDefault(KeyStudentsFile, DefaultStudentsFile)
	v.SetDefault(KeyLoadOnStart, DefaultLoadOnStart)
	v.SetDefault(KeyAuthMode, DefaultAuthMode)
	v.SetDefault(KeyBasicAuthUsers, "")
	v.SetDefault(KeyAPIKeys, "")

	v.SetConfigName(DefaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if c.StudentsFile == "" {
		return ErrInvalidStudentsFile
	}

	return c.validateAuth()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerHost == "" {
		return ErrInvalidServerHost
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateAuth validates the auth mode and its requirements.
func (c *Config) validateAuth() error {
	switch c.authModeOrDefault() {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}
