package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars blanks every APP_* variable the loader reads.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		KeyServerHost, KeyServerPort, KeyLogLevel, KeyShutdownTimeout,
		KeyMetricsEnabled, KeyStudentsFile, KeyLoadOnStart, KeyAuthMode,
		KeyBasicAuthUsers, KeyAPIKeys,
	} {
		name := envName(key)
		if val, ok := os.LookupEnv(name); ok {
			require.NoError(t, os.Unsetenv(name))
			t.Cleanup(func() { _ = os.Setenv(name, val) })
		}
	}
	t.Setenv(EnvConfigFile, "")
}

func envName(key string) string {
	out := []byte(EnvPrefix + "_" + key)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func TestLoad_DefaultValues(t *testing.T) {
	// Arrange
	clearEnvVars(t)

	// Act
	cfg, err := Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, DefaultServerHost, cfg.ServerHost)
	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultMetricsEnabled, cfg.MetricsEnabled)
	assert.Equal(t, DefaultStudentsFile, cfg.StudentsFile)
	assert.False(t, cfg.LoadOnStart)
	assert.Equal(t, DefaultAuthMode, cfg.AuthMode)
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name:    "custom server port",
			envVars: map[string]string{"APP_SERVER_PORT": "9090"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.ServerPort)
			},
		},
		{
			name:    "custom host",
			envVars: map[string]string{"APP_SERVER_HOST": "0.0.0.0"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:8080", cfg.Address())
			},
		},
		{
			name:    "custom log level",
			envVars: map[string]string{"APP_LOG_LEVEL": "debug"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
		{
			name:    "custom shutdown timeout",
			envVars: map[string]string{"APP_SHUTDOWN_TIMEOUT": "5s"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
			},
		},
		{
			name:    "metrics disabled",
			envVars: map[string]string{"APP_METRICS_ENABLED": "false"},
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.MetricsEnabled)
			},
		},
		{
			name: "students file and load on start",
			envVars: map[string]string{
				"APP_STUDENTS_FILE": "/tmp/roster.csv",
				"APP_LOAD_ON_START": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/roster.csv", cfg.StudentsFile)
				assert.True(t, cfg.LoadOnStart)
			},
		},
		{
			name: "api key auth",
			envVars: map[string]string{
				"APP_AUTH_MODE": "apikey",
				"APP_API_KEYS":  "secret:me",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "apikey", cfg.AuthMode)
				assert.Equal(t, "secret:me", cfg.APIKeys)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			clearEnvVars(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			// Act
			cfg, err := Load()

			// Assert
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_InvalidEnvironmentVariables(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr error
	}{
		{"non-numeric port", map[string]string{"APP_SERVER_PORT": "abc"}, nil},
		{"bad duration", map[string]string{"APP_SHUTDOWN_TIMEOUT": "soon"}, nil},
		{"bad bool", map[string]string{"APP_METRICS_ENABLED": "maybe"}, nil},
		{"port out of range", map[string]string{"APP_SERVER_PORT": "70000"}, ErrInvalidServerPort},
		{"unknown log level", map[string]string{"APP_LOG_LEVEL": "trace"}, ErrInvalidLogLevel},
		{"unknown auth mode", map[string]string{"APP_AUTH_MODE": "oidc"}, ErrInvalidAuthMode},
		{"basic without users", map[string]string{"APP_AUTH_MODE": "basic"}, ErrInvalidBasicAuthConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			clearEnvVars(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			// Act
			cfg, err := Load()

			// Assert
			require.Error(t, err)
			assert.Nil(t, cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	// Arrange
	clearEnvVars(t)
	path := filepath.Join(t.TempDir(), "studenttracker.yaml")
	content := "server_port: 9191\nstudents_file: class.csv\nlog_level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv("APP_LOG_LEVEL", "error")

	// Act
	cfg, err := Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.ServerPort)
	assert.Equal(t, "class.csv", cfg.StudentsFile)
	assert.Equal(t, "error", cfg.LogLevel, "environment overrides file")
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	clearEnvVars(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()

	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServerHost:      DefaultServerHost,
			ServerPort:      DefaultServerPort,
			LogLevel:        DefaultLogLevel,
			ShutdownTimeout: DefaultShutdownTimeout,
			StudentsFile:    DefaultStudentsFile,
			AuthMode:        DefaultAuthMode,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"empty auth mode defaults to none", func(c *Config) { c.AuthMode = "" }, nil},
		{"empty host", func(c *Config) { c.ServerHost = "" }, ErrInvalidServerHost},
		{"zero port", func(c *Config) { c.ServerPort = 0 }, ErrInvalidServerPort},
		{"zero timeout", func(c *Config) { c.ShutdownTimeout = 0 }, ErrInvalidShutdownTimeout},
		{"empty students file", func(c *Config) { c.StudentsFile = "" }, ErrInvalidStudentsFile},
		{"apikey without keys", func(c *Config) { c.AuthMode = "apikey" }, ErrInvalidAPIKeyConfig},
		{"multi without anything", func(c *Config) { c.AuthMode = "multi" }, ErrInvalidMultiAuthConfig},
		{"multi with keys", func(c *Config) { c.AuthMode = "multi"; c.APIKeys = "k:n" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
