package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAppName         = "Registro"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultEndpoint        = "https://puce.estudioika.com/api/examen.php"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultSessionTTL      = 12 * time.Hour
	defaultLoginAttempts   = 5
	configFileEnvVar       = "REGISTRO_CONFIG"
	timeoutEnvVar          = "REGISTRO_TIMEOUT"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	sessionTTLEnvVar       = "SESSION_TTL"
	loginAttemptsEnvVar    = "LOGIN_ATTEMPTS_PER_MINUTE"
	sessionDirName         = "registro"
	sessionDirEnvVar       = "REGISTRO_SESSION_DIR"
	remoteEndpointEnvVar   = "REGISTRO_ENDPOINT"
	remoteRelayEnvVar      = "REGISTRO_RELAY"
)

// Config captures runtime configuration for the CLI and the gateway.
type Config struct {
	AppName  string `yaml:"app_name"`
	AppEnv   string `yaml:"app_env"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Endpoint is the remote attendance resource.
	Endpoint string `yaml:"endpoint"`
	// Relay is an optional URL prefix requests are routed through. Empty
	// means requests go straight to Endpoint.
	Relay string `yaml:"relay"`
	// RequestTimeout bounds each remote call. Zero keeps the transport default.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// SessionDir holds the device-local session file used by the CLI.
	SessionDir string `yaml:"session_dir"`

	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	ShutdownPeriod time.Duration `yaml:"shutdown_period"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	LoginAttempts  int           `yaml:"login_attempts_per_minute"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		AppName:        defaultAppName,
		AppEnv:         defaultAppEnv,
		Port:           defaultPort,
		LogLevel:       defaultLogLevel,
		Endpoint:       defaultEndpoint,
		SessionDir:     defaultSessionDir(),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		SessionTTL:     defaultSessionTTL,
		LoginAttempts:  defaultLoginAttempts,
	}
}

// Load builds a Config from defaults, then the YAML file named by path (or
// REGISTRO_CONFIG when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(configFileEnvVar)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.Endpoint = getEnv(remoteEndpointEnvVar, cfg.Endpoint)
	cfg.Relay = getEnv(remoteRelayEnvVar, cfg.Relay)
	cfg.SessionDir = getEnv(sessionDirEnvVar, cfg.SessionDir)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationFromEnv("", timeoutEnvVar, cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationFromEnv("", sessionTTLEnvVar, cfg.SessionTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(loginAttemptsEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", loginAttemptsEnvVar, err)
		}
		cfg.LoginAttempts = n
	}

	if cfg.Endpoint == "" {
		return Config{}, fmt.Errorf("%s must be set", remoteEndpointEnvVar)
	}
	if cfg.RequestTimeout < 0 {
		return Config{}, fmt.Errorf("%s must not be negative", timeoutEnvVar)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// durationFromEnv reads whole seconds from secondsKey or a Go duration from
// durationKey, seconds first. Empty keys are skipped.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func defaultSessionDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), sessionDirName)
	}
	return filepath.Join(dir, sessionDirName)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
