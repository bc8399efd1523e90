// Package config loads application configuration from an optional YAML
// file overlaid with SAFETRACK_ environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides. Nesting uses a double
// underscore: SAFETRACK_DATABASE__URL maps to database.url.
const envPrefix = "SAFETRACK_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	JWT           JWTConfig           `koanf:"jwt"`
	Cookie        CookieConfig        `koanf:"cookie"`
	Notifications NotificationsConfig `koanf:"notifications"`
	SLA           SLAConfig           `koanf:"sla"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// JWTConfig contains token settings.
type JWTConfig struct {
	Secret               string        `koanf:"secret"`
	Issuer               string        `koanf:"issuer"`
	AccessTokenDuration  time.Duration `koanf:"access_token_duration"`
	RefreshTokenDuration time.Duration `koanf:"refresh_token_duration"`
}

// CookieConfig contains auth cookie settings.
type CookieConfig struct {
	Secure bool   `koanf:"secure"`
	Domain string `koanf:"domain"`
}

// NotificationsConfig contains delivery settings.
type NotificationsConfig struct {
	Enabled bool                `koanf:"enabled"`
	Webhook WebhookSenderConfig `koanf:"webhook"`
	Email   EmailSenderConfig   `koanf:"email"`
	Worker  WorkerConfig        `koanf:"worker"`
	Retry   RetryConfig         `koanf:"retry"`
}

// WebhookSenderConfig contains outbound webhook settings.
type WebhookSenderConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	UserAgent string        `koanf:"user_agent"`
}

// EmailSenderConfig contains SMTP settings.
type EmailSenderConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// WorkerConfig contains queue worker settings.
type WorkerConfig struct {
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	NumWorkers   int           `koanf:"num_workers"`
}

// RetryConfig contains delivery retry settings.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// SLAConfig contains escalation sweep settings.
type SLAConfig struct {
	Enabled       bool          `koanf:"enabled"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{},
		},
		JWT: JWTConfig{
			Issuer:               "safetrack",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 30 * 24 * time.Hour,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Webhook: WebhookSenderConfig{
				Timeout:   10 * time.Second,
				RateLimit: 10,
				UserAgent: "safetrack-notifier",
			},
			Email: EmailSenderConfig{
				SMTPPort: 587,
			},
			Worker: WorkerConfig{
				BatchSize:    100,
				PollInterval: 5 * time.Second,
				NumWorkers:   3,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    1 * time.Second,
				MaxBackoff:        5 * time.Minute,
				BackoffMultiplier: 2.0,
			},
		},
		SLA: SLAConfig{
			Enabled:       true,
			SweepInterval: 30 * time.Second,
		},
	}
}

// Load reads configuration from path (ignored when empty or missing)
// and the environment, on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (SAFETRACK_DATABASE__URL)")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (SAFETRACK_JWT__SECRET)")
	}
	return nil
}
