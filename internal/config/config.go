package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MARSHMALLOW_DATABASE_HOST
const EnvPrefix = "MARSHMALLOW"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Redis    RedisConfig    `yaml:"redis" envconfig:"REDIS"`
	AWS      AWSConfig      `yaml:"aws" envconfig:"AWS"`
	JWT      JWTConfig      `yaml:"jwt" envconfig:"JWT"`
	Identity IdentityConfig `yaml:"identity" envconfig:"IDENTITY"`
	APNs     APNsConfig     `yaml:"apns" envconfig:"APNS"`
	Live     LiveConfig     `yaml:"live" envconfig:"LIVE"`
	Notify   NotifyConfig   `yaml:"notify" envconfig:"NOTIFY"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	Host            string        `yaml:"host" envconfig:"HOST"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// InstanceID tags change events this process publishes. Empty means hostname.
	InstanceID string `yaml:"instance_id" envconfig:"INSTANCE_ID"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver         string        `yaml:"driver" envconfig:"DRIVER"` // postgres or memory
	URL            string        `yaml:"url" envconfig:"URL"`
	Host           string        `yaml:"host" envconfig:"HOST"`
	Port           int           `yaml:"port" envconfig:"PORT"`
	User           string        `yaml:"user" envconfig:"USER"`
	Password       string        `yaml:"password" envconfig:"PASSWORD"`
	DBName         string        `yaml:"dbname" envconfig:"DBNAME"`
	SSLMode        string        `yaml:"sslmode" envconfig:"SSLMODE"`
	MaxConns       int32         `yaml:"max_conns" envconfig:"MAX_CONNS"`
	AutoMigrate    bool          `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
}

// RedisConfig holds Redis configuration. An empty Addr runs single-instance.
type RedisConfig struct {
	Addr      string        `yaml:"addr" envconfig:"ADDR"`
	Password  string        `yaml:"password" envconfig:"PASSWORD"`
	DB        int           `yaml:"db" envconfig:"DB"`
	Channel   string        `yaml:"channel" envconfig:"CHANNEL"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl" envconfig:"DEDUPE_TTL"`
}

// AWSConfig holds S3 configuration for media uploads
type AWSConfig struct {
	Region    string        `yaml:"region" envconfig:"REGION"`
	S3Bucket  string        `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	AccessKey string        `yaml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	Endpoint  string        `yaml:"endpoint" envconfig:"ENDPOINT"` // S3-compatible storage
	URLTTL    time.Duration `yaml:"url_ttl" envconfig:"URL_TTL"`
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret     string `yaml:"secret" envconfig:"SECRET"`
	ExpiryDays int    `yaml:"expiry_days" envconfig:"EXPIRY_DAYS"`
}

// IdentityConfig verifies tokens minted by the upstream sign-in gateway
type IdentityConfig struct {
	Secret string `yaml:"secret" envconfig:"SECRET"`
	Issuer string `yaml:"issuer" envconfig:"ISSUER"`
}

// APNsConfig holds Apple Push Notification service configuration
type APNsConfig struct {
	KeyFile      string `yaml:"key_file" envconfig:"KEY_FILE"`
	KeyID        string `yaml:"key_id" envconfig:"KEY_ID"`
	TeamID       string `yaml:"team_id" envconfig:"TEAM_ID"`
	CertFile     string `yaml:"cert_file" envconfig:"CERT_FILE"`
	CertPassword string `yaml:"cert_password" envconfig:"CERT_PASSWORD"`
	Topic        string `yaml:"topic" envconfig:"TOPIC"`
	Production   bool   `yaml:"production" envconfig:"PRODUCTION"`
}

// Enabled reports whether push credentials are configured
func (c APNsConfig) Enabled() bool {
	return c.KeyFile != "" || c.CertFile != ""
}

// LiveConfig holds live subscription configuration.
// SnapshotLimit <= 0 sends the couple's whole message history.
type LiveConfig struct {
	SnapshotLimit int `yaml:"snapshot_limit" envconfig:"SNAPSHOT_LIMIT"`
}

// NotifyConfig holds notification dispatcher configuration
type NotifyConfig struct {
	Workers int           `yaml:"workers" envconfig:"WORKERS"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"` // console or json
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			DBName:         "marshmallow",
			SSLMode:        "disable",
			MaxConns:       10,
			AutoMigrate:    true,
			ConnectTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Channel:   "marshmallow:events",
			DedupeTTL: 24 * time.Hour,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
			URLTTL: 5 * time.Minute,
		},
		JWT: JWTConfig{
			ExpiryDays: 365,
		},
		Notify: NotifyConfig{
			Workers: 4,
			Timeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file, then applies MARSHMALLOW_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Identity.Secret == "" {
		return errors.New("identity.secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// TokenTTL returns the session token lifetime
func (c *JWTConfig) TokenTTL() time.Duration {
	return time.Duration(c.ExpiryDays) * 24 * time.Hour
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
