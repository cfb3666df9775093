package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	FeedMemory = "memory"
	FeedRedis  = "redis"

	SessionStoreRedis  = "redis"
	SessionStoreCookie = "cookie"

	// DefaultSessionSecret must be replaced outside development.
	DefaultSessionSecret = "default-secret-key-change-me"
)

// Config holds all configuration for the API server.
// Values come from the environment, optionally layered over the YAML file
// named by CONFIG_FILE. Secrets are environment-only.
type Config struct {
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080"`
	GinMode  string `yaml:"gin_mode" env:"GIN_MODE" env-default:"debug"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Database
	DBDriver       string `yaml:"db_driver" env:"DB_DRIVER" env-default:"mysql"`
	DBDSN          string `yaml:"-" env:"DB_DSN"` // Overrides the fields below when set
	DBHost         string `yaml:"db_host" env:"DB_HOST" env-default:"localhost"`
	DBPort         string `yaml:"db_port" env:"DB_PORT" env-default:"3306"`
	DBUser         string `yaml:"db_user" env:"DB_USER" env-default:"taskuser"`
	DBPassword     string `yaml:"-" env:"DB_PASSWORD" env-default:"taskpassword"`
	DBName         string `yaml:"db_name" env:"DB_NAME" env-default:"project_hub"`
	DBMaxOpenConns int    `yaml:"db_max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`

	// Redis backs sessions and, with FEED_BACKEND=redis, the change feed
	RedisHost     string `yaml:"redis_host" env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     string `yaml:"redis_port" env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `yaml:"-" env:"REDIS_PASSWORD"`

	SessionStore  string `yaml:"session_store" env:"SESSION_STORE" env-default:"redis"`
	SessionSecret string `yaml:"-" env:"SESSION_SECRET" env-default:"default-secret-key-change-me"`

	FeedBackend       string `yaml:"feed_backend" env:"FEED_BACKEND" env-default:"memory"`
	FeedChannelPrefix string `yaml:"feed_channel_prefix" env:"FEED_CHANNEL_PREFIX" env-default:"projecthub"`

	OpenAIAPIKey string `yaml:"-" env:"OPENAI_API_KEY"`

	SequenceMaxRetries      int           `yaml:"sequence_max_retries" env:"SEQUENCE_MAX_RETRIES" env-default:"5"`
	PermissionsReadyTimeout time.Duration `yaml:"permissions_ready_timeout" env:"PERMISSIONS_READY_TIMEOUT" env-default:"10s"`
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	var err error
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown backends and insecure release settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	switch c.FeedBackend {
	case FeedMemory, FeedRedis:
	default:
		errs = append(errs, fmt.Errorf("unsupported FEED_BACKEND %q", c.FeedBackend))
	}
	switch c.SessionStore {
	case SessionStoreRedis, SessionStoreCookie:
	default:
		errs = append(errs, fmt.Errorf("unsupported SESSION_STORE %q", c.SessionStore))
	}
	if c.SequenceMaxRetries < 0 {
		errs = append(errs, errors.New("SEQUENCE_MAX_RETRIES must not be negative"))
	}
	if c.IsRelease() && c.SessionSecret == DefaultSessionSecret {
		errs = append(errs, errors.New("SESSION_SECRET must be set in release mode"))
	}

	return errors.Join(errs...)
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// RedisAddr is the host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, c.RedisPort)
}

// DSN returns DB_DSN, or one built from the discrete fields for the driver.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	case DriverSQLite:
		return c.DBName + ".db"
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	}
}
