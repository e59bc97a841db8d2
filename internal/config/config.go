package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration. Every adapter receives its
// own section at construction; nothing reads the environment after Load.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Mail      MailConfig      `yaml:"mail"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"45s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// MaxUploadBytes bounds a single multipart request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"SERVER_MAX_UPLOAD_BYTES" env-default:"16777216"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"    env:"DATABASE_CONNECT_TIMEOUT"    env-default:"10s"`
}

// StorageConfig holds S3-compatible object store settings.
type StorageConfig struct {
	Endpoint  string        `yaml:"endpoint"   env:"STORAGE_ENDPOINT"   env-required:"true"`
	AccessKey string        `yaml:"access_key" env:"STORAGE_ACCESS_KEY" env-required:"true"`
	SecretKey string        `yaml:"secret_key" env:"STORAGE_SECRET_KEY" env-required:"true"`
	Bucket    string        `yaml:"bucket"     env:"STORAGE_BUCKET"     env-default:"photo-requests"`
	UseSSL    bool          `yaml:"use_ssl"    env:"STORAGE_USE_SSL"    env-default:"false"`
	Timeout   time.Duration `yaml:"timeout"    env:"STORAGE_TIMEOUT"    env-default:"30s"`
}

// MailConfig holds SMTP settings for the completion notification.
type MailConfig struct {
	Host     string        `yaml:"host"     env:"MAIL_HOST"     env-default:"smtp.gmail.com"`
	Port     int           `yaml:"port"     env:"MAIL_PORT"     env-default:"587"`
	Username string        `yaml:"username" env:"MAIL_USERNAME"`
	Password string        `yaml:"password" env:"MAIL_PASSWORD"`
	From     string        `yaml:"from"     env:"MAIL_FROM"`
	UseTLS   bool          `yaml:"use_tls"  env:"MAIL_USE_TLS"  env-default:"true"`
	Timeout  time.Duration `yaml:"timeout"  env:"MAIL_TIMEOUT"  env-default:"30s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// RateLimitConfig bounds the public intake endpoint.
type RateLimitConfig struct {
	// Intake uses limiter formatted rates, e.g. "3-M" is 3 per minute.
	Intake string `yaml:"intake" env:"RATE_LIMIT_INTAKE" env-default:"3-M"`
}

// Load reads configuration from the YAML file named by CONFIG_PATH when set,
// then overlays environment variables. With no file, env alone must satisfy
// the required fields.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	return &cfg, nil
}

// Addr is the host:port the HTTP server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Sender is the From address, falling back to the SMTP username.
func (c MailConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}
