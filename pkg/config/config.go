// Package config loads engagementd configuration from a YAML file with
// environment overrides. A .env file is folded into the environment first, so
// local development and container deployments share one override mechanism.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Redis configures the external key-value store connection.
type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// Database configures the durable relational store. An empty DSN runs the
// service without durability: toggles stay in the counter store and the sync
// bridge is disabled.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Cache configures both cache layers. Durations are whole seconds in YAML.
type Cache struct {
	PageTTLSeconds  int `yaml:"page_ttl_seconds"`
	TagTTLSeconds   int `yaml:"tag_ttl_seconds"`
	FrameTTLSeconds int `yaml:"frame_ttl_seconds"`
	FrameCapacity   int `yaml:"frame_capacity"`
}

// PageTTL returns the page cache entry TTL.
func (c Cache) PageTTL() time.Duration { return time.Duration(c.PageTTLSeconds) * time.Second }

// TagTTL returns the tag index TTL.
func (c Cache) TagTTL() time.Duration { return time.Duration(c.TagTTLSeconds) * time.Second }

// FrameTTL returns the framework data cache TTL.
func (c Cache) FrameTTL() time.Duration { return time.Duration(c.FrameTTLSeconds) * time.Second }

// Bridge configures the write-behind synchronization bridge.
type Bridge struct {
	QueueSize      int `yaml:"queue_size"`
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffMillis  int `yaml:"backoff_millis"`
	FlushTimeoutMS int `yaml:"flush_timeout_millis"`
}

// Backoff returns the per-attempt retry backoff step.
func (b Bridge) Backoff() time.Duration { return time.Duration(b.BackoffMillis) * time.Millisecond }

// FlushTimeout returns the per-job database deadline.
func (b Bridge) FlushTimeout() time.Duration {
	return time.Duration(b.FlushTimeoutMS) * time.Millisecond
}

// Client configures the per-session reconciliation layer.
type Client struct {
	ToggleTimeoutSeconds int `yaml:"toggle_timeout_seconds"`
}

// ToggleTimeout returns the toggle round-trip deadline.
func (c Client) ToggleTimeout() time.Duration {
	return time.Duration(c.ToggleTimeoutSeconds) * time.Second
}

// Server configures the HTTP listener.
type Server struct {
	Address string `yaml:"address"`
}

// Config is the full engagementd configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Redis    Redis    `yaml:"redis"`
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Bridge   Bridge   `yaml:"bridge"`
	Client   Client   `yaml:"client"`
}

// Default returns the configuration used when no file and no overrides are
// present.
func Default() Config {
	return Config{
		Server: Server{Address: ":8080"},
		Redis:  Redis{Address: "localhost:6379"},
		Cache: Cache{
			PageTTLSeconds:  300,
			TagTTLSeconds:   86400,
			FrameTTLSeconds: 60,
			FrameCapacity:   10000,
		},
		Bridge: Bridge{
			QueueSize:      256,
			MaxAttempts:    3,
			BackoffMillis:  200,
			FlushTimeoutMS: 5000,
		},
		Client: Client{ToggleTimeoutSeconds: 10},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides. Path may be empty.
func Load(path string) (Config, error) {
	// Missing .env files are fine; only a malformed one is an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setString(&cfg.Redis.Address, "REDIS_ADDRESS")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLS, "REDIS_TLS")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setInt(&cfg.Cache.PageTTLSeconds, "CACHE_PAGE_TTL_SECONDS")
	setInt(&cfg.Cache.TagTTLSeconds, "CACHE_TAG_TTL_SECONDS")
	setInt(&cfg.Cache.FrameTTLSeconds, "CACHE_FRAME_TTL_SECONDS")
	setInt(&cfg.Cache.FrameCapacity, "CACHE_FRAME_CAPACITY")
	setInt(&cfg.Bridge.QueueSize, "BRIDGE_QUEUE_SIZE")
	setInt(&cfg.Bridge.MaxAttempts, "BRIDGE_MAX_ATTEMPTS")
	setInt(&cfg.Client.ToggleTimeoutSeconds, "CLIENT_TOGGLE_TIMEOUT_SECONDS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration is runnable.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Address, validation.Required),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validation.ValidateStruct(&c.Redis,
		validation.Field(&c.Redis.Address, validation.Required),
		validation.Field(&c.Redis.DB, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := validation.ValidateStruct(&c.Cache,
		validation.Field(&c.Cache.PageTTLSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.Cache.TagTTLSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.Cache.FrameTTLSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.Cache.FrameCapacity, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := validation.ValidateStruct(&c.Bridge,
		validation.Field(&c.Bridge.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Bridge.MaxAttempts, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	if err := validation.ValidateStruct(&c.Client,
		validation.Field(&c.Client.ToggleTimeoutSeconds, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if c.Database.DSN != "" && c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database: unsupported driver %q", c.Database.Driver)
	}
	return nil
}
