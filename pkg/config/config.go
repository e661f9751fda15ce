// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// CacheConfig holds cache layer settings.
type CacheConfig struct {
	Memory MemoryConfig `yaml:"memory"`
	Redis  RedisConfig  `yaml:"redis"`
	Bloom  BloomConfig  `yaml:"bloom"`

	AccountTTL     Duration `yaml:"account_ttl"`
	TransactionTTL Duration `yaml:"transaction_ttl"`
	ListTTL        Duration `yaml:"list_ttl"`
	NegativeTTL    Duration `yaml:"negative_ttl"`
}

// MemoryConfig holds L1 settings.
type MemoryConfig struct {
	MaxSize    int      `yaml:"max_size"`
	DefaultTTL Duration `yaml:"default_ttl"`
}

// BloomConfig gates the cache penetration guard in front of the chain.
type BloomConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ExpectedItems     uint    `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// RedisConfig holds L2 settings. Enabled false runs the chain on L1 alone.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig holds backing store settings. Enabled false runs on the
// in-memory store, for demos and tests.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RateLimitConfig holds limiter settings.
type RateLimitConfig struct {
	Rate     float64 `yaml:"rate"`
	Burst    int     `yaml:"burst"`
	ListCost int     `yaml:"list_cost"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Cache: CacheConfig{
			Memory: MemoryConfig{
				MaxSize:    10000,
				DefaultTTL: Duration(5 * time.Minute),
			},
			Redis: RedisConfig{
				Enabled:   false,
				Addr:      "localhost:6379",
				KeyPrefix: "ledgercache:",
			},
			Bloom: BloomConfig{
				Enabled:           false,
				ExpectedItems:     100000,
				FalsePositiveRate: 0.01,
			},
			AccountTTL:     Duration(5 * time.Minute),
			TransactionTTL: Duration(30 * time.Minute),
			ListTTL:        Duration(2 * time.Minute),
			NegativeTTL:    Duration(time.Minute),
		},
		Postgres: PostgresConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "ledger",
			SSLMode:  "disable",
		},
		RateLimit: RateLimitConfig{
			Rate:     25,
			Burst:    50,
			ListCost: 5,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// applyEnv lets deploy environments override the file without editing it.
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.Redis.Enabled = true
		c.Cache.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Cache.Redis.Password = password
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		c.Postgres.Enabled = true
		c.Postgres.Host = host
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		c.Postgres.User = user
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		c.Postgres.Password = password
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		c.Postgres.Database = db
	}
}

// Validate rejects configurations that cannot serve.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Cache.Memory.MaxSize < 0 {
		return fmt.Errorf("config: memory max_size must be non-negative")
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit values must be non-negative")
	}
	if c.Postgres.Enabled && c.Postgres.Database == "" {
		return fmt.Errorf("config: postgres enabled but no database named")
	}
	return nil
}
