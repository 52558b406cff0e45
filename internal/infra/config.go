package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"crypto_exchange/internal/domain"
	"crypto_exchange/pkg/quant"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when CONFIG_PATH is not set.
	DefaultConfigPath = "configs/config.yaml"

	// DefaultUserAgent is sent with every upstream request
	DefaultUserAgent = "crypto-exchange/1.0 (+https://github.com)"

	CacheDriverRedis  = "redis"
	CacheDriverSQLite = "sqlite"
	CacheDriverMemory = "memory"
)

// KnownProviders lists the provider names the binary can construct, in default resolution order.
var KnownProviders = []string{"binance", "kucoin"}

// Config holds every setting of the service.
// LoadConfig reads the YAML file first, then environment variables override what they set.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Host         string        `yaml:"host" envconfig:"HOST"`
		Port         int           `yaml:"port" envconfig:"PORT"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	HTTPClient struct {
		ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"HTTP_CONNECT_TIMEOUT"`
		ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"HTTP_READ_TIMEOUT"`
	} `yaml:"http_client"`

	Cache struct {
		Driver string `yaml:"driver" envconfig:"CACHE_DRIVER"`
		Redis  struct {
			Host     string `yaml:"host" envconfig:"REDIS_HOST"`
			Port     int    `yaml:"port" envconfig:"REDIS_PORT"`
			Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
			DB       int    `yaml:"db" envconfig:"REDIS_DB"`
		} `yaml:"redis"`
		SQLite struct {
			Path string `yaml:"path" envconfig:"SQLITE_PATH"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Exchange struct {
		Providers         []string `yaml:"providers" envconfig:"EXCHANGE_PROVIDERS"`
		Intermediaries    []string `yaml:"intermediaries" envconfig:"EXCHANGE_INTERMEDIARIES"`
		MaxFractionDigits int32    `yaml:"max_fraction_digits"`
		Binance           struct {
			BaseURL string `yaml:"base_url" envconfig:"BINANCE_BASE_URL"`
		} `yaml:"binance"`
		Kucoin struct {
			BaseURL string `yaml:"base_url" envconfig:"KUCOIN_BASE_URL"`
		} `yaml:"kucoin"`
	} `yaml:"exchange"`

	Logging struct {
		Level string `yaml:"level" envconfig:"LOG_LEVEL"`
		File  string `yaml:"file" envconfig:"LOG_FILE"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration usable without any file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "crypto-exchange"
	cfg.App.Version = "dev"
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.HTTPClient.ConnectTimeout = 2 * time.Second
	cfg.HTTPClient.ReadTimeout = 2 * time.Second
	cfg.Cache.Driver = CacheDriverRedis
	cfg.Cache.Redis.Host = "localhost"
	cfg.Cache.Redis.Port = 6379
	cfg.Cache.SQLite.Path = "data/cache.db"
	cfg.Exchange.Providers = append([]string(nil), KnownProviders...)
	cfg.Exchange.Intermediaries = []string{"USDT", "BTC", "ETH"}
	cfg.Exchange.MaxFractionDigits = quant.DefaultMaxDigits
	cfg.Exchange.Binance.BaseURL = "https://api.binance.com"
	cfg.Exchange.Kucoin.BaseURL = "https://api.kucoin.com"
	cfg.Logging.Level = "info"
	return &cfg
}

// LoadConfig reads the YAML file at path over the defaults and applies env overrides.
// A missing file is an error; pass "" to run on defaults and env only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ConfigPath resolves the config file location from CONFIG_PATH.
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// overrideWithEnv loads an optional .env file and lets set variables win over the file.
func overrideWithEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", slog.Any("error", err))
	}

	if err := envconfig.Process("", cfg); err != nil {
		return &domain.ConfigError{Field: "env", Err: err}
	}
	return nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Err: fmt.Errorf("out of range: %d", c.Server.Port)}
	}

	if c.HTTPClient.ConnectTimeout <= 0 || c.HTTPClient.ReadTimeout <= 0 {
		return &domain.ConfigError{Field: "http_client", Err: errors.New("timeouts must be positive")}
	}

	switch c.Cache.Driver {
	case CacheDriverRedis, CacheDriverSQLite, CacheDriverMemory:
	default:
		return &domain.ConfigError{Field: "cache.driver", Err: fmt.Errorf("unknown driver %q", c.Cache.Driver)}
	}

	if len(c.Exchange.Providers) == 0 {
		return &domain.ConfigError{Field: "exchange.providers", Err: errors.New("at least one provider is required")}
	}
	for i, name := range c.Exchange.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if !isKnownProvider(name) {
			return &domain.ConfigError{Field: "exchange.providers", Err: fmt.Errorf("unknown provider %q", name)}
		}
		c.Exchange.Providers[i] = name
	}

	for i, cur := range c.Exchange.Intermediaries {
		c.Exchange.Intermediaries[i] = strings.ToUpper(strings.TrimSpace(cur))
	}

	if c.Exchange.MaxFractionDigits < 0 {
		return &domain.ConfigError{Field: "exchange.max_fraction_digits", Err: errors.New("must be non-negative")}
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RedisAddr returns host:port of the redis cache.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Cache.Redis.Host, c.Cache.Redis.Port)
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}
