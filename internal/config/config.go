// Package config loads service settings from .env, config.yaml and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	AppName  string `mapstructure:"APP_NAME"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Fluent Bit log shipping.
	FluentBitEnabled  bool   `mapstructure:"FLUENTBIT_ENABLED"`
	FluentBitHost     string `mapstructure:"FLUENTBIT_HOST"`
	FluentBitPort     int    `mapstructure:"FLUENTBIT_PORT"`
	FluentBitLogLevel string `mapstructure:"FLUENTBIT_LOG_LEVEL"`

	// Catalog storage.
	CatalogDriver   string `mapstructure:"CATALOG_DRIVER"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	MongoURI        string `mapstructure:"MONGODB_URI"`
	MongoDatabase   string `mapstructure:"MONGODB_DATABASE"`
	MongoCollection string `mapstructure:"MONGODB_COLLECTION"`
	CatalogSeedFile string `mapstructure:"CATALOG_SEED_FILE"`

	// Image delivery. An empty cloud name serves image references as stored.
	CloudinaryCloud  string `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryKey    string `mapstructure:"CLOUDINARY_API_KEY"`
	CloudinarySecret string `mapstructure:"CLOUDINARY_API_SECRET"`

	// Deal sources.
	ScraperBaseURL     string        `mapstructure:"SCRAPER_BASE_URL"`
	Providers          []string      `mapstructure:"PROVIDERS"`
	ProviderTimeout    time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	AggregationTimeout time.Duration `mapstructure:"AGGREGATION_TIMEOUT"`

	// Exchange rates.
	RatesAPIURL          string        `mapstructure:"RATES_API_URL"`
	RatesBaseCurrency    string        `mapstructure:"RATES_BASE_CURRENCY"`
	RatesTimeout         time.Duration `mapstructure:"RATES_TIMEOUT"`
	RatesRefreshInterval time.Duration `mapstructure:"RATES_REFRESH_INTERVAL"`
	DefaultCurrency      string        `mapstructure:"DEFAULT_CURRENCY"`

	// Result cache.
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`
	CacheCapacity int           `mapstructure:"CACHE_CAPACITY"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`

	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	SessionIdleTTL    time.Duration `mapstructure:"SESSION_IDLE_TTL"`
}

var defaults = map[string]any{
	"HTTP_ADDR":              ":8080",
	"APP_NAME":               "travelaz",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "json",
	"FLUENTBIT_ENABLED":      false,
	"FLUENTBIT_HOST":         "localhost",
	"FLUENTBIT_PORT":         24224,
	"FLUENTBIT_LOG_LEVEL":    "info",
	"CATALOG_DRIVER":         "memory",
	"DATABASE_URL":           "",
	"MONGODB_URI":            "mongodb://localhost:27017",
	"MONGODB_DATABASE":       "travelaz",
	"MONGODB_COLLECTION":     "accommodations",
	"CATALOG_SEED_FILE":      "data/accommodations.json",
	"CLOUDINARY_CLOUD_NAME":  "",
	"CLOUDINARY_API_KEY":     "",
	"CLOUDINARY_API_SECRET":  "",
	"SCRAPER_BASE_URL":       "http://localhost:9001",
	"PROVIDERS":              "booking,trip",
	"PROVIDER_TIMEOUT":       "30s",
	"AGGREGATION_TIMEOUT":    "45s",
	"RATES_API_URL":          "https://api.exchangerate-api.com/v4",
	"RATES_BASE_CURRENCY":    "USD",
	"RATES_TIMEOUT":          "5s",
	"RATES_REFRESH_INTERVAL": "1h",
	"DEFAULT_CURRENCY":       "USD",
	"CACHE_TTL":              "5m",
	"CACHE_CAPACITY":         1000,
	"REDIS_ADDR":             "",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"RATE_LIMIT_REQUESTS":    30,
	"RATE_LIMIT_WINDOW":      "1m",
	"SESSION_IDLE_TTL":       "30m",
}

// Load reads configuration. Missing .env and config.yaml files are not errors.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.CatalogDriver = strings.ToLower(strings.TrimSpace(c.CatalogDriver))
	switch c.CatalogDriver {
	case "memory", "postgres", "mongo":
	default:
		return fmt.Errorf("invalid CATALOG_DRIVER %q", c.CatalogDriver)
	}
	if c.CatalogDriver == "postgres" && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the postgres catalog")
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "tint", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}

	var providers []string
	for _, p := range c.Providers {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			providers = append(providers, p)
		}
	}
	c.Providers = providers

	if c.ProviderTimeout <= 0 || c.AggregationTimeout <= 0 {
		return errors.New("provider and aggregation timeouts must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.SessionIdleTTL <= 0 {
		return errors.New("SESSION_IDLE_TTL must be positive")
	}
	c.DefaultCurrency = strings.ToUpper(c.DefaultCurrency)
	c.RatesBaseCurrency = strings.ToUpper(c.RatesBaseCurrency)
	return nil
}
