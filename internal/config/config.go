// Package config loads citypulse settings from an optional YAML file,
// .env files and environment variables. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/models"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	DispatcherLocal = "local"
	DispatcherRedis = "redis"
)

type Config struct {
	Firecrawl FirecrawlConfig `yaml:"firecrawl"`
	AI        AIConfig        `yaml:"ai"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Server    ServerConfig    `yaml:"server"`
	Log       logger.Config   `yaml:"log"`
}

type FirecrawlConfig struct {
	APIKey  string        `yaml:"api_key" env:"FIRECRAWL_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"FIRECRAWL_BASE_URL"`
	Limit   int           `yaml:"limit" env:"FIRECRAWL_LIMIT"`
	Recency string        `yaml:"recency" env:"FIRECRAWL_RECENCY"`
	Country string        `yaml:"country" env:"FIRECRAWL_COUNTRY"`
	Timeout time.Duration `yaml:"timeout" env:"FIRECRAWL_TIMEOUT"`
	Retries int           `yaml:"retries" env:"FIRECRAWL_RETRIES"`
}

type AIConfig struct {
	APIKey            string        `yaml:"api_key" env:"GROQ_API_KEY"`
	BaseURL           string        `yaml:"base_url" env:"AI_BASE_URL"`
	Model             string        `yaml:"model" env:"AI_MODEL"`
	MaxTokens         int           `yaml:"max_tokens" env:"AI_MAX_TOKENS"`
	Temperature       float64       `yaml:"temperature" env:"AI_TEMPERATURE"`
	Timeout           time.Duration `yaml:"timeout" env:"AI_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"AI_REQUESTS_PER_SECOND"`
	Retries           int           `yaml:"retries" env:"AI_RETRIES"`
}

type IngestConfig struct {
	Cities              []string      `yaml:"cities" env:"SUPPORTED_CITIES"`
	MaxItemsPerCategory int           `yaml:"max_items_per_category" env:"MAX_ITEMS_PER_CATEGORY"`
	ItemTimeout         time.Duration `yaml:"item_timeout" env:"INGEST_ITEM_TIMEOUT"`
	ParallelCategories  bool          `yaml:"parallel_categories" env:"INGEST_PARALLEL_CATEGORIES"`
	CityConcurrency     int           `yaml:"city_concurrency" env:"INGEST_CITY_CONCURRENCY"`
	Schedule            string        `yaml:"schedule" env:"INGEST_SCHEDULE"`
	Dispatcher          string        `yaml:"dispatcher" env:"DISPATCHER"`
}

type StoreConfig struct {
	Driver      string        `yaml:"driver" env:"STORE_DRIVER"`
	DatabaseURL string        `yaml:"database_url" env:"DATABASE_URL"`
	Retention   time.Duration `yaml:"retention" env:"CACHE_RETENTION"`
}

type RedisConfig struct {
	Address      string `yaml:"address" env:"REDIS_ADDRESS"`
	Password     string `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int    `yaml:"db" env:"REDIS_DB"`
	StreamPrefix string `yaml:"stream_prefix" env:"REDIS_STREAM_PREFIX"`
}

type TelegramConfig struct {
	Token      string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	WebhookURL string `yaml:"webhook_url" env:"TELEGRAM_WEBHOOK_URL"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"SERVER_PORT"`
}

// Load reads path (if it exists), fills defaults and applies env overrides.
// An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Default returns a config with every default applied. Fields where zero is
// a meaningful setting (retry counts, temperature) are only defaulted here,
// so a file or env value of 0 is kept.
func Default() *Config {
	c := &Config{}
	c.Firecrawl.Retries = 2
	c.AI.Temperature = 0.7
	c.AI.Retries = 2
	c.SetDefaults()
	return c
}

// SetDefaults fills fields left empty.
func (c *Config) SetDefaults() {
	if c.Firecrawl.BaseURL == "" {
		c.Firecrawl.BaseURL = "https://api.firecrawl.dev"
	}
	if c.Firecrawl.Limit <= 0 {
		c.Firecrawl.Limit = 10
	}
	if c.Firecrawl.Recency == "" {
		c.Firecrawl.Recency = "qdr:w"
	}
	if c.Firecrawl.Country == "" {
		c.Firecrawl.Country = "India"
	}
	if c.Firecrawl.Timeout <= 0 {
		c.Firecrawl.Timeout = 60 * time.Second
	}

	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.AI.Model == "" {
		c.AI.Model = "openai/gpt-oss-20b"
	}
	if c.AI.MaxTokens <= 0 {
		c.AI.MaxTokens = 400
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 30 * time.Second
	}
	if c.AI.RequestsPerSecond <= 0 {
		c.AI.RequestsPerSecond = 2
	}

	if len(c.Ingest.Cities) == 0 {
		c.Ingest.Cities = append([]string(nil), models.DefaultCities...)
	}
	if c.Ingest.MaxItemsPerCategory == 0 {
		c.Ingest.MaxItemsPerCategory = 5
	}
	if c.Ingest.ItemTimeout <= 0 {
		c.Ingest.ItemTimeout = 45 * time.Second
	}
	if c.Ingest.CityConcurrency <= 0 {
		c.Ingest.CityConcurrency = 4
	}
	if c.Ingest.Dispatcher == "" {
		c.Ingest.Dispatcher = DispatcherLocal
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Redis.StreamPrefix == "" {
		c.Redis.StreamPrefix = "citypulse"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Ingest.MaxItemsPerCategory <= 0 {
		return fmt.Errorf("ingest.max_items_per_category must be positive, got %d", c.Ingest.MaxItemsPerCategory)
	}
	if c.Firecrawl.Retries < 0 || c.AI.Retries < 0 {
		return errors.New("retry counts must not be negative")
	}
	if c.Firecrawl.Limit > 12 {
		return fmt.Errorf("firecrawl.limit must be at most 12, got %d", c.Firecrawl.Limit)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Ingest.Dispatcher {
	case DispatcherLocal:
	case DispatcherRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for the redis dispatcher")
		}
	default:
		return fmt.Errorf("unknown dispatcher %q", c.Ingest.Dispatcher)
	}
	return nil
}
