package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Sternrassler/closecrm-client/pkg/batch"
	"github.com/Sternrassler/closecrm-client/pkg/client"
	"github.com/Sternrassler/closecrm-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environment variables overlaid on the config file.
const (
	EnvAPIKey   = "CLOSE_API_KEY"
	EnvBaseURL  = "CLOSE_BASE_URL"
	EnvRedisURL = "REDIS_URL"
)

// Config is the CLI configuration file.
type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	Redis struct {
		URL      string        `yaml:"url"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`

	Batch struct {
		Concurrency     int           `yaml:"concurrency"`
		Delay           time.Duration `yaml:"delay"`
		ContinueOnError bool          `yaml:"continue_on_error"`
	} `yaml:"batch"`

	Log logging.Config `yaml:"log"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	clientDefaults := client.DefaultConfig("")
	batchDefaults := batch.DefaultConfig()

	cfg := &Config{
		BaseURL:    clientDefaults.BaseURL,
		UserAgent:  "closecrm-cli/1.0",
		Timeout:    clientDefaults.Timeout,
		MaxRetries: clientDefaults.MaxRetries,
		RetryDelay: clientDefaults.RetryDelay,
		Log:        logging.Config{Level: logging.LevelInfo},
	}
	cfg.Redis.CacheTTL = clientDefaults.CacheTTL
	cfg.Batch.Concurrency = batchDefaults.Concurrency
	cfg.Batch.Delay = batchDefaults.Delay
	return cfg
}

// LoadConfig reads path over the defaults and applies the environment.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
}

// Validate reports settings the client would reject.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required (set api_key or %s)", EnvAPIKey)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be >= 1 (got %d)", c.Batch.Concurrency)
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("batch.delay must be >= 0 (got %s)", c.Batch.Delay)
	}
	if _, err := logging.ParseLevel(string(c.Log.Level)); err != nil {
		return err
	}
	return nil
}

// RedisClient connects to the configured Redis, or returns nil when none is set.
func (c *Config) RedisClient() (*redis.Client, error) {
	if c.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// ClientConfig maps the file settings onto a client configuration.
func (c *Config) ClientConfig(redisClient *redis.Client) client.Config {
	return client.Config{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		UserAgent:  c.UserAgent,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
		Redis:      redisClient,
		CacheTTL:   c.Redis.CacheTTL,
	}
}

// BatchConfig maps the file settings onto a batch configuration.
func (c *Config) BatchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.Concurrency = c.Batch.Concurrency
	cfg.Delay = c.Batch.Delay
	cfg.ContinueOnError = c.Batch.ContinueOnError
	return cfg
}
