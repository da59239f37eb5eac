package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for reminders.timezone

	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/taskboard/internal/adapters/slack"
	"github.com/alekspetrov/taskboard/internal/logging"
)

// Store drivers.
const (
	DriverSQLite  = "sqlite"  // pure Go, modernc.org/sqlite
	DriverSQLite3 = "sqlite3" // cgo, mattn/go-sqlite3
	DriverFile    = "file"
	DriverRemote  = "remote"
)

// Config represents the main configuration
type Config struct {
	Version   string           `yaml:"version"`
	API       *APIConfig       `yaml:"api"`
	Store     *StoreConfig     `yaml:"store"`
	Slack     *slack.Config    `yaml:"slack"`
	LLM       *LLMConfig       `yaml:"llm"`
	Reminders *RemindersConfig `yaml:"reminders"`
	Redis     *RedisConfig     `yaml:"redis"`
	Health    *HealthConfig    `yaml:"health"`
	Logging   *logging.Config  `yaml:"logging"`
}

// APIConfig holds REST API settings
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is where users open the board; reminder buttons link here.
	PublicURL string `yaml:"public_url"`
}

// Addr returns host:port for the listener.
func (a *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// StoreConfig selects and configures the persistence engine
type StoreConfig struct {
	Driver  string        `yaml:"driver"`  // sqlite, sqlite3, file, remote
	Path    string        `yaml:"path"`    // database or JSON file
	URL     string        `yaml:"url"`     // REST API base for the remote driver
	Timeout time.Duration `yaml:"timeout"` // remote request timeout
}

// LLMConfig holds language model settings
type LLMConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RemindersConfig holds reminder pipeline settings
type RemindersConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	Timezone     string        `yaml:"timezone"` // IANA name, empty for local time
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// Location resolves Timezone.
func (r *RemindersConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

// RedisConfig enables cross-process reminder dedupe
type RedisConfig struct {
	URL       string        `yaml:"url"` // empty disables dedupe
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// HealthConfig holds bot health settings
type HealthConfig struct {
	Staleness time.Duration `yaml:"staleness"`
	// StatusFile is only needed when the bot and the API run as separate
	// processes; empty keeps status in memory.
	StatusFile string `yaml:"status_file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version: "1.0",
		API: &APIConfig{
			Host:      "127.0.0.1",
			Port:      3000,
			PublicURL: "http://localhost:3000",
		},
		Store: &StoreConfig{
			Driver:  DriverSQLite,
			Path:    filepath.Join(homeDir, ".taskboard", "taskboard.db"),
			URL:     "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Slack: slack.DefaultConfig(),
		LLM: &LLMConfig{
			Enabled: true,
			Model:   "claude-haiku-4-5-20251001",
			Timeout: 10 * time.Second,
		},
		Reminders: &RemindersConfig{
			Enabled:      true,
			Interval:     time.Minute,
			StoreTimeout: 10 * time.Second,
		},
		Redis: &RedisConfig{
			DedupeTTL: 7 * 24 * time.Hour,
		},
		Health: &HealthConfig{
			Staleness: 2 * time.Minute,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if len(data) > 0 {
		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.fillDefaults()
	config.applyEnv()

	// Expand paths
	config.Store.Path = expandPath(config.Store.Path)
	config.Health.StatusFile = expandPath(config.Health.StatusFile)
	if out := config.Logging.Output; out != "stdout" && out != "stderr" {
		config.Logging.Output = expandPath(out)
	}

	return config, nil
}

// fillDefaults restores sections a config file blanked with an explicit null.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.API == nil {
		c.API = def.API
	}
	if c.Store == nil {
		c.Store = def.Store
	}
	if c.Slack == nil {
		c.Slack = def.Slack
	}
	if c.Slack.RateLimit == nil {
		c.Slack.RateLimit = slack.DefaultRateLimitConfig()
	}
	if c.LLM == nil {
		c.LLM = def.LLM
	}
	if c.Reminders == nil {
		c.Reminders = def.Reminders
	}
	if c.Redis == nil {
		c.Redis = def.Redis
	}
	if c.Health == nil {
		c.Health = def.Health
	}
	if c.Logging == nil {
		c.Logging = def.Logging
	}
}

// applyEnv fills secrets that are conventionally kept in the environment.
func (c *Config) applyEnv() {
	setFromEnv(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	setFromEnv(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	setFromEnv(&c.Slack.AppToken, "SLACK_APP_TOKEN")
	setFromEnv(&c.Slack.RemindersChannel, "SLACK_REMINDERS_CHANNEL")
}

func setFromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

// Save writes configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns ~/.taskboard/config.yaml
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".taskboard", "config.yaml")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}
	if c.API.PublicURL != "" {
		if _, err := url.ParseRequestURI(c.API.PublicURL); err != nil {
			return fmt.Errorf("invalid api public_url %q: %w", c.API.PublicURL, err)
		}
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverSQLite3, DriverFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for driver %q", c.Store.Driver)
		}
	case DriverRemote:
		if c.Store.URL == "" {
			return fmt.Errorf("store url is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite, sqlite3, file or remote)", c.Store.Driver)
	}

	if c.Reminders.Enabled && c.Reminders.Interval < time.Second {
		return fmt.Errorf("reminders interval must be at least 1s, got %s", c.Reminders.Interval)
	}
	if _, err := c.Reminders.Location(); err != nil {
		return fmt.Errorf("invalid reminders timezone %q: %w", c.Reminders.Timezone, err)
	}

	if c.Slack.Enabled && c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot_token is required when slack is enabled")
	}
	if c.Health.Staleness <= 0 {
		return fmt.Errorf("health staleness must be positive")
	}
	return nil
}
