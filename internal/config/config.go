package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Bitrix        BitrixConfig        `toml:"bitrix"`
	Roster        RosterConfig        `toml:"roster"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
}

// BitrixConfig holds Bitrix24 REST API settings
type BitrixConfig struct {
	// WebhookBase is the webhook base URL, e.g.
	// https://example.bitrix24.com.br/rest/1/token/
	// The BITRIX_WEBHOOK_BASE environment variable takes precedence.
	WebhookBase string `toml:"webhook_base"`
	// PageSize is the pagination size for tasks.task.list
	PageSize int `toml:"page_size"`
	// BatchSize is the maximum number of commands per batch request
	BatchSize int `toml:"batch_size"`
	// MaxRetries is the retry ceiling for transient transport faults
	MaxRetries int `toml:"max_retries"`
	// RetryBackoffSeconds is the base delay for exponential backoff
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	// RequestTimeoutSeconds bounds a single GET request
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	// DefaultTimezone is appended to date filters lacking an offset
	DefaultTimezone string `toml:"default_timezone"`
	// IndividualTimeEntries forces per-task time entry requests instead of
	// the batch endpoint. Some webhook permission setups only expose
	// elapsed items through direct calls.
	IndividualTimeEntries bool `toml:"individual_time_entries"`
}

// RosterConfig holds collaborator roster settings
type RosterConfig struct {
	Path string `toml:"path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".bitrix-exporter", "exports.db"),
		},
		Bitrix: BitrixConfig{
			PageSize:              50,
			BatchSize:             50,
			MaxRetries:            3,
			RetryBackoffSeconds:   1,
			RequestTimeoutSeconds: 30,
			DefaultTimezone:       "-03:00",
		},
		Roster: RosterConfig{
			Path: filepath.Join(home, ".bitrix-exporter", "roster.yaml"),
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// The BITRIX_WEBHOOK_BASE environment variable overrides the file value.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if env := strings.TrimSpace(os.Getenv("BITRIX_WEBHOOK_BASE")); env != "" {
		cfg.Bitrix.WebhookBase = env
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Roster.Path = ExpandPath(cfg.Roster.Path)

	return cfg, nil
}

// Validate checks the preconditions that must hold before any network
// activity starts
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.Bitrix.WebhookBase)
	if base == "" {
		return fmt.Errorf("bitrix webhook base not configured: set bitrix.webhook_base or BITRIX_WEBHOOK_BASE")
	}
	if !strings.HasPrefix(base, "http") {
		return fmt.Errorf("bitrix webhook base must be a URL, got %q", base)
	}
	if c.Bitrix.PageSize <= 0 {
		return fmt.Errorf("bitrix page_size must be positive")
	}
	if c.Bitrix.BatchSize <= 0 {
		return fmt.Errorf("bitrix batch_size must be positive")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bitrix-exporter", "config.toml")
}
