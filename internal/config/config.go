package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/cadence/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Queue      QueueConfig      `yaml:"queue"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Auth       AuthConfig       `yaml:"auth"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// Path is the sqlite file when Type is "sqlite"
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	Interval    string `yaml:"interval"`
	Enabled     *bool  `yaml:"enabled"`
	HorizonDays int    `yaml:"horizon_days"`
	AutoRetry   bool   `yaml:"auto_retry"`
}

type QueueConfig struct {
	Timezone    string      `yaml:"timezone"`
	Concurrency int         `yaml:"concurrency"`
	Retry       RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts *int    `yaml:"max_attempts"` // 0 means unlimited
	BaseBackoff string  `yaml:"base_backoff"`
	MaxBackoff  string  `yaml:"max_backoff"`
	Multiplier  float64 `yaml:"multiplier"`
}

type PublisherConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	DryRun  DryRunConfig  `yaml:"dry_run"`
}

type WebhookConfig struct {
	Enabled   bool     `yaml:"enabled"`
	URL       string   `yaml:"url"`
	RetryURL  string   `yaml:"retry_url"`
	Token     string   `yaml:"token"`
	Timeout   string   `yaml:"timeout"`
	Platforms []string `yaml:"platforms"`
}

// DryRunConfig routes platforms to a publisher that only logs.
type DryRunConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Platforms []string `yaml:"platforms"`
}

type MonitoringConfig struct {
	StatsInterval string `yaml:"stats_interval"`
	RetentionDays int    `yaml:"retention_days"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills zero values. It is exported so tests and the CLI can build configs in code.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "cadence.db"
	}
	if cfg.Scheduler.Interval == "" {
		cfg.Scheduler.Interval = "1m"
	}
	if cfg.Scheduler.Enabled == nil {
		enabled := true
		cfg.Scheduler.Enabled = &enabled
	}
	if cfg.Scheduler.HorizonDays == 0 {
		cfg.Scheduler.HorizonDays = 7
	}
	if cfg.Queue.Timezone == "" {
		cfg.Queue.Timezone = "UTC"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.Retry.MaxAttempts == nil {
		maxAttempts := 5
		cfg.Queue.Retry.MaxAttempts = &maxAttempts
	}
	if cfg.Queue.Retry.BaseBackoff == "" {
		cfg.Queue.Retry.BaseBackoff = "30s"
	}
	if cfg.Queue.Retry.MaxBackoff == "" {
		cfg.Queue.Retry.MaxBackoff = "30m"
	}
	if cfg.Queue.Retry.Multiplier == 0 {
		cfg.Queue.Retry.Multiplier = 2
	}
	if cfg.Publisher.Webhook.Timeout == "" {
		cfg.Publisher.Webhook.Timeout = "30s"
	}
	if cfg.Monitoring.StatsInterval == "" {
		cfg.Monitoring.StatsInterval = "1h"
	}
	if cfg.Monitoring.RetentionDays == 0 {
		cfg.Monitoring.RetentionDays = 90
	}
}

// Validate rejects settings that would only fail later at runtime.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"scheduler.interval":        c.Scheduler.Interval,
		"queue.retry.base_backoff":  c.Queue.Retry.BaseBackoff,
		"queue.retry.max_backoff":   c.Queue.Retry.MaxBackoff,
		"publisher.webhook.timeout": c.Publisher.Webhook.Timeout,
		"monitoring.stats_interval": c.Monitoring.StatsInterval,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	if c.Queue.Retry.MaxAttempts != nil && *c.Queue.Retry.MaxAttempts < 0 {
		return fmt.Errorf("invalid queue.retry.max_attempts %d", *c.Queue.Retry.MaxAttempts)
	}

	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Publisher.Webhook.Enabled && c.Publisher.Webhook.URL == "" {
		return fmt.Errorf("publisher.webhook.url is required when the webhook publisher is enabled")
	}

	return nil
}

// Duration parses a value already checked by Validate.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
