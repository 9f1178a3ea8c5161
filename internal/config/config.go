// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spadesk/internal/db"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Address        string  `yaml:"address"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		ToggleTTLHours int    `yaml:"toggle_ttl_hours"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Telegram struct {
		BotToken       string  `yaml:"bot_token"`
		Debug          bool    `yaml:"debug"`
		ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	} `yaml:"telegram"`

	Import struct {
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		Range           string `yaml:"range"`
	} `yaml:"import"`

	Booking struct {
		RetryAttempts      int    `yaml:"retry_attempts"`
		PublishWithoutMeta string `yaml:"publish_without_meta"`
	} `yaml:"booking"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Staff []string `yaml:"staff"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 20
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 40
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/spadesk.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.RetryAttempts <= 0 {
		c.Booking.RetryAttempts = db.DefaultRetryAttempts
	}
	if c.Booking.PublishWithoutMeta == "" {
		c.Booking.PublishWithoutMeta = "month_start"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
	if c.Import.Range == "" {
		c.Import.Range = "A2:J"
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Booking.PublishWithoutMeta {
	case "month_start", "abort":
	default:
		return fmt.Errorf("booking.publish_without_meta must be month_start or abort, got %q", c.Booking.PublishWithoutMeta)
	}
	if c.Import.SpreadsheetID != "" && c.Import.CredentialsFile == "" {
		return fmt.Errorf("import.credentials_file is required with import.spreadsheet_id")
	}
	return nil
}

// BackupConfig converts the backup section for db.NewBackupService.
func (c *Config) BackupConfig() db.BackupConfig {
	interval := time.Duration(c.Backup.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return db.BackupConfig{
		Enabled:       c.Backup.Enabled,
		Interval:      interval,
		StoragePath:   c.Backup.Path,
		RetentionDays: c.Backup.RetentionDays,
	}
}

func (c *Config) ToggleTTL() time.Duration {
	if c.Redis.ToggleTTLHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(c.Redis.ToggleTTLHours) * time.Hour
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

// TelegramEnabled reports whether a real bot token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.BotToken != "YOUR_BOT_TOKEN_HERE"
}
