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

// Config represents the complete application configuration
type Config struct {
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Cue      CueConfig      `mapstructure:"cue"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AnalyzerConfig holds the tick-analyzer backend settings
type AnalyzerConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// AlertsConfig holds alert engine and notification panel settings
type AlertsConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	CueInterval     time.Duration  `mapstructure:"cue_interval"`
	NotificationTTL time.Duration  `mapstructure:"notification_ttl"`
	CleanupInterval time.Duration  `mapstructure:"cleanup_interval"`
	OpportunityRate float64        `mapstructure:"opportunity_rate"`
	WarningRate     float64        `mapstructure:"warning_rate"`
	MinEntries      int            `mapstructure:"min_entries"`
	Rules           map[string]int `mapstructure:"rules"`         // group -> loss threshold; empty = built-in table
	SystemGroups    []string       `mapstructure:"system_groups"` // empty = built-in set
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	AutoDelete     time.Duration `mapstructure:"auto_delete"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// CueConfig selects how the audio cue is played
type CueConfig struct {
	Player  string   `mapstructure:"player"` // bell, command or none
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	WAVPath string   `mapstructure:"wav_path"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxEvents int    `mapstructure:"max_events"`
	DBPath    string `mapstructure:"db_path"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RedisConfig holds the alert fan-out configuration
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file and
// environment variables. An empty path uses defaults and environment only.
// A missing .env file is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	setDefaults(v)

	// DERIVWATCH_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("DERIVWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Analyzer defaults
	v.SetDefault("analyzer.base_url", "http://localhost:5000/api")
	v.SetDefault("analyzer.poll_interval", "1s")
	v.SetDefault("analyzer.timeout", "5s")
	v.SetDefault("analyzer.max_retries", 3)
	v.SetDefault("analyzer.retry_delay_base", "200ms")
	v.SetDefault("analyzer.max_idle_conns", 10)
	v.SetDefault("analyzer.max_idle_conns_per_host", 5)
	v.SetDefault("analyzer.idle_conn_timeout", "90s")

	// Alert defaults
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.cue_interval", "1500ms")
	v.SetDefault("alerts.notification_ttl", "30s")
	v.SetDefault("alerts.cleanup_interval", "5s")
	v.SetDefault("alerts.opportunity_rate", 70.0)
	v.SetDefault("alerts.warning_rate", 30.0)
	v.SetDefault("alerts.min_entries", 10)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.auto_delete", "10s")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Cue defaults
	v.SetDefault("cue.player", "bell")
	v.SetDefault("cue.command", "aplay")
	v.SetDefault("cue.wav_path", "")

	// Storage defaults
	v.SetDefault("storage.max_events", 1000)
	v.SetDefault("storage.db_path", "./data/derivwatch.db")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "derivwatch_alerts")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Analyzer config
	if c.Analyzer.BaseURL == "" {
		return fmt.Errorf("analyzer.base_url is required")
	}
	if c.Analyzer.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("analyzer.poll_interval must be at least 100ms")
	}
	if c.Analyzer.Timeout <= 0 {
		return fmt.Errorf("analyzer.timeout must be positive")
	}
	if c.Analyzer.MaxRetries < 1 {
		return fmt.Errorf("analyzer.max_retries must be at least 1")
	}

	// Validate Alerts config
	if c.Alerts.CueInterval <= 0 {
		return fmt.Errorf("alerts.cue_interval must be positive")
	}
	if c.Alerts.NotificationTTL <= 0 {
		return fmt.Errorf("alerts.notification_ttl must be positive")
	}
	if c.Alerts.CleanupInterval <= 0 {
		return fmt.Errorf("alerts.cleanup_interval must be positive")
	}
	if c.Alerts.OpportunityRate < 0 || c.Alerts.OpportunityRate > 100 {
		return fmt.Errorf("alerts.opportunity_rate must be between 0 and 100")
	}
	if c.Alerts.WarningRate < 0 || c.Alerts.WarningRate > 100 {
		return fmt.Errorf("alerts.warning_rate must be between 0 and 100")
	}
	if c.Alerts.WarningRate >= c.Alerts.OpportunityRate {
		return fmt.Errorf("alerts.warning_rate must be below alerts.opportunity_rate")
	}
	if c.Alerts.MinEntries < 0 {
		return fmt.Errorf("alerts.min_entries must not be negative")
	}
	for group, threshold := range c.Alerts.Rules {
		if threshold < 0 {
			return fmt.Errorf("alerts.rules.%s must not be negative", group)
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Cue config
	switch c.Cue.Player {
	case "bell", "none":
	case "command":
		if c.Cue.Command == "" {
			return fmt.Errorf("cue.command is required when cue.player is command")
		}
	default:
		return fmt.Errorf("cue.player must be one of: bell, command, none")
	}

	// Validate Storage config
	if c.Storage.MaxEvents < 1 {
		return fmt.Errorf("storage.max_events must be at least 1")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
