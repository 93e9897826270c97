// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tathienbao/signal-bot/internal/types"
	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration.
type Config struct {
	Presets     PresetsConfig     `yaml:"presets"`
	Broker      BrokerConfig      `yaml:"broker"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
}

// PresetsConfig holds preset store settings.
type PresetsConfig struct {
	Path string `yaml:"path"`
}

// BrokerConfig holds broker connection settings.
type BrokerConfig struct {
	Type     string `yaml:"type"` // ibkr | paper
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID int    `yaml:"client_id"`
}

// WebhookConfig holds signal endpoint settings.
type WebhookConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// ExecutionConfig holds dispatch timing settings.
type ExecutionConfig struct {
	QuoteTimeoutSec   int `yaml:"quote_timeout_sec"`
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig holds a single alert channel configuration.
type ChannelConfig struct {
	Type     string `yaml:"type"` // telegram | console
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// PersistenceConfig holds audit log settings.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ShutdownConfig holds shutdown settings.
type ShutdownConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	var errs []string

	if c.Presets.Path == "" {
		c.Presets.Path = "presets.json"
	}

	switch c.Broker.Type {
	case "":
		c.Broker.Type = "paper"
	case "ibkr", "paper":
	default:
		errs = append(errs, fmt.Sprintf("broker.type '%s' must be 'ibkr' or 'paper'", c.Broker.Type))
	}
	if c.Broker.Type == "ibkr" {
		if c.Broker.Host == "" {
			c.Broker.Host = "127.0.0.1"
		}
		if c.Broker.Port == 0 {
			c.Broker.Port = 7497 // TWS paper port
		}
		if c.Broker.ClientID == 0 {
			c.Broker.ClientID = 1
		}
	}

	if c.Webhook.Port == 0 {
		c.Webhook.Port = 5000
	}
	if c.Webhook.Port < 0 || c.Webhook.Port > 65535 {
		errs = append(errs, "webhook.port must be a valid TCP port")
	}
	if c.Webhook.Path == "" {
		c.Webhook.Path = "/webhook"
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			errs = append(errs, "telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			errs = append(errs, "telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Execution.QuoteTimeoutSec <= 0 {
		c.Execution.QuoteTimeoutSec = 2 // matches the short snapshot wait
	}
	if c.Execution.ConnectTimeoutSec <= 0 {
		c.Execution.ConnectTimeoutSec = 10
	}

	if c.Alerting.Enabled {
		for i, ch := range c.Alerting.Channels {
			switch ch.Type {
			case "telegram":
				if ch.BotToken == "" || ch.ChatID == "" {
					errs = append(errs, fmt.Sprintf("alerting.channels[%d]: telegram channel needs bot_token and chat_id", i))
				}
			case "console":
			default:
				errs = append(errs, fmt.Sprintf("alerting.channels[%d]: unknown type '%s'", i, ch.Type))
			}
		}
	}

	if c.Persistence.Enabled && c.Persistence.Path == "" {
		errs = append(errs, "persistence.path is required when persistence is enabled")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port == 0 {
			c.Metrics.Port = 9090
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
	}

	if c.Shutdown.TimeoutSec <= 0 {
		c.Shutdown.TimeoutSec = 15
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// QuoteTimeout returns the maximum wait for a price quote.
func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Execution.QuoteTimeoutSec) * time.Second
}

// ConnectTimeout returns the broker connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Execution.ConnectTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSec) * time.Second
}
