package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tathienbao/signal-bot/internal/types"
)

const validYAML = `
presets:
  path: presets.json

broker:
  type: ibkr
  host: 127.0.0.1
  port: 7497
  client_id: 1

webhook:
  port: 5000
  path: /webhook

telegram:
  enabled: true
  bot_token: test-token
  chat_id: "12345"

execution:
  quote_timeout_sec: 2
  connect_timeout_sec: 10

alerting:
  enabled: true
  channels:
    - type: telegram
      bot_token: test-token
      chat_id: "12345"
    - type: console

persistence:
  enabled: true
  path: audit.db

metrics:
  enabled: true
  port: 9090
  path: /metrics

shutdown:
  timeout_sec: 15
`

func TestLoadFromBytes_Valid(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}

	if cfg.Broker.Type != "ibkr" {
		t.Errorf("Broker.Type = %s, want ibkr", cfg.Broker.Type)
	}
	if cfg.Broker.Port != 7497 {
		t.Errorf("Broker.Port = %d, want 7497", cfg.Broker.Port)
	}
	if cfg.Webhook.Path != "/webhook" {
		t.Errorf("Webhook.Path = %s, want /webhook", cfg.Webhook.Path)
	}
	if cfg.QuoteTimeout() != 2*time.Second {
		t.Errorf("QuoteTimeout() = %v, want 2s", cfg.QuoteTimeout())
	}
	if len(cfg.Alerting.Channels) != 2 {
		t.Errorf("len(Alerting.Channels) = %d, want 2", len(cfg.Alerting.Channels))
	}
}

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("{}"))
	if err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}

	if cfg.Presets.Path != "presets.json" {
		t.Errorf("Presets.Path = %s, want presets.json", cfg.Presets.Path)
	}
	if cfg.Broker.Type != "paper" {
		t.Errorf("Broker.Type = %s, want paper", cfg.Broker.Type)
	}
	if cfg.Webhook.Port != 5000 {
		t.Errorf("Webhook.Port = %d, want 5000", cfg.Webhook.Port)
	}
	if cfg.Execution.QuoteTimeoutSec != 2 {
		t.Errorf("QuoteTimeoutSec = %d, want 2", cfg.Execution.QuoteTimeoutSec)
	}
	if cfg.ShutdownTimeout() != 15*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want 15s", cfg.ShutdownTimeout())
	}
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad broker type",
			yaml:    "broker:\n  type: robinhood\n",
			wantErr: "broker.type",
		},
		{
			name:    "telegram enabled without token",
			yaml:    "telegram:\n  enabled: true\n  chat_id: \"1\"\n",
			wantErr: "telegram.bot_token",
		},
		{
			name:    "telegram enabled without chat id",
			yaml:    "telegram:\n  enabled: true\n  bot_token: t\n",
			wantErr: "telegram.chat_id",
		},
		{
			name:    "persistence enabled without path",
			yaml:    "persistence:\n  enabled: true\n",
			wantErr: "persistence.path",
		},
		{
			name:    "unknown alert channel",
			yaml:    "alerting:\n  enabled: true\n  channels:\n    - type: pager\n",
			wantErr: "unknown type",
		},
		{
			name:    "telegram channel missing credentials",
			yaml:    "alerting:\n  enabled: true\n  channels:\n    - type: telegram\n",
			wantErr: "bot_token and chat_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			if err == nil {
				t.Fatal("LoadFromBytes() expected error, got nil")
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromBytes_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secret-token")

	yaml := `
telegram:
  enabled: true
  bot_token: ${TEST_BOT_TOKEN}
  chat_id: "99"
`
	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}
	if cfg.Telegram.BotToken != "secret-token" {
		t.Errorf("BotToken = %s, want secret-token", cfg.Telegram.BotToken)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Persistence.Path != "audit.db" {
		t.Errorf("Persistence.Path = %s, want audit.db", cfg.Persistence.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
