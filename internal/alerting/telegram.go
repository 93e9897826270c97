package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramConfig holds configuration for the Telegram alerter.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Timeout  time.Duration

	// BaseURL overrides the Telegram API endpoint, used in tests.
	BaseURL string
}

// TelegramAlerter sends alerts via the Telegram Bot API.
type TelegramAlerter struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramAlerter creates a new Telegram alerter.
func NewTelegramAlerter(cfg TelegramConfig) *TelegramAlerter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}

	return &TelegramAlerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the name of the alerter.
func (t *TelegramAlerter) Name() string {
	return "telegram"
}

// telegramMessage represents the Telegram API message format.
type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// telegramResponse represents the Telegram API response.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Alert sends an alert via Telegram.
func (t *TelegramAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	text := t.formatMessage(severity, message, fields...)

	msg := telegramMessage{
		ChatID:    t.cfg.ChatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.BaseURL, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var telegramResp telegramResponse
	if err := json.Unmarshal(respBody, &telegramResp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	return nil
}

// formatMessage formats the alert message for Telegram.
func (t *TelegramAlerter) formatMessage(severity Severity, message string, fields ...any) string {
	text := fmt.Sprintf("%s <b>[%s]</b>\n%s", severity.Emoji(), severity.String(), message)

	if len(fields) > 0 {
		fieldsStr := FormatFields(fields...)
		if fieldsStr != "" {
			text += "\n\n" + fieldsStr
		}
	}

	text += fmt.Sprintf("\n\n<i>%s</i>", time.Now().Format("2006-01-02 15:04:05 MST"))

	return text
}
