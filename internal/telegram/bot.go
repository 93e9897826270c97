// Package telegram runs the operator-facing bot: it long-polls the
// Telegram API and routes commands into the configuration dialogue.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tathienbao/signal-bot/internal/dialogue"
	"github.com/tathienbao/signal-bot/internal/preset"
)

// Config holds configuration for the bot.
type Config struct {
	BotToken string
	// PollTimeout is the long-poll wait passed to getUpdates.
	PollTimeout time.Duration

	// BaseURL overrides the Telegram API endpoint, used in tests.
	BaseURL string
}

// Bot polls for operator messages and replies.
type Bot struct {
	cfg     Config
	manager *dialogue.Manager
	store   *preset.Store
	logger  *slog.Logger
	client  *http.Client

	offset int64
}

// NewBot creates the bot.
func NewBot(cfg Config, manager *dialogue.Manager, store *preset.Store, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}

	return &Bot{
		cfg:     cfg,
		manager: manager,
		store:   store,
		logger:  logger,
		client: &http.Client{
			// Longer than the poll timeout so getUpdates can wait it out.
			Timeout: cfg.PollTimeout + 10*time.Second,
		},
	}
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Chat chat   `json:"chat"`
	Text string `json:"text"`
}

type chat struct {
	ID int64 `json:"id"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description,omitempty"`
	Result      []update `json:"result"`
}

// Run polls for updates until ctx is cancelled. Poll failures are
// logged and retried after a short pause.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram bot started", "poll_timeout", b.cfg.PollTimeout)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bot stopped")
			return ctx.Err()
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("telegram bot stopped")
				return ctx.Err()
			}
			b.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			reply := b.handleMessage(u.Message.Chat.ID, u.Message.Text)
			if reply == "" {
				continue
			}
			if err := b.sendMessage(ctx, u.Message.Chat.ID, reply); err != nil {
				b.logger.Error("send reply failed", "chat_id", u.Message.Chat.ID, "error", err)
			}
		}
	}
}

// handleMessage routes one inbound message and returns the reply, or ""
// when there is nothing to say.
func (b *Bot) handleMessage(chatID int64, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if !strings.HasPrefix(text, "/") {
		return b.manager.HandleText(chatID, text)
	}

	command := strings.Fields(text)[0]
	// Commands in groups arrive as /set@botname.
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}

	switch command {
	case "/set":
		return b.manager.Begin(chatID)
	case "/cancel":
		return b.manager.Cancel(chatID)
	case "/list":
		return dialogue.Summary(b.store)
	case "/start", "/help":
		return "Commands:\n/set – configure a ticker\n/list – show configured tickers\n/cancel – abort configuration"
	default:
		return "Unknown command. Use /set, /list or /cancel."
	}
}

// getUpdates long-polls the Telegram API for new messages.
func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(b.cfg.PollTimeout.Seconds())))
	q.Set("offset", strconv.FormatInt(b.offset, 10))

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", b.cfg.BaseURL, b.cfg.BotToken, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll updates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse updates: %w", err)
	}
	if !parsed.OK {
		return nil, errors.New("telegram API error: " + parsed.Description)
	}

	return parsed.Result, nil
}

// sendMessage posts a reply to a chat.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", b.cfg.BaseURL, b.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if !parsed.OK {
		return errors.New("telegram API error: " + parsed.Description)
	}

	return nil
}
