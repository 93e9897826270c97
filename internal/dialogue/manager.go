package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/signal-bot/internal/alerting"
	"github.com/tathienbao/signal-bot/internal/preset"
	"github.com/tathienbao/signal-bot/internal/types"
)

// Manager tracks configuration sessions keyed by operator ID. Each
// operator has at most one session; beginning a new one discards any
// prior incomplete state for that operator.
type Manager struct {
	store   *preset.Store
	alerter alerting.Alerter
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager creates a session manager backed by the given preset store.
// A nil alerter disables preset-saved notifications.
func NewManager(store *preset.Store, alerter alerting.Alerter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		alerter:  alerter,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

// Begin starts a fresh session for the operator and returns the first
// prompt. Any existing session for the operator is overwritten.
func (m *Manager) Begin(operatorID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[operatorID] = &Session{Step: StepAwaitingTicker}
	m.logger.Info("configuration started", "operator", operatorID)
	return PromptTicker
}

// Cancel discards the operator's session, if any, and returns the
// acknowledgment to send back.
func (m *Manager) Cancel(operatorID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[operatorID]; !ok {
		return MsgNothingActive
	}
	delete(m.sessions, operatorID)
	m.logger.Info("configuration cancelled", "operator", operatorID)
	return MsgCancelled
}

// Active reports whether the operator has a session in progress.
func (m *Manager) Active(operatorID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[operatorID]
	return ok
}

// ActiveCount returns the number of sessions in progress.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleText advances the operator's session with a free-text input and
// returns the reply to send. Returns "" when the operator has no session
// in progress, so plain chatter outside a conversation is ignored.
// Invalid numeric input re-prompts without leaving the current step.
func (m *Manager) HandleText(operatorID int64, text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[operatorID]
	if !ok {
		return ""
	}

	switch session.Step {
	case StepAwaitingTicker:
		ticker := types.NormalizeSymbol(text)
		if ticker == "" {
			return PromptTicker
		}
		session.Ticker = ticker
		session.Step = StepAwaitingSize
		return PromptSize

	case StepAwaitingSize:
		size, err := parseDecimal(text)
		if err != nil || !size.IsPositive() {
			return MsgInvalidSize
		}
		session.Size = size
		session.Step = StepAwaitingProfit
		return PromptProfit

	case StepAwaitingProfit:
		profit, err := parseDecimal(text)
		if err != nil {
			return MsgInvalidProfit
		}
		return m.complete(operatorID, session, profit)

	default:
		delete(m.sessions, operatorID)
		return ""
	}
}

// complete saves the collected preset and ends the session. On a flush
// failure the session stays in AwaitingProfit so the operator can retry
// by re-entering the profit value. Caller holds m.mu.
func (m *Manager) complete(operatorID int64, session *Session, profit decimal.Decimal) string {
	p := buildPreset(session, profit)

	if err := m.store.Put(p); err != nil {
		m.logger.Error("preset save failed",
			"operator", operatorID,
			"symbol", session.Ticker,
			"error", err,
		)
		return fmt.Sprintf("⚠️ Failed to save config for %s. Enter the profit percentage again to retry:", session.Ticker)
	}

	delete(m.sessions, operatorID)
	m.logger.Info("preset saved",
		"operator", operatorID,
		"symbol", session.Ticker,
		"order_size", p.OrderSize.String(),
		"min_profit_pct", p.MinProfitPct.String(),
	)
	m.notifySaved(p)
	return fmt.Sprintf("✅ Config saved for %s:\nOrder Size: $%s\nMin Profit: %s%%",
		session.Ticker, p.OrderSize.String(), p.MinProfitPct.String())
}

// notifySaved reports a completed configuration on the alerting
// channels without blocking the conversation.
func (m *Manager) notifySaved(p types.Preset) {
	if m.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := m.alerter.Alert(ctx, alerting.EventSeverity(alerting.EventPresetSaved),
			fmt.Sprintf("Preset saved for %s", p.Symbol),
			"order_size", p.OrderSize.String(),
			"min_profit_pct", p.MinProfitPct.String(),
		)
		if err != nil {
			m.logger.Error("preset notification failed", "symbol", p.Symbol, "error", err)
		}
	}()
}

// Summary formats the configured presets for the /list command.
func Summary(store *preset.Store) string {
	symbols := store.Symbols()
	if len(symbols) == 0 {
		return "No presets configured. Use /set to add one."
	}

	var b strings.Builder
	b.WriteString("Configured presets:\n")
	for _, sym := range symbols {
		p, _ := store.Get(sym)
		fmt.Fprintf(&b, "• %s: size $%s, min profit %s%%\n", sym, p.OrderSize.String(), p.MinProfitPct.String())
	}
	return strings.TrimRight(b.String(), "\n")
}
