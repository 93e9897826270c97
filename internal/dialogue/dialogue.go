// Package dialogue implements the operator conversation that collects a
// trading preset: ticker, order size, then minimum profit percentage.
package dialogue

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/signal-bot/internal/types"
)

// Step identifies the current state of a configuration session.
type Step int

const (
	// StepAwaitingTicker is the initial state, waiting for a symbol.
	StepAwaitingTicker Step = iota
	// StepAwaitingSize waits for the order size in currency units.
	StepAwaitingSize
	// StepAwaitingProfit waits for the minimum profit percentage.
	StepAwaitingProfit
)

// String returns the string representation of the step.
func (s Step) String() string {
	switch s {
	case StepAwaitingTicker:
		return "awaiting_ticker"
	case StepAwaitingSize:
		return "awaiting_size"
	case StepAwaitingProfit:
		return "awaiting_profit"
	default:
		return "unknown"
	}
}

// Session holds the transient state of one operator's configuration
// conversation. It is discarded on completion or cancellation.
type Session struct {
	Step   Step
	Ticker string
	Size   decimal.Decimal
}

// Operator prompts, matching the messages the bot sends on Telegram.
const (
	PromptTicker     = "Enter the ticker symbol (e.g., AAPL):"
	PromptSize       = "Enter order size in USD (e.g., 500):"
	PromptProfit     = "Enter minimum profit percentage (e.g., 3.5):"
	MsgInvalidSize   = "Invalid size. Please enter a numeric value:"
	MsgInvalidProfit = "Invalid percentage. Enter a number:"
	MsgCancelled     = "Configuration cancelled."
	MsgNothingActive = "No configuration in progress."
)

// parseDecimal parses trimmed free-text operator input as a decimal.
func parseDecimal(text string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(text))
}

// buildPreset assembles the preset from a completed session.
func buildPreset(s *Session, profit decimal.Decimal) types.Preset {
	return types.Preset{
		Symbol:       s.Ticker,
		OrderSize:    s.Size,
		MinProfitPct: profit,
	}
}
