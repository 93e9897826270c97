// Package types defines shared types used across the trading bot.
package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the direction requested by an inbound signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction validates a raw action string from a signal payload.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	default:
		return "", false
	}
}

// Side is the direction of an order sent to the broker.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	// TIFGoodTillCancelled keeps the order working until filled or cancelled.
	TIFGoodTillCancelled TimeInForce = "GTC"
	// TIFDay expires the order at the end of the trading day.
	TIFDay TimeInForce = "DAY"
)

// Preset is the stored per-symbol trading configuration.
// A preset is either absent or fully populated; partial entries never persist.
type Preset struct {
	Symbol       string          `json:"-"`
	OrderSize    decimal.Decimal `json:"order_size"`
	MinProfitPct decimal.Decimal `json:"min_profit_pct"`
}

// Equal reports whether two presets hold the same values.
func (p Preset) Equal(other Preset) bool {
	return p.Symbol == other.Symbol &&
		p.OrderSize.Equal(other.OrderSize) &&
		p.MinProfitPct.Equal(other.MinProfitPct)
}

// NormalizeSymbol canonicalizes a ticker symbol for use as a preset key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Quote is a point-in-time price observation for a symbol.
// Last is the most recent trade price; Close is the prior session close.
// Either may be zero when the feed has nothing for it.
type Quote struct {
	Symbol    string
	Last      decimal.Decimal
	Close     decimal.Decimal
	Timestamp time.Time
}

// Price returns the usable price from a quote, preferring the last trade.
// The second return is false when neither price is available.
func (q Quote) Price() (decimal.Decimal, bool) {
	if q.Last.IsPositive() {
		return q.Last, true
	}
	if q.Close.IsPositive() {
		return q.Close, true
	}
	return decimal.Zero, false
}

// Position is an open brokerage position for a symbol.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// OrderInstruction is a fully specified order ready for submission.
type OrderInstruction struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	TimeInForce   TimeInForce
	OutsideRTH    bool
	CreatedAt     time.Time
}

// SkipReason explains why a decision resulted in no order.
type SkipReason string

const (
	SkipInsufficientFunds SkipReason = "insufficient funds"
	SkipZeroQuantity      SkipReason = "order size below one share"
	SkipNoPosition        SkipReason = "no position to sell"
	SkipBelowThreshold    SkipReason = "profit below threshold"
)

// OutcomeKind classifies the result of a dispatched signal.
type OutcomeKind int

const (
	OutcomeOrderPlaced OutcomeKind = iota
	OutcomeSkipped
	OutcomeNoOp
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOrderPlaced:
		return "order_placed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoOp:
		return "noop"
	default:
		return "unknown"
	}
}

// Outcome describes what happened to a dispatched signal.
// Order is set only when Kind is OutcomeOrderPlaced; Reason only otherwise.
type Outcome struct {
	Kind   OutcomeKind
	Action Action
	Symbol string
	Order  *OrderInstruction
	Reason SkipReason
}

// Status returns the signal-caller-facing status string for an outcome.
func (o Outcome) Status() string {
	if o.Kind == OutcomeOrderPlaced {
		switch o.Action {
		case ActionSell:
			return "sell order placed"
		default:
			return "buy order placed"
		}
	}
	return string(o.Reason)
}
