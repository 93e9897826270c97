// Package engine implements the order decision logic.
//
// The engine is pure: it looks at a DecisionContext assembled by the
// dispatcher and produces a Decision. All brokerage I/O happens before
// (fact gathering) or after (order submission) a call into this package.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/signal-bot/internal/types"
)

var hundred = decimal.NewFromInt(100)

// DecisionContext bundles the live facts one decision is made from.
// Preset must be the resolved preset for Symbol; Position is nil when the
// account holds nothing in the symbol.
type DecisionContext struct {
	Symbol      string
	Preset      types.Preset
	BuyingPower decimal.Decimal
	Position    *types.Position
	Quote       types.Quote
}

// Decision is the engine's verdict for one signal.
// When Outcome.Kind is OutcomeOrderPlaced, Outcome.Order carries the
// instruction for the dispatcher to execute.
type Decision struct {
	Outcome types.Outcome
}

// DecideBuy evaluates a buy signal against the decision context.
//
// Quantity is order size divided by price, rounded half away from zero to
// a whole number of shares (decimal.Round). A quantity of zero after
// rounding is reported as a skip, not an order for nothing.
func DecideBuy(dc DecisionContext) (Decision, error) {
	if dc.BuyingPower.LessThan(dc.Preset.OrderSize) {
		return skip(types.ActionBuy, dc.Symbol, types.SkipInsufficientFunds), nil
	}

	price, ok := dc.Quote.Price()
	if !ok {
		return Decision{}, fmt.Errorf("%w: no last or close price for %s", types.ErrPriceUnavailable, dc.Symbol)
	}

	quantity := dc.Preset.OrderSize.Div(price).Round(0)
	if !quantity.IsPositive() {
		return skip(types.ActionBuy, dc.Symbol, types.SkipZeroQuantity), nil
	}

	return place(types.ActionBuy, dc.Symbol, types.SideBuy, quantity, price), nil
}

// DecideSell evaluates a sell signal against the decision context.
//
// The unrealized gain is ((price - avgCost) / avgCost) * 100; the order
// covers the full held quantity when the gain meets the preset threshold.
func DecideSell(dc DecisionContext) (Decision, error) {
	if dc.Position == nil || !dc.Position.Quantity.IsPositive() {
		return noop(types.ActionSell, dc.Symbol, types.SkipNoPosition), nil
	}

	price, ok := dc.Quote.Price()
	if !ok {
		return Decision{}, fmt.Errorf("%w: no last or close price for %s", types.ErrPriceUnavailable, dc.Symbol)
	}

	if dc.Position.AvgCost.IsZero() {
		return Decision{}, fmt.Errorf("%w: %s", types.ErrInvalidPosition, dc.Symbol)
	}

	gainPct := price.Sub(dc.Position.AvgCost).
		Div(dc.Position.AvgCost).
		Mul(hundred)

	if gainPct.LessThan(dc.Preset.MinProfitPct) {
		return noop(types.ActionSell, dc.Symbol, types.SkipBelowThreshold), nil
	}

	return place(types.ActionSell, dc.Symbol, types.SideSell, dc.Position.Quantity, price), nil
}

func place(action types.Action, symbol string, side types.Side, quantity, price decimal.Decimal) Decision {
	return Decision{
		Outcome: types.Outcome{
			Kind:   types.OutcomeOrderPlaced,
			Action: action,
			Symbol: symbol,
			Order: &types.OrderInstruction{
				ClientOrderID: uuid.NewString(),
				Symbol:        symbol,
				Side:          side,
				Quantity:      quantity,
				LimitPrice:    price,
				TimeInForce:   types.TIFGoodTillCancelled,
				OutsideRTH:    true,
				CreatedAt:     time.Now(),
			},
		},
	}
}

func skip(action types.Action, symbol string, reason types.SkipReason) Decision {
	return Decision{
		Outcome: types.Outcome{
			Kind:   types.OutcomeSkipped,
			Action: action,
			Symbol: symbol,
			Reason: reason,
		},
	}
}

func noop(action types.Action, symbol string, reason types.SkipReason) Decision {
	return Decision{
		Outcome: types.Outcome{
			Kind:   types.OutcomeNoOp,
			Action: action,
			Symbol: symbol,
			Reason: reason,
		},
	}
}
