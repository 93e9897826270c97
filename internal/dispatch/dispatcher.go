// Package dispatch routes inbound trading signals to the decision engine
// and executes the resulting decisions against the broker.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/signal-bot/internal/alerting"
	"github.com/tathienbao/signal-bot/internal/broker"
	"github.com/tathienbao/signal-bot/internal/engine"
	"github.com/tathienbao/signal-bot/internal/metrics"
	"github.com/tathienbao/signal-bot/internal/persistence"
	"github.com/tathienbao/signal-bot/internal/preset"
	"github.com/tathienbao/signal-bot/internal/types"
)

const defaultQuoteTimeout = 2 * time.Second

// Options configures optional dispatcher collaborators. Alerter and
// Audit may be nil; dispatch proceeds without them.
type Options struct {
	Alerter      alerting.Alerter
	Audit        persistence.AuditLog
	Recorder     *metrics.Recorder
	Logger       *slog.Logger
	QuoteTimeout time.Duration
}

// Dispatcher handles one signal end to end: resolve the preset, gather
// live facts from the broker, invoke the decision engine, and execute
// the decision.
type Dispatcher struct {
	store        *preset.Store
	gateway      broker.Gateway
	alerter      alerting.Alerter
	audit        persistence.AuditLog
	recorder     *metrics.Recorder
	logger       *slog.Logger
	quoteTimeout time.Duration
}

// New creates a dispatcher.
func New(store *preset.Store, gateway broker.Gateway, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NewRecorder()
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = defaultQuoteTimeout
	}

	return &Dispatcher{
		store:        store,
		gateway:      gateway,
		alerter:      opts.Alerter,
		audit:        opts.Audit,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		quoteTimeout: opts.QuoteTimeout,
	}
}

// Dispatch handles one inbound signal. The returned Outcome describes
// what happened; a non-nil error means the signal could not be decided
// (bad input, unconfigured symbol, broker failure).
//
// Signals for unconfigured symbols are rejected before any broker call
// is made. Two concurrent signals for the same symbol may both place
// orders; the client order ID on each instruction is the hook for
// broker-side idempotency.
func (d *Dispatcher) Dispatch(ctx context.Context, rawAction, rawTicker string) (types.Outcome, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDispatch()

	action, ok := types.ParseAction(rawAction)
	if !ok {
		err := fmt.Errorf("%w: %q", types.ErrUnknownAction, rawAction)
		d.recorder.RecordError("unknown_action")
		d.record(ctx, "invalid", types.NormalizeSymbol(rawTicker), types.Outcome{}, err)
		return types.Outcome{}, err
	}

	symbol := types.NormalizeSymbol(rawTicker)
	p, ok := d.store.Get(symbol)
	if !ok {
		err := fmt.Errorf("%w: %s", types.ErrSymbolNotConfigured, symbol)
		d.recorder.RecordError("symbol_not_configured")
		d.record(ctx, action, symbol, types.Outcome{}, err)
		return types.Outcome{}, err
	}

	if err := d.gateway.Connect(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		d.recorder.RecordBrokerStatus(false)
		d.recorder.RecordError("broker_unavailable")
		d.record(ctx, action, symbol, types.Outcome{}, wrapped)
		d.notify(alerting.EventBrokerLost, fmt.Sprintf("Broker unreachable, %s signal for %s dropped", action, symbol))
		return types.Outcome{}, wrapped
	}
	d.recorder.RecordBrokerStatus(true)

	outcome, err := d.decide(ctx, action, symbol, p)
	d.record(ctx, action, symbol, outcome, err)
	if err != nil {
		return types.Outcome{}, err
	}

	d.logger.Info("signal dispatched",
		"action", string(action),
		"symbol", symbol,
		"outcome", outcome.Kind.String(),
		"status", outcome.Status(),
	)
	return outcome, nil
}

// decide gathers facts, invokes the engine, and executes the decision.
func (d *Dispatcher) decide(ctx context.Context, action types.Action, symbol string, p types.Preset) (types.Outcome, error) {
	dc := engine.DecisionContext{Symbol: symbol, Preset: p}

	var decision engine.Decision
	var err error

	switch action {
	case types.ActionSell:
		dc.Position, err = d.fetchPosition(ctx, symbol)
		if err != nil {
			return types.Outcome{}, err
		}
		// Only pay for a quote when there is something to sell.
		if dc.Position != nil {
			if dc.Quote, err = d.fetchQuote(ctx, symbol); err != nil {
				return types.Outcome{}, err
			}
		}
		decision, err = engine.DecideSell(dc)

	default:
		dc.BuyingPower, err = d.fetchBuyingPower(ctx)
		if err != nil {
			return types.Outcome{}, err
		}
		// Skip the quote wait when funds already rule the order out.
		if !dc.BuyingPower.LessThan(p.OrderSize) {
			if dc.Quote, err = d.fetchQuote(ctx, symbol); err != nil {
				return types.Outcome{}, err
			}
		}
		decision, err = engine.DecideBuy(dc)
	}

	if err != nil {
		d.recorder.RecordError("decision_failed")
		return types.Outcome{}, err
	}

	outcome := decision.Outcome
	if outcome.Kind == types.OutcomeOrderPlaced {
		if err := d.execute(ctx, &outcome); err != nil {
			return types.Outcome{}, err
		}
	} else if outcome.Reason == types.SkipInsufficientFunds {
		d.notify(alerting.EventOrderSkipped, fmt.Sprintf("❌ Not enough buying power for %s", symbol))
	}

	return outcome, nil
}

// fetchQuote asks the gateway for a price, bounded by the quote timeout.
func (d *Dispatcher) fetchQuote(ctx context.Context, symbol string) (types.Quote, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, d.quoteTimeout)
	defer cancel()

	q, err := d.gateway.Quote(quoteCtx, symbol)
	if err != nil {
		d.recorder.RecordError("broker_unavailable")
		return types.Quote{}, fmt.Errorf("%w: fetch quote: %v", types.ErrBrokerUnavailable, err)
	}
	return q, nil
}

// fetchBuyingPower asks for the account buying power under the same
// bound as quotes, so a silent broker cannot stall the signal path.
func (d *Dispatcher) fetchBuyingPower(ctx context.Context) (decimal.Decimal, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.quoteTimeout)
	defer cancel()

	bp, err := d.gateway.BuyingPower(fetchCtx)
	if err != nil {
		d.recorder.RecordError("broker_unavailable")
		return decimal.Zero, fmt.Errorf("%w: fetch buying power: %v", types.ErrBrokerUnavailable, err)
	}
	return bp, nil
}

// fetchPosition asks for the open position under the same bound.
func (d *Dispatcher) fetchPosition(ctx context.Context, symbol string) (*types.Position, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.quoteTimeout)
	defer cancel()

	pos, err := d.gateway.PositionFor(fetchCtx, symbol)
	if err != nil {
		d.recorder.RecordError("broker_unavailable")
		return nil, fmt.Errorf("%w: fetch position: %v", types.ErrBrokerUnavailable, err)
	}
	return pos, nil
}

// execute submits the decided order and reports it.
func (d *Dispatcher) execute(ctx context.Context, outcome *types.Outcome) error {
	order := outcome.Order

	brokerOrderID, err := d.gateway.PlaceOrder(ctx, *order)
	if err != nil {
		d.recorder.RecordError("order_rejected")
		return fmt.Errorf("%w: %v", types.ErrOrderRejected, err)
	}

	d.recorder.RecordOrderPlaced(order.Symbol, string(order.Side))

	verb := "Buy"
	if order.Side == types.SideSell {
		verb = "Sell"
	}
	d.notify(alerting.EventOrderPlaced, fmt.Sprintf("✅ %s Order Placed: %s, Qty: %s, Limit: %s",
		verb, order.Symbol, order.Quantity.String(), order.LimitPrice.String()))

	if d.audit != nil {
		record := persistence.OrderRecord{
			ClientOrderID: order.ClientOrderID,
			BrokerOrderID: brokerOrderID,
			Symbol:        order.Symbol,
			Side:          order.Side,
			Quantity:      order.Quantity,
			LimitPrice:    order.LimitPrice,
			TimeInForce:   order.TimeInForce,
			OutsideRTH:    order.OutsideRTH,
			CreatedAt:     order.CreatedAt,
		}
		if err := d.audit.SaveOrder(ctx, record); err != nil {
			d.logger.Error("order audit write failed",
				"client_order_id", order.ClientOrderID,
				"error", err,
			)
		}
	}

	return nil
}

// record writes the dispatch to the audit log and metrics. Audit
// failures are logged, never surfaced to the signal caller.
func (d *Dispatcher) record(ctx context.Context, action types.Action, symbol string, outcome types.Outcome, dispatchErr error) {
	if dispatchErr != nil {
		d.recorder.RecordSignal(string(action), "error")
	} else {
		d.recorder.RecordSignal(string(action), outcome.Kind.String())
	}

	if d.audit == nil {
		return
	}

	record := persistence.DispatchRecord{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Symbol:    symbol,
	}
	if dispatchErr != nil {
		record.Outcome = "error"
		record.Error = dispatchErr.Error()
	} else {
		record.Outcome = outcome.Kind.String()
		record.Status = outcome.Status()
		if outcome.Order != nil {
			record.ClientOrderID = outcome.Order.ClientOrderID
		}
	}

	if err := d.audit.SaveDispatch(ctx, record); err != nil {
		d.logger.Error("dispatch audit write failed", "symbol", symbol, "error", err)
	}
}

// notify reports an event to the operator without blocking the signal
// path; the event's default severity applies.
func (d *Dispatcher) notify(event alerting.AlertEvent, message string) {
	if d.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.alerter.Alert(ctx, alerting.EventSeverity(event), message); err != nil {
			d.logger.Error("notification failed", "event", string(event), "error", err)
		}
	}()
}
