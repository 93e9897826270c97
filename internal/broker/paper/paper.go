// Package paper provides a simulated brokerage for development and tests.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/signal-bot/internal/broker"
	"github.com/tathienbao/signal-bot/internal/types"
)

// Config holds paper gateway configuration.
type Config struct {
	BuyingPower decimal.Decimal
}

// DefaultConfig returns default paper gateway config.
func DefaultConfig() Config {
	return Config{
		BuyingPower: decimal.NewFromInt(10000),
	}
}

// Gateway implements broker.Gateway in memory. Limit orders fill
// immediately at their limit price; the position book is updated so a
// buy followed by a sell signal behaves like the real thing.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	state atomic.Int32

	mu          sync.RWMutex
	buyingPower decimal.Decimal
	positions   map[string]*types.Position
	quotes      map[string]types.Quote
	orders      []types.OrderInstruction

	nextOrderID atomic.Int64
}

// NewGateway creates a new paper gateway.
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		cfg:         cfg,
		logger:      logger,
		buyingPower: cfg.BuyingPower,
		positions:   make(map[string]*types.Position),
		quotes:      make(map[string]types.Quote),
	}

	g.state.Store(int32(broker.StateDisconnected))
	g.nextOrderID.Store(1)

	return g
}

// Connect marks the gateway connected.
func (g *Gateway) Connect(ctx context.Context) error {
	g.state.Store(int32(broker.StateConnected))
	g.logger.Info("paper gateway connected",
		"buying_power", g.cfg.BuyingPower,
	)
	return nil
}

// Close marks the gateway disconnected.
func (g *Gateway) Close() error {
	g.state.Store(int32(broker.StateDisconnected))
	g.logger.Info("paper gateway disconnected")
	return nil
}

// IsConnected returns true if connected.
func (g *Gateway) IsConnected() bool {
	return broker.ConnectionState(g.state.Load()) == broker.StateConnected
}

// BuyingPower returns the simulated buying power.
func (g *Gateway) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	if !g.IsConnected() {
		return decimal.Zero, broker.ErrNotConnected
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.buyingPower, nil
}

// PositionFor returns the simulated position for a symbol.
func (g *Gateway) PositionFor(ctx context.Context, symbol string) (*types.Position, error) {
	if !g.IsConnected() {
		return nil, broker.ErrNotConnected
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	pos, ok := g.positions[types.NormalizeSymbol(symbol)]
	if !ok {
		return nil, nil
	}
	p := *pos
	return &p, nil
}

// Quote returns the configured quote for a symbol. Symbols without a
// configured quote return an empty quote, matching a feed with no data.
func (g *Gateway) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	if !g.IsConnected() {
		return types.Quote{}, broker.ErrNotConnected
	}

	symbol = types.NormalizeSymbol(symbol)

	g.mu.RLock()
	defer g.mu.RUnlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return types.Quote{Symbol: symbol}, nil
	}
	q.Timestamp = time.Now()
	return q, nil
}

// PlaceOrder fills the order immediately at its limit price and updates
// the simulated account.
func (g *Gateway) PlaceOrder(ctx context.Context, order types.OrderInstruction) (string, error) {
	if !g.IsConnected() {
		return "", broker.ErrNotConnected
	}

	orderID := g.nextOrderID.Add(1)
	cost := order.Quantity.Mul(order.LimitPrice)

	g.mu.Lock()
	defer g.mu.Unlock()

	symbol := types.NormalizeSymbol(order.Symbol)

	switch order.Side {
	case types.SideBuy:
		g.buyingPower = g.buyingPower.Sub(cost)
		if pos, ok := g.positions[symbol]; ok {
			total := pos.AvgCost.Mul(pos.Quantity).Add(cost)
			pos.Quantity = pos.Quantity.Add(order.Quantity)
			pos.AvgCost = total.Div(pos.Quantity)
		} else {
			g.positions[symbol] = &types.Position{
				Symbol:   symbol,
				Quantity: order.Quantity,
				AvgCost:  order.LimitPrice,
			}
		}
	case types.SideSell:
		g.buyingPower = g.buyingPower.Add(cost)
		if pos, ok := g.positions[symbol]; ok {
			pos.Quantity = pos.Quantity.Sub(order.Quantity)
			if !pos.Quantity.IsPositive() {
				delete(g.positions, symbol)
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported side %q", broker.ErrOrderRejected, order.Side)
	}

	g.orders = append(g.orders, order)

	g.logger.Info("paper order filled",
		"order_id", orderID,
		"client_order_id", order.ClientOrderID,
		"symbol", symbol,
		"side", order.Side,
		"quantity", order.Quantity,
		"limit_price", order.LimitPrice,
	)

	return fmt.Sprintf("PAPER-%d", orderID), nil
}

// SetQuote configures the quote returned for a symbol.
func (g *Gateway) SetQuote(symbol string, last, close decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	symbol = types.NormalizeSymbol(symbol)
	g.quotes[symbol] = types.Quote{Symbol: symbol, Last: last, Close: close}
}

// SetPosition seeds a position, replacing any existing one.
func (g *Gateway) SetPosition(symbol string, quantity, avgCost decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	symbol = types.NormalizeSymbol(symbol)
	g.positions[symbol] = &types.Position{
		Symbol:   symbol,
		Quantity: quantity,
		AvgCost:  avgCost,
	}
}

// SetBuyingPower overrides the simulated buying power.
func (g *Gateway) SetBuyingPower(bp decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buyingPower = bp
}

// Orders returns all orders placed so far.
func (g *Gateway) Orders() []types.OrderInstruction {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.OrderInstruction, len(g.orders))
	copy(out, g.orders)
	return out
}

// Ensure Gateway implements broker.Gateway
var _ broker.Gateway = (*Gateway)(nil)
