// Package broker provides brokerage connectivity for order execution.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/signal-bot/internal/types"
)

// Common broker errors.
var (
	ErrNotConnected      = errors.New("broker not connected")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrOrderRejected     = errors.New("order rejected by broker")
	ErrQuoteTimeout      = errors.New("quote request timed out")
)

// ConnectionState represents the broker connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Gateway defines the brokerage capability the dispatcher depends on.
// Connect is idempotent; every other call requires a live connection.
type Gateway interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool

	// Account information
	BuyingPower(ctx context.Context) (decimal.Decimal, error)

	// Positions. Returns (nil, nil) when the account holds nothing
	// in the symbol.
	PositionFor(ctx context.Context, symbol string) (*types.Position, error)

	// Market data. Blocks until a price arrives or ctx expires.
	Quote(ctx context.Context, symbol string) (types.Quote, error)

	// Order submission. Returns the broker-assigned order ID.
	PlaceOrder(ctx context.Context, order types.OrderInstruction) (string, error)
}

// Contract identifies a tradeable instrument at the broker.
type Contract struct {
	Symbol   string
	SecType  string // STK, FUT, OPT, ...
	Exchange string
	Currency string
}

// StockContract returns a SMART-routed USD stock contract, which is what
// every signal in this system trades.
func StockContract(symbol string) Contract {
	return Contract{
		Symbol:   types.NormalizeSymbol(symbol),
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}
}
