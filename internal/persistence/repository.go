// Package persistence provides a durable audit trail of dispatched
// signals and submitted orders.
package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/signal-bot/internal/types"
)

// AuditLog defines the interface for recording signal and order history.
type AuditLog interface {
	// Dispatch history
	SaveDispatch(ctx context.Context, record DispatchRecord) error
	RecentDispatches(ctx context.Context, limit int) ([]DispatchRecord, error)
	DispatchesBySymbol(ctx context.Context, symbol string, limit int) ([]DispatchRecord, error)

	// Order history
	SaveOrder(ctx context.Context, record OrderRecord) error
	OrderByClientID(ctx context.Context, clientOrderID string) (*OrderRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// DispatchRecord is one handled signal and how it ended.
type DispatchRecord struct {
	ID            int64
	Timestamp     time.Time
	Action        types.Action
	Symbol        string
	Outcome       string
	Status        string
	ClientOrderID string
	Error         string
}

// OrderRecord is one order submitted to the broker.
type OrderRecord struct {
	ID            int64
	ClientOrderID string
	BrokerOrderID string
	Symbol        string
	Side          types.Side
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	TimeInForce   types.TimeInForce
	OutsideRTH    bool
	CreatedAt     time.Time
}
