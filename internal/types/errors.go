package types

import "errors"

// Sentinel errors for the trading bot.
var (
	// Dispatch errors
	ErrUnknownAction       = errors.New("unknown action")
	ErrSymbolNotConfigured = errors.New("ticker not configured")

	// Decision errors
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrInvalidPosition  = errors.New("position has zero average cost")

	// Broker errors
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrOrderRejected     = errors.New("order rejected by broker")

	// Store errors
	ErrStoreFlush = errors.New("preset store flush failed")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
)
