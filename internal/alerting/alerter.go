// Package alerting provides operator notification for the trading bot.
package alerting

import (
	"context"
	"fmt"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for warning messages.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for critical alerts requiring immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns an emoji for the severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "✅"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter defines the interface for sending alerts.
// Implementations must be safe for concurrent use; callers treat delivery
// as fire-and-forget and only log returned errors.
type Alerter interface {
	// Alert sends an alert with the given severity and message.
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	// Name returns the name of the alerter.
	Name() string
}

// FormatFields converts variadic key/value fields to a formatted string.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	result := ""
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if result != "" {
			result += "\n"
		}
		result += fmt.Sprintf("• %s: %v", key, value)
	}
	return result
}

// AlertEvent represents a pre-defined alert event type.
type AlertEvent string

const (
	// EventOrderPlaced is sent when a buy or sell order is submitted.
	EventOrderPlaced AlertEvent = "order_placed"
	// EventOrderSkipped is sent when a signal resulted in no order.
	EventOrderSkipped AlertEvent = "order_skipped"
	// EventPresetSaved is sent when an operator completes configuration.
	EventPresetSaved AlertEvent = "preset_saved"
	// EventBrokerLost is sent when the broker connection drops.
	EventBrokerLost AlertEvent = "broker_lost"
	// EventBotStarted is sent when the bot starts.
	EventBotStarted AlertEvent = "bot_started"
	// EventBotStopped is sent when the bot stops.
	EventBotStopped AlertEvent = "bot_stopped"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventBrokerLost:
		return SeverityHigh
	case EventOrderSkipped:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
