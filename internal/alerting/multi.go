package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// MultiAlerter sends alerts to multiple channels concurrently.
type MultiAlerter struct {
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a new multi-channel alerter.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{
		alerters: alerters,
		logger:   logger,
	}
}

// Name returns the name of the alerter.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// Alert sends an alert to all configured channels.
// Returns an error if any channel fails (errors are joined).
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	if len(m.alerters) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(m.alerters))

	for _, alerter := range m.alerters {
		wg.Add(1)
		go func(a Alerter) {
			defer wg.Done()
			if err := a.Alert(ctx, severity, message, fields...); err != nil {
				m.logger.Error("alerter failed",
					"alerter", a.Name(),
					"severity", severity.String(),
					"error", err,
				)
				errCh <- err
			}
		}(alerter)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AlertEvent sends an alert for a predefined event type.
func (m *MultiAlerter) AlertEvent(ctx context.Context, event AlertEvent, message string, fields ...any) error {
	return m.Alert(ctx, EventSeverity(event), message, fields...)
}
