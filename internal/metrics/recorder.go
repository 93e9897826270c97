package metrics

import "time"

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordSignal records an inbound signal and its outcome.
func (r *Recorder) RecordSignal(action, outcome string) {
	SignalsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordOrderPlaced records an order submitted to the broker.
func (r *Recorder) RecordOrderPlaced(symbol, side string) {
	OrdersPlacedTotal.WithLabelValues(symbol, side).Inc()
}

// RecordDispatchDuration records end-to-end signal handling latency.
func (r *Recorder) RecordDispatchDuration(duration time.Duration) {
	DispatchDuration.Observe(duration.Seconds())
}

// RecordBrokerStatus records broker connection status.
func (r *Recorder) RecordBrokerStatus(connected bool) {
	if connected {
		BrokerConnected.Set(1)
	} else {
		BrokerConnected.Set(0)
	}
}

// RecordPresetCount records the number of configured presets.
func (r *Recorder) RecordPresetCount(n int) {
	PresetsConfigured.Set(float64(n))
}

// RecordDialogueSessions records the number of active configuration sessions.
func (r *Recorder) RecordDialogueSessions(n int) {
	DialogueSessionsActive.Set(float64(n))
}

// RecordError records an error.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveDispatch observes the elapsed time as dispatch latency.
func (t *Timer) ObserveDispatch() {
	DispatchDuration.Observe(t.Elapsed().Seconds())
}
