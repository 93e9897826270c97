package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_RecordSignal(t *testing.T) {
	r := NewRecorder()

	before := testutil.ToFloat64(SignalsTotal.WithLabelValues("buy", "order_placed"))
	r.RecordSignal("buy", "order_placed")
	after := testutil.ToFloat64(SignalsTotal.WithLabelValues("buy", "order_placed"))

	if after != before+1 {
		t.Errorf("counter went %v -> %v, want +1", before, after)
	}
}

func TestRecorder_RecordOrderPlaced(t *testing.T) {
	r := NewRecorder()

	before := testutil.ToFloat64(OrdersPlacedTotal.WithLabelValues("AAPL", "BUY"))
	r.RecordOrderPlaced("AAPL", "BUY")
	after := testutil.ToFloat64(OrdersPlacedTotal.WithLabelValues("AAPL", "BUY"))

	if after != before+1 {
		t.Errorf("counter went %v -> %v, want +1", before, after)
	}
}

func TestRecorder_RecordBrokerStatus(t *testing.T) {
	r := NewRecorder()

	r.RecordBrokerStatus(true)
	if got := testutil.ToFloat64(BrokerConnected); got != 1 {
		t.Errorf("BrokerConnected = %v, want 1", got)
	}

	r.RecordBrokerStatus(false)
	if got := testutil.ToFloat64(BrokerConnected); got != 0 {
		t.Errorf("BrokerConnected = %v, want 0", got)
	}
}

func TestRecorder_Gauges(t *testing.T) {
	r := NewRecorder()

	r.RecordPresetCount(3)
	if got := testutil.ToFloat64(PresetsConfigured); got != 3 {
		t.Errorf("PresetsConfigured = %v, want 3", got)
	}

	r.RecordDialogueSessions(2)
	if got := testutil.ToFloat64(DialogueSessionsActive); got != 2 {
		t.Errorf("DialogueSessionsActive = %v, want 2", got)
	}
}

func TestRecorder_RecordError(t *testing.T) {
	r := NewRecorder()

	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues("broker_unavailable"))
	r.RecordError("broker_unavailable")
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues("broker_unavailable"))

	if after != before+1 {
		t.Errorf("counter went %v -> %v, want +1", before, after)
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("test")
	if got := testutil.ToFloat64(BuildInfo.WithLabelValues("test")); got != 1 {
		t.Errorf("BuildInfo = %v, want 1", got)
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	if timer.Elapsed() <= 0 {
		t.Error("elapsed should be positive")
	}
	timer.ObserveDispatch()
}
