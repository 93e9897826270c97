package broker

import "testing"

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateError, "error"},
		{ConnectionState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStockContract(t *testing.T) {
	c := StockContract("aapl")

	if c.Symbol != "AAPL" {
		t.Errorf("Symbol = %s, want AAPL", c.Symbol)
	}
	if c.SecType != "STK" {
		t.Errorf("SecType = %s, want STK", c.SecType)
	}
	if c.Exchange != "SMART" {
		t.Errorf("Exchange = %s, want SMART", c.Exchange)
	}
	if c.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", c.Currency)
	}
}
