package dialogue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/signal-bot/internal/alerting"
	"github.com/tathienbao/signal-bot/internal/preset"
)

func newTestManager(t *testing.T) (*Manager, *preset.Store) {
	t.Helper()
	store, err := preset.NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return NewManager(store, nil, nil), store
}

func TestManager_HappyPath(t *testing.T) {
	m, store := newTestManager(t)
	const op = int64(100)

	if got := m.Begin(op); got != PromptTicker {
		t.Errorf("Begin() = %q, want ticker prompt", got)
	}
	if got := m.HandleText(op, " aapl "); got != PromptSize {
		t.Errorf("ticker input reply = %q, want size prompt", got)
	}
	if got := m.HandleText(op, "500"); got != PromptProfit {
		t.Errorf("size input reply = %q, want profit prompt", got)
	}

	reply := m.HandleText(op, "3.5")
	if !strings.Contains(reply, "Config saved for AAPL") {
		t.Errorf("completion reply = %q, want confirmation", reply)
	}
	if m.Active(op) {
		t.Error("session should be discarded after completion")
	}

	p, ok := store.Get("AAPL")
	if !ok {
		t.Fatal("preset not stored")
	}
	if !p.OrderSize.Equal(decimal.NewFromInt(500)) {
		t.Errorf("OrderSize = %s, want 500", p.OrderSize)
	}
	if !p.MinProfitPct.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("MinProfitPct = %s, want 3.5", p.MinProfitPct)
	}
}

func TestManager_InvalidNumericInput(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []string
		bad     string
		wantMsg string
	}{
		{"non-numeric size", []string{"TSLA"}, "lots", MsgInvalidSize},
		{"negative size", []string{"TSLA"}, "-500", MsgInvalidSize},
		{"zero size", []string{"TSLA"}, "0", MsgInvalidSize},
		{"non-numeric profit", []string{"TSLA", "500"}, "plenty", MsgInvalidProfit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestManager(t)
			const op = int64(1)
			m.Begin(op)
			for _, in := range tt.inputs {
				m.HandleText(op, in)
			}

			if got := m.HandleText(op, tt.bad); got != tt.wantMsg {
				t.Errorf("reply = %q, want %q", got, tt.wantMsg)
			}
			// Session stays in place, nothing reaches the store.
			if !m.Active(op) {
				t.Error("session should remain active after invalid input")
			}
			if store.Len() != 0 {
				t.Errorf("store has %d presets, want 0", store.Len())
			}
		})
	}
}

func TestManager_RepromptThenRecover(t *testing.T) {
	m, store := newTestManager(t)
	const op = int64(1)

	m.Begin(op)
	m.HandleText(op, "NVDA")
	m.HandleText(op, "oops")
	if got := m.HandleText(op, "250"); got != PromptProfit {
		t.Errorf("valid retry reply = %q, want profit prompt", got)
	}
	m.HandleText(op, "2")

	if _, ok := store.Get("NVDA"); !ok {
		t.Error("preset not stored after recovering from bad input")
	}
}

func TestManager_Cancel(t *testing.T) {
	m, store := newTestManager(t)
	const op = int64(1)

	if got := m.Cancel(op); got != MsgNothingActive {
		t.Errorf("Cancel() without session = %q, want %q", got, MsgNothingActive)
	}

	m.Begin(op)
	m.HandleText(op, "AAPL")
	m.HandleText(op, "500")
	if got := m.Cancel(op); got != MsgCancelled {
		t.Errorf("Cancel() = %q, want %q", got, MsgCancelled)
	}
	if m.Active(op) {
		t.Error("session should be gone after cancel")
	}
	if store.Len() != 0 {
		t.Error("cancel must not persist partial state")
	}

	// A fresh session starts empty.
	if got := m.Begin(op); got != PromptTicker {
		t.Errorf("Begin() after cancel = %q, want ticker prompt", got)
	}
	if got := m.HandleText(op, "MSFT"); got != PromptSize {
		t.Errorf("fresh session reply = %q, want size prompt", got)
	}
}

func TestManager_BeginOverwritesSession(t *testing.T) {
	m, store := newTestManager(t)
	const op = int64(1)

	m.Begin(op)
	m.HandleText(op, "AAPL")
	m.HandleText(op, "500")

	// Restart mid-conversation: collected fields are dropped.
	m.Begin(op)
	m.HandleText(op, "TSLA")
	m.HandleText(op, "100")
	m.HandleText(op, "1")

	if _, ok := store.Get("AAPL"); ok {
		t.Error("abandoned session must not persist")
	}
	p, ok := store.Get("TSLA")
	if !ok {
		t.Fatal("restarted session preset not stored")
	}
	if !p.OrderSize.Equal(decimal.NewFromInt(100)) {
		t.Errorf("OrderSize = %s, want 100", p.OrderSize)
	}
}

func TestManager_TextOutsideSessionIgnored(t *testing.T) {
	m, _ := newTestManager(t)
	if got := m.HandleText(1, "hello"); got != "" {
		t.Errorf("HandleText() without session = %q, want empty", got)
	}
}

func TestManager_OperatorsIsolated(t *testing.T) {
	m, store := newTestManager(t)

	m.Begin(1)
	m.Begin(2)
	m.HandleText(1, "AAPL")
	m.HandleText(2, "TSLA")
	m.HandleText(1, "500")
	m.HandleText(2, "100")
	m.HandleText(1, "5")

	if m.Active(1) {
		t.Error("operator 1 session should be complete")
	}
	if !m.Active(2) {
		t.Error("operator 2 session should still be active")
	}
	if _, ok := store.Get("AAPL"); !ok {
		t.Error("operator 1 preset missing")
	}
	if _, ok := store.Get("TSLA"); ok {
		t.Error("operator 2 incomplete preset must not be stored")
	}
}

func TestSummary(t *testing.T) {
	m, store := newTestManager(t)

	if got := Summary(store); !strings.Contains(got, "No presets configured") {
		t.Errorf("Summary() on empty store = %q", got)
	}

	op := int64(1)
	m.Begin(op)
	m.HandleText(op, "AAPL")
	m.HandleText(op, "500")
	m.HandleText(op, "3.5")

	got := Summary(store)
	if !strings.Contains(got, "AAPL") || !strings.Contains(got, "$500") || !strings.Contains(got, "3.5%") {
		t.Errorf("Summary() = %q, want AAPL entry", got)
	}
}

func TestStep_String(t *testing.T) {
	tests := []struct {
		step Step
		want string
	}{
		{StepAwaitingTicker, "awaiting_ticker"},
		{StepAwaitingSize, "awaiting_size"},
		{StepAwaitingProfit, "awaiting_profit"},
		{Step(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.step.String(); got != tt.want {
			t.Errorf("Step(%d).String() = %q, want %q", tt.step, got, tt.want)
		}
	}
}

func TestManager_SaveFailureKeepsSessionForRetry(t *testing.T) {
	dir := t.TempDir()
	store, err := preset.NewStore(filepath.Join(dir, "presets.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	m := NewManager(store, nil, nil)
	const op = int64(1)

	m.Begin(op)
	m.HandleText(op, "AAPL")
	m.HandleText(op, "500")

	// Make the directory unwritable so the store flush fails.
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	reply := m.HandleText(op, "3.5")
	if strings.Contains(reply, "Config saved") {
		t.Skip("running as privileged user, cannot provoke flush failure")
	}
	if !strings.Contains(reply, "Failed to save config for AAPL") {
		t.Errorf("reply = %q, want save-failure message", reply)
	}
	if !m.Active(op) {
		t.Error("session should stay in AwaitingProfit for retry")
	}
	if _, ok := store.Get("AAPL"); ok {
		t.Error("failed save must not persist a preset")
	}

	// Restore the directory; re-entering the profit value retries.
	if err := os.Chmod(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	reply = m.HandleText(op, "3.5")
	if !strings.Contains(reply, "Config saved for AAPL") {
		t.Errorf("retry reply = %q, want confirmation", reply)
	}
	if m.Active(op) {
		t.Error("session should end after successful retry")
	}
	p, ok := store.Get("AAPL")
	if !ok {
		t.Fatal("preset not stored after retry")
	}
	if !p.MinProfitPct.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("MinProfitPct = %s, want 3.5", p.MinProfitPct)
	}
}

func TestManager_CompletionNotifiesAlerter(t *testing.T) {
	store, err := preset.NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	alerter := alerting.NewMockAlerter()
	m := NewManager(store, alerter, nil)
	const op = int64(1)

	m.Begin(op)
	m.HandleText(op, "AAPL")
	m.HandleText(op, "500")
	m.HandleText(op, "3.5")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if alerter.HasAlertContaining("Preset saved for AAPL") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no preset-saved alert sent")
}
