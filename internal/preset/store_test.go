package preset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/signal-bot/internal/types"
)

func testPreset(symbol, size, profit string) types.Preset {
	return types.Preset{
		Symbol:       symbol,
		OrderSize:    decimal.RequireFromString(size),
		MinProfitPct: decimal.RequireFromString(profit),
	}
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, ok := s.Get("AAPL"); ok {
		t.Error("Get() on empty store returned a preset")
	}
}

func TestStore_PutGet(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	want := testPreset("AAPL", "500", "3.5")
	if err := s.Put(want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := s.Get("AAPL")
	if !ok {
		t.Fatal("Get() did not find saved preset")
	}
	if !got.Equal(want) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestStore_SymbolNormalization(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Put(testPreset(" aapl ", "500", "3.5")); err != nil {
		t.Fatal(err)
	}

	for _, lookup := range []string{"AAPL", "aapl", " Aapl "} {
		got, ok := s.Get(lookup)
		if !ok {
			t.Errorf("Get(%q) did not find preset", lookup)
			continue
		}
		if got.Symbol != "AAPL" {
			t.Errorf("Get(%q).Symbol = %q, want AAPL", lookup, got.Symbol)
		}
	}
}

func TestStore_Overwrite(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Put(testPreset("TSLA", "500", "3.5")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testPreset("TSLA", "1000", "5")); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get("TSLA")
	if !got.OrderSize.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("OrderSize = %s, want 1000", got.OrderSize)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.json")

	s1, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := testPreset("MSFT", "750.50", "2.25")
	if err := s1.Put(want); err != nil {
		t.Fatal(err)
	}

	// Simulate a process restart by loading a fresh store from the same file.
	s2, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := s2.Get("MSFT")
	if !ok {
		t.Fatal("preset not found after reload")
	}
	if !got.Equal(want) {
		t.Errorf("reloaded preset = %+v, want %+v", got, want)
	}
}

func TestStore_FlushFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.json")

	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testPreset("AAPL", "500", "3.5")); err != nil {
		t.Fatal(err)
	}

	// Make the directory unwritable so the temp-file flush fails.
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err = s.Put(testPreset("TSLA", "900", "4"))
	if err == nil {
		t.Skip("running as privileged user, cannot provoke flush failure")
	}
	if !errors.Is(err, types.ErrStoreFlush) {
		t.Errorf("Put() error = %v, want ErrStoreFlush", err)
	}

	// The failed insert must not remain in memory.
	if _, ok := s.Get("TSLA"); ok {
		t.Error("failed Put left TSLA in memory")
	}
	// The earlier preset is untouched.
	if _, ok := s.Get("AAPL"); !ok {
		t.Error("failed Put clobbered existing preset")
	}

	// The durable file still parses and holds only the old entry.
	_ = os.Chmod(dir, 0o755)
	s2, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload after failed flush: %v", err)
	}
	if s2.Len() != 1 {
		t.Errorf("reloaded Len() = %d, want 1", s2.Len())
	}
}

func TestStore_Symbols(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range []string{"TSLA", "AAPL", "MSFT"} {
		if err := s.Put(testPreset(sym, "100", "1")); err != nil {
			t.Fatal(err)
		}
	}

	got := s.Symbols()
	want := []string{"AAPL", "MSFT", "TSLA"}
	if len(got) != len(want) {
		t.Fatalf("Symbols() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "presets.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testPreset("AAPL", "500", "3.5")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Get("AAPL")
				_ = s.Symbols()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = s.Put(testPreset("AAPL", "500", "3.5"))
			}
		}()
	}
	wg.Wait()

	if _, ok := s.Get("AAPL"); !ok {
		t.Error("preset lost during concurrent access")
	}
}

func TestStore_FileHoldsJSONNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.json")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testPreset("AAPL", "500", "3.5")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse preset file: %v", err)
	}
	entry, ok := raw["AAPL"]
	if !ok {
		t.Fatalf("AAPL missing from file: %s", data)
	}
	// json.Unmarshal into any yields float64 for numbers, string for
	// quoted values.
	if _, ok := entry["order_size"].(float64); !ok {
		t.Errorf("order_size serialized as %T, want JSON number: %s", entry["order_size"], data)
	}
	if _, ok := entry["min_profit_pct"].(float64); !ok {
		t.Errorf("min_profit_pct serialized as %T, want JSON number: %s", entry["min_profit_pct"], data)
	}
}

func TestStore_LoadsNumberFormatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.json")
	content := `{"AAPL": {"order_size": 500, "min_profit_pct": 3.5}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	got, ok := s.Get("AAPL")
	if !ok {
		t.Fatal("preset not loaded from number-format file")
	}
	if !got.OrderSize.Equal(decimal.NewFromInt(500)) {
		t.Errorf("OrderSize = %s, want 500", got.OrderSize)
	}
	if !got.MinProfitPct.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("MinProfitPct = %s, want 3.5", got.MinProfitPct)
	}
}
