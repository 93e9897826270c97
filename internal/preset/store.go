// Package preset provides the durable per-symbol trading configuration store.
package preset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tathienbao/signal-bot/internal/types"
)

// Store holds the symbol -> Preset mapping, backed by a JSON file.
// The file is rewritten wholesale after every mutation; reads are served
// from memory. On a flush failure the in-memory mutation is rolled back so
// memory and disk never diverge.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	presets map[string]types.Preset
}

// NewStore creates a store backed by the given file, loading it if present.
// A missing file initializes an empty store; that is not an error.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:    path,
		logger:  logger,
		presets: make(map[string]types.Preset),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.logger.Info("preset store loaded",
		"path", path,
		"presets", len(s.presets),
	)

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read preset file: %w", err)
	}

	var raw map[string]types.Preset
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse preset file: %w", err)
	}

	for symbol, p := range raw {
		key := types.NormalizeSymbol(symbol)
		p.Symbol = key
		s.presets[key] = p
	}

	return nil
}

// Get returns the preset for a symbol, if configured.
func (s *Store) Get(symbol string) (types.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[types.NormalizeSymbol(symbol)]
	return p, ok
}

// Put inserts or overwrites the preset for a symbol and flushes the whole
// map to disk. The symbol key is normalized to uppercase. If the flush
// fails the in-memory change is rolled back and the error returned.
func (s *Store) Put(p types.Preset) error {
	key := types.NormalizeSymbol(p.Symbol)
	p.Symbol = key

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.presets[key]
	s.presets[key] = p

	if err := s.flush(); err != nil {
		if existed {
			s.presets[key] = prev
		} else {
			delete(s.presets, key)
		}
		return fmt.Errorf("%w: %v", types.ErrStoreFlush, err)
	}

	s.logger.Info("preset saved",
		"symbol", key,
		"order_size", p.OrderSize,
		"min_profit_pct", p.MinProfitPct,
	)

	return nil
}

// presetRecord is the on-disk shape of one preset. The numeric fields
// are emitted as JSON numbers, not quoted decimals, so other consumers
// of the file see plain numbers.
type presetRecord struct {
	OrderSize    json.Number `json:"order_size"`
	MinProfitPct json.Number `json:"min_profit_pct"`
}

// flush rewrites the durable file. Callers must hold the write lock.
// Writes to a temp file and renames it over the target so a crash
// mid-write never corrupts the previous copy.
func (s *Store) flush() error {
	records := make(map[string]presetRecord, len(s.presets))
	for symbol, p := range s.presets {
		records[symbol] = presetRecord{
			OrderSize:    json.Number(p.OrderSize.String()),
			MinProfitPct: json.Number(p.MinProfitPct.String()),
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".presets-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Symbols returns the configured symbols in sorted order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.presets))
	for symbol := range s.presets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Len returns the number of configured presets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.presets)
}
