package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/signal-bot/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteAuditLog implements AuditLog using SQLite.
type SQLiteAuditLog struct {
	db *sql.DB
}

// NewSQLiteAuditLog opens (or creates) the audit database at path and
// runs migrations.
func NewSQLiteAuditLog(path string) (*SQLiteAuditLog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log := &SQLiteAuditLog{db: db}

	if err := log.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return log, nil
}

// Migrate runs database migrations.
func (l *SQLiteAuditLog) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS dispatches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			outcome TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			client_order_id TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_symbol ON dispatches(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_timestamp ON dispatches(timestamp)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_order_id TEXT UNIQUE NOT NULL,
			broker_order_id TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			limit_price TEXT NOT NULL,
			time_in_force TEXT NOT NULL,
			outside_rth INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_client_order_id ON orders(client_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
	}

	for _, migration := range migrations {
		if _, err := l.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// SaveDispatch records a handled signal.
func (l *SQLiteAuditLog) SaveDispatch(ctx context.Context, record DispatchRecord) error {
	query := `INSERT INTO dispatches (timestamp, action, symbol, outcome, status, client_order_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, query,
		record.Timestamp,
		string(record.Action),
		record.Symbol,
		record.Outcome,
		record.Status,
		record.ClientOrderID,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("insert dispatch: %w", err)
	}

	return nil
}

// RecentDispatches returns the newest dispatches, most recent first.
func (l *SQLiteAuditLog) RecentDispatches(ctx context.Context, limit int) ([]DispatchRecord, error) {
	query := `SELECT id, timestamp, action, symbol, outcome, status, client_order_id, error
		FROM dispatches ORDER BY timestamp DESC, id DESC LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDispatches(rows)
}

// DispatchesBySymbol returns the newest dispatches for one symbol.
func (l *SQLiteAuditLog) DispatchesBySymbol(ctx context.Context, symbol string, limit int) ([]DispatchRecord, error) {
	query := `SELECT id, timestamp, action, symbol, outcome, status, client_order_id, error
		FROM dispatches WHERE symbol = ? ORDER BY timestamp DESC, id DESC LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatches by symbol: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDispatches(rows)
}

func scanDispatches(rows *sql.Rows) ([]DispatchRecord, error) {
	var records []DispatchRecord
	for rows.Next() {
		var r DispatchRecord
		var action string
		if err := rows.Scan(&r.ID, &r.Timestamp, &action, &r.Symbol, &r.Outcome, &r.Status, &r.ClientOrderID, &r.Error); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		r.Action = types.Action(action)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveOrder records a submitted order.
func (l *SQLiteAuditLog) SaveOrder(ctx context.Context, record OrderRecord) error {
	query := `INSERT INTO orders (client_order_id, broker_order_id, symbol, side, quantity, limit_price, time_in_force, outside_rth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	outsideRTH := 0
	if record.OutsideRTH {
		outsideRTH = 1
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, query,
		record.ClientOrderID,
		record.BrokerOrderID,
		record.Symbol,
		string(record.Side),
		record.Quantity.String(),
		record.LimitPrice.String(),
		string(record.TimeInForce),
		outsideRTH,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// OrderByClientID returns the order with the given client order ID, or
// nil if none exists.
func (l *SQLiteAuditLog) OrderByClientID(ctx context.Context, clientOrderID string) (*OrderRecord, error) {
	query := `SELECT id, client_order_id, broker_order_id, symbol, side, quantity, limit_price, time_in_force, outside_rth, created_at
		FROM orders WHERE client_order_id = ?`

	var r OrderRecord
	var side, quantity, limitPrice, tif string
	var outsideRTH int

	err := l.db.QueryRowContext(ctx, query, clientOrderID).Scan(
		&r.ID, &r.ClientOrderID, &r.BrokerOrderID, &r.Symbol,
		&side, &quantity, &limitPrice, &tif, &outsideRTH, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	r.Side = types.Side(side)
	r.TimeInForce = types.TimeInForce(tif)
	r.OutsideRTH = outsideRTH != 0

	if r.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	if r.LimitPrice, err = decimal.NewFromString(limitPrice); err != nil {
		return nil, fmt.Errorf("parse limit price: %w", err)
	}

	return &r, nil
}

// Close closes the underlying database.
func (l *SQLiteAuditLog) Close() error {
	return l.db.Close()
}
