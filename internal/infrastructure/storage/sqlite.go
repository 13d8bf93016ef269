package storage

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/vitos/turtle_trader/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dbPath)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty in-memory database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			intent TEXT NOT NULL,
			price REAL NOT NULL,
			size REAL NOT NULL,
			filled_size REAL NOT NULL DEFAULT 0,
			avg_fill_price REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol, created_at);`,
		`CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			intent TEXT NOT NULL,
			price REAL NOT NULL,
			size REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol, created_at);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			add_ons INTEGER NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS strategy_state (
			symbol TEXT PRIMARY KEY,
			position REAL NOT NULL,
			add_pos INTEGER NOT NULL,
			last_price REAL NOT NULL,
			high_price REAL NOT NULL,
			low_price REAL NOT NULL,
			low_set BOOLEAN NOT NULL DEFAULT 0,
			trading BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			time INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (symbol, interval, time)
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return errors.Wrapf(err, "failed to exec query %s", q)
		}
	}
	return nil
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, client_id, exchange, symbol, intent, price, size, filled_size, avg_fill_price, status, reason, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.ClientID, o.Exchange, o.Symbol, o.Intent, o.Price, o.Size,
		o.FilledSize, o.AvgFillPrice, o.Status, o.Reason, o.CreatedAt, o.UpdatedAt)
	return errors.Wrapf(err, "save order %s", o.ID)
}

func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *domain.Order) error {
	query := `UPDATE orders SET filled_size = ?, avg_fill_price = ?, status = ?, reason = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, o.FilledSize, o.AvgFillPrice, o.Status, o.Reason, o.UpdatedAt, o.ID)
	if err != nil {
		return errors.Wrapf(err, "update order %s", o.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(domain.ErrOrderNotFound, o.ID)
	}
	return nil
}

// ListOrders returns the newest orders first. An empty symbol lists all symbols.
func (s *SQLiteStore) ListOrders(ctx context.Context, symbol string, limit int) ([]*domain.Order, error) {
	query := `SELECT id, client_id, exchange, symbol, intent, price, size, filled_size, avg_fill_price, status, reason, created_at, updated_at
			  FROM orders WHERE (? = '' OR symbol = ?) ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, symbol, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Exchange, &o.Symbol, &o.Intent, &o.Price, &o.Size,
			&o.FilledSize, &o.AvgFillPrice, &o.Status, &o.Reason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) SaveFill(ctx context.Context, f *domain.Fill) error {
	query := `INSERT INTO fills (order_id, symbol, intent, price, size, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, f.OrderID, f.Symbol, f.Intent, f.Price, f.Size, f.Time)
	return errors.Wrapf(err, "save fill for %s", f.OrderID)
}

func (s *SQLiteStore) ListFills(ctx context.Context, symbol string, limit int) ([]*domain.Fill, error) {
	query := `SELECT order_id, symbol, intent, price, size, created_at
			  FROM fills WHERE (? = '' OR symbol = ?) ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, symbol, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list fills")
	}
	defer rows.Close()

	var fills []*domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.OrderID, &f.Symbol, &f.Intent, &f.Price, &f.Size, &f.Time); err != nil {
			return nil, errors.Wrap(err, "scan fill")
		}
		fills = append(fills, &f)
	}
	return fills, rows.Err()
}

func (s *SQLiteStore) SavePositionHistory(ctx context.Context, h *domain.PositionHistory) error {
	query := `INSERT INTO position_history (exchange, symbol, side, size, entry_price, exit_price, realized_pnl, add_ons, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, h.Exchange, h.Symbol, h.Side, h.Size, h.EntryPrice, h.ExitPrice,
		h.RealizedPnL, h.AddOns, h.OpenedAt, h.ClosedAt)
	if err != nil {
		return errors.Wrap(err, "save position history")
	}
	h.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	query := `SELECT id, exchange, symbol, side, size, entry_price, exit_price, realized_pnl, add_ons, opened_at, closed_at
			  FROM position_history ORDER BY closed_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list position history")
	}
	defer rows.Close()

	var history []*domain.PositionHistory
	for rows.Next() {
		var h domain.PositionHistory
		if err := rows.Scan(&h.ID, &h.Exchange, &h.Symbol, &h.Side, &h.Size, &h.EntryPrice, &h.ExitPrice,
			&h.RealizedPnL, &h.AddOns, &h.OpenedAt, &h.ClosedAt); err != nil {
			return nil, errors.Wrap(err, "scan position history")
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}

// StateRepository Implementation

func (s *SQLiteStore) SaveStrategyState(ctx context.Context, st *domain.StrategyState) error {
	query := `INSERT INTO strategy_state (symbol, position, add_pos, last_price, high_price, low_price, low_set, trading, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(symbol) DO UPDATE SET
				position = excluded.position,
				add_pos = excluded.add_pos,
				last_price = excluded.last_price,
				high_price = excluded.high_price,
				low_price = excluded.low_price,
				low_set = excluded.low_set,
				trading = excluded.trading,
				updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, st.Symbol, st.Position, st.AddPos, st.LastPrice, st.HighPrice,
		st.LowPrice, st.LowSet, st.Trading, st.UpdatedAt)
	return errors.Wrapf(err, "save state %s", st.Symbol)
}

func (s *SQLiteStore) GetStrategyState(ctx context.Context, symbol string) (*domain.StrategyState, error) {
	query := `SELECT symbol, position, add_pos, last_price, high_price, low_price, low_set, trading, updated_at
			  FROM strategy_state WHERE symbol = ?`
	var st domain.StrategyState
	err := s.db.QueryRowContext(ctx, query, symbol).Scan(&st.Symbol, &st.Position, &st.AddPos, &st.LastPrice,
		&st.HighPrice, &st.LowPrice, &st.LowSet, &st.Trading, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get state %s", symbol)
	}
	return &st, nil
}

// CandleRepository Implementation

func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, candles []domain.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO candles (symbol, interval, time, open, high, low, close, volume)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare candle insert")
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, c.Interval, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return errors.Wrapf(err, "save candle %s %d", symbol, c.Time)
		}
	}
	return errors.Wrap(tx.Commit(), "commit candles")
}

// ListCandles returns the newest limit candles, oldest first.
func (s *SQLiteStore) ListCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	query := `SELECT time, open, high, low, close, volume FROM candles
			  WHERE symbol = ? AND interval = ? ORDER BY time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list candles")
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		c := domain.Candle{Interval: interval}
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, errors.Wrap(err, "scan candle")
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}
