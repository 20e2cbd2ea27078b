package storage

// sqlite.go — persistencia de cuentas, sesiones, trades y estadísticas
// de plataforma.
//
// Estrategia:
//   - `accounts`: una fila por cuenta; indicadores y pesos como JSON.
//   - `sessions`: sesión uuid → cuenta, con expiración.
//   - `trades`: histórico append-only, nunca se actualiza una fila.
//   - `platform_stats`: acumulados por factor con UPSERT atómico — el
//     incremento ocurre dentro de la sentencia, así que escritores
//     concurrentes de muchas cuentas nunca pierden updates.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    custody_address TEXT NOT NULL UNIQUE,
    trading_address TEXT NOT NULL,
    total_capital   REAL NOT NULL DEFAULT 0,
    bridged_capital REAL NOT NULL DEFAULT 0,
    active_capital  REAL NOT NULL DEFAULT 0,
    paused          INTEGER NOT NULL DEFAULT 0,
    indicators      TEXT NOT NULL DEFAULT '[]',  -- JSON array de factores
    weights         TEXT NOT NULL DEFAULT '{}',  -- JSON factor → peso
    created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id  TEXT PRIMARY KEY,
    account_id  INTEGER NOT NULL,
    expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_account ON sessions(account_id);

CREATE TABLE IF NOT EXISTS trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id    INTEGER NOT NULL,
    asset         TEXT NOT NULL,
    direction     TEXT NOT NULL,
    entry_time    DATETIME NOT NULL,
    exit_time     DATETIME NOT NULL,
    profit        REAL NOT NULL,
    entry_price   REAL NOT NULL,
    exit_price    REAL NOT NULL,
    factor_scores TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, exit_time DESC);

CREATE TABLE IF NOT EXISTS platform_stats (
    factor              TEXT PRIMARY KEY,
    total_trades        INTEGER NOT NULL DEFAULT 0,
    total_profit        REAL NOT NULL DEFAULT 0,
    correct_predictions INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y
// aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// ─── Cuentas ─────────────────────────────────────────────────────────────────

// CreateAccount inserta la cuenta y asigna su ID autoincremental.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, acct *domain.Account) error {
	indicators, weights, err := encodeFactorColumns(acct.Indicators, acct.Weights)
	if err != nil {
		return fmt.Errorf("storage.CreateAccount: %w", err)
	}

	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts
			(custody_address, trading_address, total_capital, bridged_capital,
			 active_capital, paused, indicators, weights, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.CustodyAddress, acct.TradingAddress,
		acct.TotalCapital, acct.BridgedCapital, acct.ActiveCapital,
		boolToInt(acct.Paused), indicators, weights, acct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.CreateAccount: insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage.CreateAccount: last insert id: %w", err)
	}
	acct.ID = id
	return nil
}

// GetAccountByAddress busca por dirección de custodia; nil si no existe.
func (s *SQLiteStorage) GetAccountByAddress(ctx context.Context, custodyAddress string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, selectAccount+` WHERE custody_address = ?`, custodyAddress)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetAccountByAddress: %w", err)
	}
	return &acct, nil
}

// LoadAccounts devuelve todas las cuentas para la rehidratación.
func (s *SQLiteStorage) LoadAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadAccounts: query: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.LoadAccounts: scan: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateAccount sobreescribe los campos mutables de la cuenta.
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, acct domain.Account) error {
	indicators, weights, err := encodeFactorColumns(acct.Indicators, acct.Weights)
	if err != nil {
		return fmt.Errorf("storage.UpdateAccount: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE accounts SET
			total_capital = ?, bridged_capital = ?, active_capital = ?,
			paused = ?, indicators = ?, weights = ?
		WHERE id = ?`,
		acct.TotalCapital, acct.BridgedCapital, acct.ActiveCapital,
		boolToInt(acct.Paused), indicators, weights, acct.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateAccount: %w", err)
	}
	return nil
}

// ─── Sesiones ────────────────────────────────────────────────────────────────

// CreateSession registra una sesión con su expiración.
func (s *SQLiteStorage) CreateSession(ctx context.Context, accountID int64, sessionID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, account_id, expires_at) VALUES (?, ?, ?)`,
		sessionID, accountID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.CreateSession: %w", err)
	}
	return nil
}

// AccountIDForSession resuelve una sesión vigente; 0 si no existe o expiró.
func (s *SQLiteStorage) AccountIDForSession(ctx context.Context, sessionID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM sessions WHERE session_id = ? AND expires_at > ?`,
		sessionID, time.Now().UTC(),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.AccountIDForSession: %w", err)
	}
	return id, nil
}

// ─── Trades ──────────────────────────────────────────────────────────────────

// AppendTrade inserta un trade cerrado. Nunca hay updates sobre trades.
func (s *SQLiteStorage) AppendTrade(ctx context.Context, t domain.Trade) error {
	scores, err := json.Marshal(t.FactorScores)
	if err != nil {
		return fmt.Errorf("storage.AppendTrade: marshal scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades
			(account_id, asset, direction, entry_time, exit_time,
			 profit, entry_price, exit_price, factor_scores)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.Asset, string(t.Direction),
		t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.Profit, t.EntryPrice, t.ExitPrice, string(scores),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendTrade: %w", err)
	}
	return nil
}

// TradesForAccount devuelve los trades de la cuenta, más recientes primero.
func (s *SQLiteStorage) TradesForAccount(ctx context.Context, accountID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, asset, direction, entry_time, exit_time,
		       profit, entry_price, exit_price, factor_scores
		FROM trades WHERE account_id = ? ORDER BY exit_time DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.TradesForAccount: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var dir, scores string
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.Asset, &dir,
			&t.EntryTime, &t.ExitTime,
			&t.Profit, &t.EntryPrice, &t.ExitPrice, &scores,
		); err != nil {
			return nil, fmt.Errorf("storage.TradesForAccount: scan: %w", err)
		}
		t.Direction = domain.Direction(dir)
		if err := json.Unmarshal([]byte(scores), &t.FactorScores); err != nil {
			return nil, fmt.Errorf("storage.TradesForAccount: decode scores: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ─── Estadísticas de plataforma ──────────────────────────────────────────────

// RecordFactorOutcome incrementa los acumulados del factor dentro de una
// única sentencia UPSERT: el read-modify-write ocurre en el motor, así
// que incrementos concurrentes nunca se pisan.
func (s *SQLiteStorage) RecordFactorOutcome(ctx context.Context, f domain.Factor, profit float64, correct bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_stats (factor, total_trades, total_profit, correct_predictions)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(factor) DO UPDATE SET
			total_trades        = total_trades + 1,
			total_profit        = total_profit + excluded.total_profit,
			correct_predictions = correct_predictions + excluded.correct_predictions`,
		string(f), profit, boolToInt(correct),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordFactorOutcome: %s: %w", f, err)
	}
	return nil
}

// PlatformStats devuelve los acumulados de todos los factores.
func (s *SQLiteStorage) PlatformStats(ctx context.Context) ([]domain.FactorStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT factor, total_trades, total_profit, correct_predictions FROM platform_stats`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.PlatformStats: query: %w", err)
	}
	defer rows.Close()

	var stats []domain.FactorStats
	for rows.Next() {
		var st domain.FactorStats
		var factor string
		if err := rows.Scan(&factor, &st.TotalTrades, &st.TotalProfit, &st.CorrectPredictions); err != nil {
			return nil, fmt.Errorf("storage.PlatformStats: scan: %w", err)
		}
		st.Factor = domain.Factor(factor)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// ─── helpers internos ───────────────────────────────────────────────────────

const selectAccount = `
	SELECT id, custody_address, trading_address, total_capital,
	       bridged_capital, active_capital, paused, indicators, weights,
	       created_at
	FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var acct domain.Account
	var paused int
	var indicators, weights string

	if err := row.Scan(
		&acct.ID, &acct.CustodyAddress, &acct.TradingAddress,
		&acct.TotalCapital, &acct.BridgedCapital, &acct.ActiveCapital,
		&paused, &indicators, &weights, &acct.CreatedAt,
	); err != nil {
		return domain.Account{}, err
	}

	acct.Paused = paused == 1
	if err := json.Unmarshal([]byte(indicators), &acct.Indicators); err != nil {
		return domain.Account{}, fmt.Errorf("decode indicators: %w", err)
	}
	if err := json.Unmarshal([]byte(weights), &acct.Weights); err != nil {
		return domain.Account{}, fmt.Errorf("decode weights: %w", err)
	}
	acct.Trends = make(map[domain.Factor]float64, len(acct.Indicators))
	return acct, nil
}

func encodeFactorColumns(indicators []domain.Factor, weights map[domain.Factor]float64) (string, string, error) {
	ind, err := json.Marshal(indicators)
	if err != nil {
		return "", "", fmt.Errorf("marshal indicators: %w", err)
	}
	w, err := json.Marshal(weights)
	if err != nil {
		return "", "", fmt.Errorf("marshal weights: %w", err)
	}
	return string(ind), string(w), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
