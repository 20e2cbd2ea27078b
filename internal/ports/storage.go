package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// AccountStore persiste las cuentas y sus sesiones.
type AccountStore interface {
	// CreateAccount inserta la cuenta y asigna su ID. Devuelve error si
	// la dirección de custodia ya está registrada.
	CreateAccount(ctx context.Context, acct *domain.Account) error

	// GetAccountByAddress busca la cuenta por dirección de custodia.
	// Devuelve nil sin error si no existe.
	GetAccountByAddress(ctx context.Context, custodyAddress string) (*domain.Account, error)

	// LoadAccounts devuelve todas las cuentas persistidas, para la
	// rehidratación del registry en el arranque.
	LoadAccounts(ctx context.Context) ([]domain.Account, error)

	// UpdateAccount sobreescribe los campos mutables de la cuenta
	// (capital, paused, indicadores, pesos).
	UpdateAccount(ctx context.Context, acct domain.Account) error

	// CreateSession registra una sesión con su expiración.
	CreateSession(ctx context.Context, accountID int64, sessionID string, expiresAt time.Time) error

	// AccountIDForSession resuelve una sesión vigente. Devuelve 0 sin
	// error si la sesión no existe o expiró.
	AccountIDForSession(ctx context.Context, sessionID string) (int64, error)
}

// TradeStore persiste el histórico append-only de trades cerrados.
type TradeStore interface {
	AppendTrade(ctx context.Context, t domain.Trade) error

	// TradesForAccount devuelve los trades de la cuenta, más recientes
	// primero.
	TradesForAccount(ctx context.Context, accountID int64) ([]domain.Trade, error)
}

// StatsStore mantiene los acumulados de plataforma por factor.
type StatsStore interface {
	// RecordFactorOutcome incrementa atómicamente los contadores del
	// factor. Escritores concurrentes nunca pierden un incremento.
	RecordFactorOutcome(ctx context.Context, f domain.Factor, profit float64, correct bool) error

	// PlatformStats devuelve los acumulados de todos los factores.
	PlatformStats(ctx context.Context) ([]domain.FactorStats, error)
}

// Storage agrupa los tres stores; la implementación SQLite los cubre todos.
type Storage interface {
	AccountStore
	TradeStore
	StatsStore

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
