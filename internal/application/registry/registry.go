package registry

// registry.go — el registro de engines por cuenta. Es el único punto
// del proceso que conoce a todas las cuentas: las rehidrata al
// arrancar, crea la cuenta en el signup y enruta las operaciones de la
// superficie de control al engine correcto.
//
// El mutex del registro protege SOLO la membresía del mapa. Todo lo
// demás (posiciones, capital, pesos) es del mutex de cada engine: una
// cuenta lenta nunca bloquea las operaciones de las demás.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/atombot/internal/application/agent"
	"github.com/alejandrodnm/atombot/internal/domain"
)

// Tolerancia de la suma de pesos en el override manual.
const (
	weightSumMin = 0.9
	weightSumMax = 1.1
)

var (
	// ErrUnknownAccount señala operaciones sobre cuentas sin engine.
	ErrUnknownAccount = errors.New("registry: unknown account")
	// ErrAlreadyRegistered señala un signup con una dirección existente.
	ErrAlreadyRegistered = errors.New("registry: address already registered")
)

// Status es la vista completa de una cuenta para la API.
type Status struct {
	Account       domain.Account
	OpenPositions []domain.Position
	LastCycle     domain.CycleReport
	Trades        []domain.Trade
}

// Registry gestiona el ciclo de vida de los engines de todas las cuentas.
type Registry struct {
	deps agent.Deps
	log  *slog.Logger

	// Los engines viven atados al contexto del registry, no al de la
	// request que los creó: un signup cuya request termina no puede
	// matar el loop de la cuenta.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	engines map[int64]*agent.Engine
}

// New crea un Registry vacío.
func New(deps agent.Deps) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:      deps,
		log:       deps.Logger,
		runCtx:    ctx,
		runCancel: cancel,
		engines:   make(map[int64]*agent.Engine),
	}
}

// LoadAll rehidrata todas las cuentas persistidas y arranca sus
// engines. Las cuentas pausadas también obtienen engine: su loop
// observa el flag y no ejecuta ciclos.
func (r *Registry) LoadAll(ctx context.Context) error {
	accounts, err := r.deps.Storage.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("registry.LoadAll: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range accounts {
		acct := accounts[i]
		eng := agent.NewEngine(&acct, r.deps)
		r.engines[acct.ID] = eng
		eng.Start(r.runCtx)
	}

	r.log.Info("accounts rehydrated", "count", len(accounts))
	return nil
}

// Signup crea la cuenta para las direcciones verificadas, sembrando
// indicadores y pesos desde las estadísticas de plataforma, y arranca
// su engine.
func (r *Registry) Signup(ctx context.Context, custodyAddress, tradingAddress string) (*domain.Account, error) {
	existing, err := r.deps.Storage.GetAccountByAddress(ctx, custodyAddress)
	if err != nil {
		return nil, fmt.Errorf("registry.Signup: lookup: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, custodyAddress)
	}

	stats, err := r.deps.Storage.PlatformStats(ctx)
	if err != nil {
		r.log.Warn("platform stats unavailable at signup, using base defaults", "error", err)
		stats = nil
	}
	indicators, weights := domain.SeedDefaults(stats)

	capital, err := r.deps.Custody.Balance(ctx, custodyAddress)
	if err != nil {
		// La cuenta nace igualmente; el primer ciclo reintenta.
		r.log.Warn("initial capital unavailable at signup", "address", custodyAddress, "error", err)
		capital = 0
	}

	acct := &domain.Account{
		CustodyAddress: custodyAddress,
		TradingAddress: tradingAddress,
		TotalCapital:   capital,
		Indicators:     indicators,
		Weights:        weights,
		Trends:         make(map[domain.Factor]float64),
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.deps.Storage.CreateAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("registry.Signup: create account: %w", err)
	}

	eng := agent.NewEngine(acct, r.deps)
	r.mu.Lock()
	r.engines[acct.ID] = eng
	r.mu.Unlock()
	eng.Start(r.runCtx)

	r.log.Info("account created", "account", acct.ID, "custody", custodyAddress)
	snapshot, _, _ := eng.Snapshot()
	return &snapshot, nil
}

// Pause congela los ciclos de la cuenta. Las posiciones abiertas no se
// tocan.
func (r *Registry) Pause(ctx context.Context, accountID int64) error {
	eng, err := r.engine(accountID)
	if err != nil {
		return err
	}
	return eng.Pause(ctx)
}

// Unpause reactiva los ciclos de la cuenta sobre su loop existente.
func (r *Registry) Unpause(ctx context.Context, accountID int64) error {
	eng, err := r.engine(accountID)
	if err != nil {
		return err
	}
	return eng.Resume(ctx)
}

// ManualClose cierra una posición concreta a precio de mercado.
func (r *Registry) ManualClose(ctx context.Context, accountID int64, asset string) error {
	eng, err := r.engine(accountID)
	if err != nil {
		return err
	}
	return eng.ManualClose(ctx, asset)
}

// OverrideWeights sustituye los pesos de la cuenta. La suma debe quedar
// en [0.9, 1.1] y solo se aceptan claves de factores habilitados; el
// resto se descarta.
func (r *Registry) OverrideWeights(ctx context.Context, accountID int64, weights map[domain.Factor]float64) (map[domain.Factor]float64, error) {
	eng, err := r.engine(accountID)
	if err != nil {
		return nil, err
	}

	if len(weights) == 0 {
		return nil, fmt.Errorf("registry.OverrideWeights: empty weights")
	}
	sum := 0.0
	for f, w := range weights {
		if !f.Valid() {
			return nil, fmt.Errorf("registry.OverrideWeights: unknown factor %q", f)
		}
		sum += w
	}
	if sum < weightSumMin || sum > weightSumMax {
		return nil, fmt.Errorf("registry.OverrideWeights: weights sum %.3f outside [%.1f, %.1f]",
			sum, weightSumMin, weightSumMax)
	}

	acct, _, _ := eng.Snapshot()
	filtered := make(map[domain.Factor]float64, len(weights))
	for f, w := range weights {
		if acct.HasIndicator(f) {
			filtered[f] = w
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("registry.OverrideWeights: no weight matches an enabled indicator")
	}

	if err := eng.ApplyWeights(ctx, filtered); err != nil {
		return nil, err
	}
	return filtered, nil
}

// ConfigureIndicators sustituye el set de factores habilitados.
func (r *Registry) ConfigureIndicators(ctx context.Context, accountID int64, indicators []domain.Factor) error {
	eng, err := r.engine(accountID)
	if err != nil {
		return err
	}

	if len(indicators) == 0 {
		return fmt.Errorf("registry.ConfigureIndicators: empty indicator set")
	}
	seen := make(map[domain.Factor]bool, len(indicators))
	for _, f := range indicators {
		if !f.Valid() {
			return fmt.Errorf("registry.ConfigureIndicators: unknown factor %q", f)
		}
		if seen[f] {
			return fmt.Errorf("registry.ConfigureIndicators: duplicated factor %q", f)
		}
		seen[f] = true
	}
	return eng.ApplyIndicators(ctx, indicators)
}

// Status devuelve la vista completa de la cuenta: estado, posiciones,
// último ciclo e histórico de trades.
func (r *Registry) Status(ctx context.Context, accountID int64) (Status, error) {
	eng, err := r.engine(accountID)
	if err != nil {
		return Status{}, err
	}

	acct, positions, lastCycle := eng.Snapshot()
	trades, err := r.deps.Storage.TradesForAccount(ctx, accountID)
	if err != nil {
		return Status{}, fmt.Errorf("registry.Status: trades: %w", err)
	}
	return Status{
		Account:       acct,
		OpenPositions: positions,
		LastCycle:     lastCycle,
		Trades:        trades,
	}, nil
}

// PnL calcula el resultado acumulado de la cuenta sobre su capital
// total vigente.
func (r *Registry) PnL(ctx context.Context, accountID int64) (domain.PnL, error) {
	eng, err := r.engine(accountID)
	if err != nil {
		return domain.PnL{}, err
	}
	trades, err := r.deps.Storage.TradesForAccount(ctx, accountID)
	if err != nil {
		return domain.PnL{}, fmt.Errorf("registry.PnL: %w", err)
	}
	acct, _, _ := eng.Snapshot()
	return domain.ComputePnL(trades, acct.TotalCapital), nil
}

// WinRate calcula la tasa de acierto de la cuenta.
func (r *Registry) WinRate(ctx context.Context, accountID int64) (domain.WinRate, error) {
	if _, err := r.engine(accountID); err != nil {
		return domain.WinRate{}, err
	}
	trades, err := r.deps.Storage.TradesForAccount(ctx, accountID)
	if err != nil {
		return domain.WinRate{}, fmt.Errorf("registry.WinRate: %w", err)
	}
	return domain.ComputeWinRate(trades), nil
}

// PlatformWinRate agrega las predicciones correctas de todos los
// factores de todas las cuentas.
func (r *Registry) PlatformWinRate(ctx context.Context) (domain.WinRate, error) {
	stats, err := r.deps.Storage.PlatformStats(ctx)
	if err != nil {
		return domain.WinRate{}, fmt.Errorf("registry.PlatformWinRate: %w", err)
	}

	var total, correct int64
	for _, s := range stats {
		total += s.TotalTrades
		correct += s.CorrectPredictions
	}
	pct := 0.0
	if total > 0 {
		pct = float64(correct) / float64(total) * 100
	}
	return domain.WinRate{Absolute: int(correct), Percentage: pct}, nil
}

// StopAll detiene todos los engines y espera a que terminen sus ciclos
// en vuelo. Para el shutdown del proceso.
func (r *Registry) StopAll() {
	r.mu.Lock()
	engines := make([]*agent.Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()

	r.runCancel()
	for _, e := range engines {
		e.Stop()
	}
	r.log.Info("all engines stopped", "count", len(engines))
}

func (r *Registry) engine(accountID int64) (*agent.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng, ok := r.engines[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccount, accountID)
	}
	return eng, nil
}
