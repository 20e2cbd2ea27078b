package domain

import "time"

// Direction es el sentido de una posición en el venue de derivados.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign devuelve +1 para long y −1 para short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Valid indica si el valor es un sentido conocido.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Reglas de salida. El stop-loss es estrictamente menor que −5%: una
// posición exactamente a −5.0% no se poda.
const (
	stopLossPct    = -0.05
	stuckAfter     = 24 * time.Hour
	stuckBandPct   = 0.01
	maxHolding     = 72 * time.Hour
	takeProfitPct  = 0.10
)

// Position es una posición abierta sobre un activo. Solo el gestor de
// posiciones la crea y la destruye; como máximo una por activo.
type Position struct {
	Asset        string
	MarketID     string // mercado del venue donde vive la posición
	Direction    Direction
	Amount       float64 // nominal ya escalado por leverage (tradeSize × leverage)
	Leverage     float64
	EntryTime    time.Time
	EntryPrice   float64
	FactorScores map[Factor]float64 // snapshot de contribuciones al abrir
	OrderRef     string             // hash de la orden en el venue
}

// PriceChange devuelve el cambio relativo del precio respecto a la
// entrada, ajustado por sentido: positivo siempre significa "a favor".
func (p Position) PriceChange(current float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (current - p.EntryPrice) / p.EntryPrice * p.Direction.Sign()
}

// Profit calcula el P&L realizado al cerrar a exitPrice.
// El nominal ya incluye leverage y el multiplicador se aplica encima,
// igual que hace el venue al liquidar la posición apalancada.
func (p Position) Profit(exitPrice float64) float64 {
	return (exitPrice - p.EntryPrice) * p.Amount * p.Direction.Sign() * p.Leverage
}

// HeldFor devuelve cuánto tiempo lleva abierta la posición.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// PruneReason clasifica por qué se poda una posición.
type PruneReason string

const (
	PruneLoss  PruneReason = "loss"
	PruneStuck PruneReason = "stuck"
)

// ShouldPrune decide si la posición debe cerrarse anticipadamente:
// stop-loss (cambio < −5%, exclusivo) o posición estancada (> 24h con
// movimiento absoluto < 1%).
func (p Position) ShouldPrune(now time.Time, currentPrice float64) (PruneReason, bool) {
	change := p.PriceChange(currentPrice)
	if change < stopLossPct {
		return PruneLoss, true
	}
	if p.HeldFor(now) > stuckAfter && abs(change) < stuckBandPct {
		return PruneStuck, true
	}
	return "", false
}

// ShouldExit decide la salida programada: tiempo máximo de holding
// cumplido (≥ 72h) o take-profit alcanzado (≥ +10%).
func (p Position) ShouldExit(now time.Time, currentPrice float64) bool {
	return p.HeldFor(now) >= maxHolding || p.PriceChange(currentPrice) >= takeProfitPct
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
