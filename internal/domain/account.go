package domain

import "time"

// Parámetros de riesgo por cuenta. Derivados siempre del capital total
// vigente — se recalculan al principio de cada ciclo.
const (
	// tradeSizePct es la fracción del capital total que arriesga cada trade.
	tradeSizePct = 0.001
	// maxActivePct acota el capital comprometido en posiciones abiertas.
	maxActivePct = 0.10
	// AccountLeverage es el multiplicador fijo de todas las posiciones.
	AccountLeverage = 20.0
	// bridgePct es la fracción máxima del capital total que se puede
	// mover al venue en una sola operación de bridging.
	bridgePct = 0.5
)

// Account es el estado persistente de la cuenta de un usuario.
// Los campos de capital se expresan en ATOM.
type Account struct {
	ID             int64
	CustodyAddress string // dirección bech32 en la chain de custodia
	TradingAddress string // dirección bech32 derivada en la chain del venue
	TotalCapital   float64
	BridgedCapital float64 // fondos disponibles para abrir posiciones
	ActiveCapital  float64 // fondos comprometidos en posiciones abiertas
	Paused         bool
	Indicators     []Factor
	Weights        map[Factor]float64
	Trends         map[Factor]float64 // último sub-score normalizado; solo monitoring
	CreatedAt      time.Time
}

// TradeSize devuelve el tamaño nominal de cada trade.
func (a *Account) TradeSize() float64 {
	return a.TotalCapital * tradeSizePct
}

// MaxActiveCapital devuelve el tope de capital activo.
func (a *Account) MaxActiveCapital() float64 {
	return a.TotalCapital * maxActivePct
}

// BridgeAmount calcula cuánto capital mover de custodia al venue:
// min(50% del total, total − activo). Valores ≤ 0 significan no-op.
func (a *Account) BridgeAmount() float64 {
	toBridge := a.TotalCapital * bridgePct
	if rest := a.TotalCapital - a.ActiveCapital; rest < toBridge {
		toBridge = rest
	}
	return toBridge
}

// CanOpen comprueba las precondiciones de capital para abrir una posición.
func (a *Account) CanOpen() bool {
	size := a.TradeSize()
	return a.ActiveCapital+size <= a.MaxActiveCapital() && a.BridgedCapital >= size
}

// HasIndicator indica si el factor está habilitado para esta cuenta.
func (a *Account) HasIndicator(f Factor) bool {
	for _, ind := range a.Indicators {
		if ind == f {
			return true
		}
	}
	return false
}

// CloneWeights devuelve una copia del mapa de pesos, para snapshots
// que no deben observar mutaciones posteriores.
func (a *Account) CloneWeights() map[Factor]float64 {
	out := make(map[Factor]float64, len(a.Weights))
	for f, w := range a.Weights {
		out[f] = w
	}
	return out
}
