package domain

import "sort"

// FactorStats son los acumulados de plataforma de un factor, compartidos
// entre todas las cuentas. Los incrementos concurrentes los garantiza el
// storage (upsert atómico), no este tipo.
type FactorStats struct {
	Factor             Factor
	TotalTrades        int64
	TotalProfit        float64
	CorrectPredictions int64
}

// AvgProfit devuelve el profit medio por trade.
func (s FactorStats) AvgProfit() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return s.TotalProfit / float64(s.TotalTrades)
}

// Accuracy devuelve la fracción de predicciones correctas.
func (s FactorStats) Accuracy() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.CorrectPredictions) / float64(s.TotalTrades)
}

// rank es el criterio de ordenación para sembrar defaults: factores con
// mejor profit medio × accuracy primero.
func (s FactorStats) rank() float64 {
	return s.AvgProfit() * s.Accuracy()
}

// SeedDefaults deriva indicadores y pesos iniciales para cuentas nuevas a
// partir de las estadísticas de plataforma. Sin estadísticas devuelve el
// catálogo completo con los pesos de arranque. Con estadísticas, los
// indicadores se ordenan por rendimiento dentro de cada categoría y cada
// peso es clamp(avgProfit × accuracy + pesoBase).
func SeedDefaults(stats []FactorStats) ([]Factor, map[Factor]float64) {
	withTrades := make([]FactorStats, 0, len(stats))
	for _, s := range stats {
		if s.TotalTrades > 0 && s.Factor.Valid() {
			withTrades = append(withTrades, s)
		}
	}

	if len(withTrades) == 0 {
		return DefaultIndicators(), DefaultWeights()
	}

	sort.Slice(withTrades, func(i, j int) bool {
		return withTrades[i].rank() > withTrades[j].rank()
	})

	byFactor := make(map[Factor]FactorStats, len(withTrades))
	var indicators []Factor
	for _, cat := range []Category{CategoryTechnical, CategoryFundamental, CategorySentiment} {
		for _, s := range withTrades {
			if s.Factor.Category() == cat {
				indicators = append(indicators, s.Factor)
				byFactor[s.Factor] = s
			}
		}
	}

	weights := make(map[Factor]float64, len(Catalog))
	for _, f := range Catalog {
		s := byFactor[f] // zero value → rank 0 → peso base
		weights[f] = ClampWeight(s.rank() + f.BaseWeight())
	}

	return indicators, weights
}
