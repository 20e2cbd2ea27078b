package domain

// learning.go — regla de credit assignment que ajusta los pesos de los
// factores a partir del resultado realizado de cada trade cerrado.
//
// La regla acredita un factor como "correcto" solo si su signo coincidió
// con el sentido del trade Y el trade fue rentable. No distingue entre
// "el factor acertó" y "el factor causó la ganancia", y no acredita a un
// factor que discrepó de un trade perdedor. Se reproduce tal cual por
// paridad de comportamiento con el sistema en producción.

const (
	learningRate        = 0.1
	discountFactor      = 0.9
	contributionEpsilon = 1e-6
)

// FactorCredit es el resultado de la asignación de crédito de un factor
// en un trade cerrado; se reporta a las estadísticas de plataforma.
type FactorCredit struct {
	Factor  Factor
	Profit  float64
	Correct bool
}

// UpdateWeights aplica la regla de aprendizaje a una copia de weights y
// devuelve los pesos nuevos junto con el crédito por factor.
//
//	reward       = profit / tradeSize
//	wasCorrect   = (score > 0) == (direction == long) ∧ profit > 0
//	contribution = |score| / (|Σ scores| + ε)
//	delta        = lr × contribution × (±reward) × discount
//	peso nuevo   = clamp(peso + delta, 0.10, 0.50)
func UpdateWeights(
	weights map[Factor]float64,
	factorScores map[Factor]float64,
	profit, tradeSize float64,
	direction Direction,
) (map[Factor]float64, []FactorCredit) {
	updated := make(map[Factor]float64, len(weights))
	for f, w := range weights {
		updated[f] = w
	}

	reward := 0.0
	if tradeSize != 0 {
		reward = profit / tradeSize
	}

	total := abs(TotalScore(factorScores))
	wasLong := direction == Long
	wasProfitable := profit > 0

	credits := make([]FactorCredit, 0, len(factorScores))
	for factor, score := range factorScores {
		predictedUp := score > 0
		wasCorrect := (predictedUp == wasLong) && wasProfitable

		contribution := abs(score) / (total + contributionEpsilon)
		signedReward := reward
		if !wasCorrect {
			signedReward = -reward
		}
		delta := learningRate * contribution * signedReward * discountFactor

		if w, ok := updated[factor]; ok {
			updated[factor] = ClampWeight(w + delta)
		}
		credits = append(credits, FactorCredit{Factor: factor, Profit: profit, Correct: wasCorrect})
	}

	return updated, credits
}
