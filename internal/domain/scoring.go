package domain

// decisionThreshold es el umbral del score total ponderado. Scores en
// (−15, 15) no generan trade.
const decisionThreshold = 15.0

// TotalScore suma las contribuciones ponderadas de todos los factores.
func TotalScore(scores map[Factor]float64) float64 {
	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total
}

// Decide aplica la regla de decisión al score total:
// long si > 15, short si < −15, nada en el resto del rango.
// confidence es |totalScore| cuando hay señal, 0 cuando no.
func Decide(totalScore float64) (dir Direction, confidence float64, ok bool) {
	switch {
	case totalScore > decisionThreshold:
		return Long, totalScore, true
	case totalScore < -decisionThreshold:
		return Short, -totalScore, true
	default:
		return "", 0, false
	}
}
