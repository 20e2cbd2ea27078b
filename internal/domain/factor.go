package domain

// Factor es una señal nombrada que contribuye al score de decisión.
// El catálogo es fijo: 13 factores en 3 categorías. Nunca se aceptan
// factores fuera del catálogo.
type Factor string

const (
	// Técnicos — derivados de la serie de velas del venue.
	FactorICT     Factor = "ict"
	FactorElliott Factor = "elliott"
	FactorEMA     Factor = "ema"
	FactorRSI     Factor = "rsi"
	FactorWyckoff Factor = "wyckoff"

	// Fundamentales — métricas on-chain y de staking.
	FactorTokenomics Factor = "tokenomics"
	FactorOnchain    Factor = "onchain"
	FactorEcosystem  Factor = "ecosystem"
	FactorTVL        Factor = "tvl"

	// Sentimiento — texto social/noticias, actividad de ballenas, funding.
	FactorSocial  Factor = "social"
	FactorWhale   Factor = "whale"
	FactorMarket  Factor = "market"
	FactorFunding Factor = "funding"
)

// Category agrupa los factores por el tipo de dato que leen.
type Category string

const (
	CategoryTechnical   Category = "technical"
	CategoryFundamental Category = "fundamental"
	CategorySentiment   Category = "sentiment"
)

// Catalog es el orden canónico de los 13 factores.
var Catalog = []Factor{
	FactorICT, FactorElliott, FactorEMA, FactorRSI, FactorWyckoff,
	FactorTokenomics, FactorOnchain, FactorEcosystem, FactorTVL,
	FactorSocial, FactorWhale, FactorMarket, FactorFunding,
}

// baseWeights son los pesos de arranque cuando no hay estadísticas
// de plataforma que permitan sembrar mejores valores.
var baseWeights = map[Factor]float64{
	FactorICT: 0.25, FactorElliott: 0.20, FactorEMA: 0.15,
	FactorRSI: 0.15, FactorWyckoff: 0.25,
	FactorTokenomics: 0.30, FactorOnchain: 0.25,
	FactorEcosystem: 0.25, FactorTVL: 0.20,
	FactorSocial: 0.20, FactorWhale: 0.30,
	FactorMarket: 0.25, FactorFunding: 0.25,
}

// Pesos acotados: ningún factor puede dominar ni desaparecer del todo.
const (
	WeightMin = 0.10
	WeightMax = 0.50
)

// Category devuelve la categoría del factor.
func (f Factor) Category() Category {
	switch f {
	case FactorICT, FactorElliott, FactorEMA, FactorRSI, FactorWyckoff:
		return CategoryTechnical
	case FactorTokenomics, FactorOnchain, FactorEcosystem, FactorTVL:
		return CategoryFundamental
	default:
		return CategorySentiment
	}
}

// Valid indica si el factor pertenece al catálogo.
func (f Factor) Valid() bool {
	_, ok := baseWeights[f]
	return ok
}

// BaseWeight devuelve el peso de arranque del factor (0 si no es válido).
func (f Factor) BaseWeight() float64 {
	return baseWeights[f]
}

// DefaultIndicators devuelve el catálogo completo como set inicial.
func DefaultIndicators() []Factor {
	out := make([]Factor, len(Catalog))
	copy(out, Catalog)
	return out
}

// DefaultWeights devuelve una copia de los pesos de arranque.
func DefaultWeights() map[Factor]float64 {
	out := make(map[Factor]float64, len(baseWeights))
	for f, w := range baseWeights {
		out[f] = w
	}
	return out
}

// ClampWeight acota un peso al rango [WeightMin, WeightMax].
func ClampWeight(w float64) float64 {
	if w < WeightMin {
		return WeightMin
	}
	if w > WeightMax {
		return WeightMax
	}
	return w
}
