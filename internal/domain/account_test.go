package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccount_DerivedSizes(t *testing.T) {
	a := Account{TotalCapital: 100000}
	assert.InDelta(t, 100.0, a.TradeSize(), 0.0001)
	assert.InDelta(t, 10000.0, a.MaxActiveCapital(), 0.0001)
}

func TestAccount_CanOpen_CapitalCap(t *testing.T) {
	// con 100000 de capital caben 99 posiciones de 100 bajo el tope de
	// 10000; la número 100 lo excedería
	a := Account{TotalCapital: 100000, BridgedCapital: 50000, ActiveCapital: 9900}
	assert.True(t, a.CanOpen())

	a.ActiveCapital = 9901
	assert.False(t, a.CanOpen())
}

func TestAccount_CanOpen_RequiresBridgedFunds(t *testing.T) {
	a := Account{TotalCapital: 100000, BridgedCapital: 99.9}
	assert.False(t, a.CanOpen())

	a.BridgedCapital = 100
	assert.True(t, a.CanOpen())
}

func TestAccount_BridgeAmount(t *testing.T) {
	// min(50% del total, total − activo)
	a := Account{TotalCapital: 1000, ActiveCapital: 0}
	assert.InDelta(t, 500.0, a.BridgeAmount(), 0.0001)

	a.ActiveCapital = 600
	assert.InDelta(t, 400.0, a.BridgeAmount(), 0.0001)

	a.ActiveCapital = 1000
	assert.InDelta(t, 0.0, a.BridgeAmount(), 0.0001)
}

func TestAccount_HasIndicator(t *testing.T) {
	a := Account{Indicators: []Factor{FactorICT, FactorRSI}}
	assert.True(t, a.HasIndicator(FactorRSI))
	assert.False(t, a.HasIndicator(FactorWhale))
}

func TestAccount_CloneWeightsIsIndependent(t *testing.T) {
	a := Account{Weights: map[Factor]float64{FactorICT: 0.25}}
	clone := a.CloneWeights()
	clone[FactorICT] = 0.5
	assert.Equal(t, 0.25, a.Weights[FactorICT])
}
