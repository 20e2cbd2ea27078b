package signal

import (
	"testing"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
	"github.com/stretchr/testify/assert"
)

// flatCandles builds a degenerate series where open/high/low/close all
// track the given values.
func flatCandles(values ...float64) []domain.Candle {
	out := make([]domain.Candle, len(values))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		out[i] = domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      v, High: v, Low: v, Close: v,
			Volume: 1000,
		}
	}
	return out
}

func rampCandles(n int, start, step, volume float64) []domain.Candle {
	out := make([]domain.Candle, n)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		v := start + float64(i)*step
		out[i] = domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      v, High: v + 1, Low: v - 1, Close: v,
			Volume: volume,
		}
	}
	return out
}

func TestRSIScore(t *testing.T) {
	t.Run("uptrend is overbought", func(t *testing.T) {
		assert.InDelta(t, -2, rsiScore(rampCandles(30, 100, 1, 1000)), 0.0001)
	})
	t.Run("downtrend is oversold", func(t *testing.T) {
		assert.InDelta(t, 2, rsiScore(rampCandles(30, 100, -1, 1000)), 0.0001)
	})
	t.Run("flat is neutral", func(t *testing.T) {
		assert.Zero(t, rsiScore(rampCandles(30, 100, 0, 1000)))
	})
	t.Run("short series is neutral", func(t *testing.T) {
		assert.Zero(t, rsiScore(rampCandles(5, 100, 1, 1000)))
	})
}

func TestEMAScore(t *testing.T) {
	t.Run("uptrend crosses bullish", func(t *testing.T) {
		assert.InDelta(t, 2, emaScore(rampCandles(60, 100, 1, 1000)), 0.0001)
	})
	t.Run("downtrend crosses bearish", func(t *testing.T) {
		assert.InDelta(t, -2, emaScore(rampCandles(60, 200, -1, 1000)), 0.0001)
	})
	t.Run("needs the long window", func(t *testing.T) {
		assert.Zero(t, emaScore(rampCandles(30, 100, 1, 1000)))
	})
}

func TestWyckoffScore(t *testing.T) {
	accumulation := rampCandles(30, 100, 1, 1000)
	// Recent volume well above the mean while price keeps rising.
	for i := 20; i < 30; i++ {
		accumulation[i].Volume = 5000
	}
	assert.InDelta(t, 3, wyckoffScore(accumulation), 0.0001)

	distribution := rampCandles(30, 200, -1, 1000)
	for i := 20; i < 30; i++ {
		distribution[i].Volume = 5000
	}
	assert.InDelta(t, -3, wyckoffScore(distribution), 0.0001)

	quiet := rampCandles(30, 100, 1, 1000)
	assert.Zero(t, wyckoffScore(quiet), "sin volumen por encima de la media no hay lectura")
}

func TestElliottScore_ImpulseContinuation(t *testing.T) {
	highs := []float64{10, 11, 12, 11, 11.5, 13, 12, 12.5, 14, 13}
	lows := []float64{9, 9.5, 9.8, 8, 9, 9.5, 8.5, 9, 9.6, 9.2}
	closes := []float64{10, 10.2, 10.5, 10.1, 10.4, 10.8, 10.3, 10.6, 11.0, 11.5}

	candles := make([]domain.Candle, len(highs))
	for i := range candles {
		candles[i] = domain.Candle{High: highs[i], Low: lows[i], Close: closes[i], Volume: 1000}
	}

	// Tres picos ascendentes, último impulso al alza y precio por encima
	// del último pico.
	assert.InDelta(t, 3, elliottScore(candles), 0.0001)
}

func TestElliottScore_TooFewSwings(t *testing.T) {
	assert.Zero(t, elliottScore(flatCandles(1, 2, 3, 4, 5, 6)))
}

func TestICTScore_NeutralOnQuietRange(t *testing.T) {
	// Precio en mitad del rango, sin sweep de liquidez ni FVGs.
	candles := rampCandles(20, 100, 0, 1000)
	assert.Zero(t, ictScore(candles))
}

func TestICTScore_LiquiditySweepAbove(t *testing.T) {
	candles := rampCandles(20, 100, 0.1, 1000)
	// La última vela rompe al alza: rango amplio (el order block queda
	// en una vela anterior) y cierre a menos del 2% de la liquidez
	// sobre el máximo del periodo.
	last := len(candles) - 1
	candles[last].High = 104
	candles[last].Close = 103.2
	assert.Greater(t, ictScore(candles), 0.0)
}
