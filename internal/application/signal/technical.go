package signal

// technical.go — pure candle-series scoring functions. Each returns a
// raw score roughly in [-10, 10]; the aggregator applies the account's
// weights on top. All functions tolerate short series by returning 0.

import (
	"math"

	"github.com/alejandrodnm/atombot/internal/domain"
)

const (
	emaShortWindow = 20
	emaLongWindow  = 50
	rsiWindow      = 14
	wyckoffWindow  = 10
)

// ictScore looks for liquidity sweeps around the period high/low, the
// tightest-range order block and fair value gaps.
func ictScore(candles []domain.Candle) float64 {
	if len(candles) < 3 {
		return 0
	}

	current := candles[len(candles)-1].Close
	periodHigh := candles[0].High
	periodLow := candles[0].Low
	minRange := math.MaxFloat64
	orderBlock := 0.0
	rangeSum := 0.0

	for _, c := range candles {
		if c.High > periodHigh {
			periodHigh = c.High
		}
		if c.Low < periodLow {
			periodLow = c.Low
		}
		r := c.High - c.Low
		rangeSum += r
		// Last candle with the tightest range wins.
		if r <= minRange {
			minRange = r
			orderBlock = c.Close
		}
	}
	rangeMean := rangeSum / float64(len(candles))

	// Fair value gaps: next open vs current close, only gaps wider than
	// the average range count.
	gapSum := 0.0
	gapCount := 0
	for i := 0; i < len(candles)-1; i++ {
		gap := candles[i+1].Open - candles[i].Close
		if math.Abs(gap) > rangeMean {
			gapSum += gap
			gapCount++
		}
	}
	fvg := 0.0
	if gapCount > 0 {
		fvg = gapSum / float64(gapCount)
	}

	liquidityAbove := periodHigh * 1.01
	liquidityBelow := periodLow * 0.99

	score := 0.0
	if current > orderBlock && math.Abs(current-liquidityAbove) < 0.02*current {
		score += 5
	} else if current < orderBlock && math.Abs(current-liquidityBelow) < 0.02*current {
		score -= 5
	}
	if fvg > 0 && current < periodHigh {
		score += 3
	} else if fvg < 0 && current > periodLow {
		score -= 3
	}
	return score
}

// elliottScore detects impulse continuation from local peak/trough
// structure. Needs at least 3 peaks and 2 troughs to say anything.
func elliottScore(candles []domain.Candle) float64 {
	if len(candles) < 5 {
		return 0
	}

	var peaks, troughs []int
	for i := 1; i < len(candles)-1; i++ {
		if candles[i-1].High < candles[i].High && candles[i+1].High < candles[i].High {
			peaks = append(peaks, i)
		}
		if candles[i-1].Low > candles[i].Low && candles[i+1].Low > candles[i].Low {
			troughs = append(troughs, i)
		}
	}
	if len(peaks) < 3 || len(troughs) < 2 {
		return 0
	}

	lastPeak := peaks[len(peaks)-1]
	lastTrough := troughs[len(troughs)-1]
	current := candles[len(candles)-1].Close

	var lastWave float64
	if lastPeak > lastTrough {
		lastWave = candles[lastPeak].Close - candles[lastTrough].Close
	} else {
		lastWave = candles[lastTrough].Close - candles[lastPeak].Close
	}

	switch {
	case lastWave > 0 && current > candles[lastPeak].Close:
		return 3
	case lastWave < 0 && current < candles[lastTrough].Close:
		return -3
	default:
		return 0
	}
}

// emaScore compares the short and long exponential moving averages.
func emaScore(candles []domain.Candle) float64 {
	if len(candles) < emaLongWindow {
		return 0
	}

	short := ema(closes(candles), emaShortWindow)
	long := ema(closes(candles), emaLongWindow)

	switch {
	case short > long:
		return 2
	case short < long:
		return -2
	default:
		return 0
	}
}

// rsiScore is contrarian: oversold is a buy signal, overbought a sell.
func rsiScore(candles []domain.Candle) float64 {
	r, ok := rsi(closes(candles), rsiWindow)
	if !ok {
		return 0
	}
	switch {
	case r < 30:
		return 2
	case r > 70:
		return -2
	default:
		return 0
	}
}

// wyckoffScore reads effort vs result: rising volume with rising price
// is accumulation, rising volume with falling price is distribution.
func wyckoffScore(candles []domain.Candle) float64 {
	if len(candles) < 2*wyckoffWindow {
		return 0
	}

	n := len(candles)
	volTrend := meanVolume(candles[n-wyckoffWindow:])
	priceTrend := meanClose(candles[n-wyckoffWindow:])
	prevPriceTrend := meanClose(candles[n-2*wyckoffWindow : n-wyckoffWindow])
	volMean := meanVolume(candles)

	switch {
	case volTrend > volMean && priceTrend > prevPriceTrend:
		return 3
	case volTrend > volMean && priceTrend < prevPriceTrend:
		return -3
	default:
		return 0
	}
}

// --- series helpers ---

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func meanClose(candles []domain.Candle) float64 {
	sum := 0.0
	for _, c := range candles {
		sum += c.Close
	}
	return sum / float64(len(candles))
}

func meanVolume(candles []domain.Candle) float64 {
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

// ema computes the recursive exponential moving average seeded with the
// first value, alpha = 2/(window+1).
func ema(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(window) + 1)
	out := series[0]
	for _, v := range series[1:] {
		out = alpha*v + (1-alpha)*out
	}
	return out
}

// rsi computes Wilder's RSI. ok is false when the series is too short.
func rsi(series []float64, window int) (float64, bool) {
	if len(series) < window+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		diff := series[i] - series[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss -= diff
		}
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)

	for i := window + 1; i < len(series); i++ {
		diff := series[i] - series[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
	}

	if avgGain == 0 && avgLoss == 0 {
		return 50, true // flat series, no momentum either way
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
