package signal

// fundamental.go — composite fundamental score from staking yield,
// on-chain volume and whale pressure.

import "strings"

// fundamentalBreakdown carries the composite score plus the normalized
// sub-scores used for trend monitoring.
type fundamentalBreakdown struct {
	Composite  float64 // [0, 10], whale-adjusted
	Tokenomics float64
	Onchain    float64
	Ecosystem  float64
	TVL        float64
}

// fundamentalScore mixes yield and volume into four sub-scores, then
// amplifies or dampens the sum by whale pressure. The composite is
// clamped to [0, 10]: fundamentals alone never argue for a short.
func fundamentalScore(stakingYield, volume, whaleScore float64) fundamentalBreakdown {
	b := fundamentalBreakdown{
		Tokenomics: capAt10(stakingYield*100+volume/1e6) * 0.30,
		Onchain:    capAt10(volume/1e6) * 0.25,
		Ecosystem:  capAt10(stakingYield*50) * 0.25,
		TVL:        capAt10(volume*stakingYield) * 0.20,
	}

	composite := b.Tokenomics + b.Onchain + b.Ecosystem + b.TVL
	composite *= 1 + whaleScore*0.5
	if composite < 0 {
		composite = 0
	}
	if composite > 10 {
		composite = 10
	}
	b.Composite = composite
	return b
}

// whaleScore nets out large trades: deposits toward exchange accounts
// read as sell pressure, everything else as accumulation. Normalized
// to [-1, 1].
func whaleScore(trades []tradeView, threshold float64) float64 {
	score := 0.0
	for _, t := range trades {
		usd := t.Quantity * t.Price
		if usd <= threshold {
			continue
		}
		if strings.Contains(strings.ToLower(t.Receiver), "exchange") {
			score--
		} else {
			score++
		}
	}

	normalized := score / 10
	if normalized > 1 {
		return 1
	}
	if normalized < -1 {
		return -1
	}
	return normalized
}

// tradeView is the slice of a venue trade the whale detector needs.
type tradeView struct {
	Price    float64
	Quantity float64
	Receiver string
}

func capAt10(v float64) float64 {
	if v > 10 {
		return 10
	}
	return v
}
