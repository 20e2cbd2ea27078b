package domain

import "time"

// Trade es el registro histórico de una posición cerrada. Append-only:
// nunca se muta después de persistirse.
type Trade struct {
	ID           int64
	AccountID    int64
	Asset        string
	Direction    Direction
	EntryTime    time.Time
	ExitTime     time.Time
	Profit       float64
	EntryPrice   float64
	ExitPrice    float64
	FactorScores map[Factor]float64
}

// PnL resume el resultado acumulado de una serie de trades cerrados.
type PnL struct {
	Absolute   float64
	Percentage float64
}

// WinRate resume la tasa de acierto de una serie de trades cerrados.
type WinRate struct {
	Absolute   int
	Percentage float64
}

// ComputePnL agrega el profit realizado sobre el capital inicial dado.
func ComputePnL(trades []Trade, initialCapital float64) PnL {
	total := 0.0
	for _, t := range trades {
		total += t.Profit
	}
	pct := 0.0
	if initialCapital != 0 {
		pct = total / initialCapital * 100
	}
	return PnL{Absolute: total, Percentage: pct}
}

// ComputeWinRate cuenta los trades rentables sobre el total.
func ComputeWinRate(trades []Trade) WinRate {
	wins := 0
	for _, t := range trades {
		if t.Profit > 0 {
			wins++
		}
	}
	pct := 0.0
	if len(trades) > 0 {
		pct = float64(wins) / float64(len(trades)) * 100
	}
	return WinRate{Absolute: wins, Percentage: pct}
}
