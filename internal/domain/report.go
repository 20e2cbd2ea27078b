package domain

import "time"

// CycleReport contains everything produced by one evaluation cycle of an
// account engine, for console reporting and status endpoints.
type CycleReport struct {
	AccountID      int64
	At             time.Time
	TotalCapital   float64
	BridgedCapital float64
	ActiveCapital  float64
	Pruned         int
	Closed         int
	Opened         int
	Skipped        int // assets evaluated without a signal or without capital
	Evaluated      int
	OpenPositions  []Position
	Warnings       []string
}
