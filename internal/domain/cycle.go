package domain

import (
	"math"
	"time"
)

// CycleStatus is the lifecycle state of an arbitrage cycle.
type CycleStatus string

const (
	CycleStarted       CycleStatus = "STARTED"
	CycleAwaitingReb   CycleStatus = "AWAITING_REBALANCE"
	CycleRebInProgress CycleStatus = "REBALANCING_IN_PROGRESS"
	CycleAwaitingRetry CycleStatus = "AWAITING_RETRY"
	CycleCompleted     CycleStatus = "COMPLETED"
	CycleDeadLetter    CycleStatus = "DEAD_LETTER"
	CycleFailed        CycleStatus = "FAILED"
)

// Terminal reports whether the status admits no further state transitions.
// FAILED has no recovery path today, so it counts as terminal.
func (s CycleStatus) Terminal() bool {
	switch s {
	case CycleCompleted, CycleDeadLetter, CycleFailed:
		return true
	}
	return false
}

// Cycle is one attempted round-trip arbitrage: the opening leg on the cheap
// venue through the closing rebalance leg. It is owned by the engine and
// mutated only through the CycleStore update path.
type Cycle struct {
	ID                    string
	Status                CycleStatus
	Symbol                string
	StartTime             time.Time
	EndTime               *time.Time
	InitialInvestmentKRW  float64
	TotalNetProfitKRW     float64
	TotalNetProfitPercent float64
	InitialTradeID        *string
	RebalanceTradeID      *string
	RetryCount            int
	FailureReason         *string
	LastRetryAt           *time.Time
	NextRetryAt           *time.Time
	LockedAt              *time.Time

	// Trades is populated by GetWithTrades; nil on plain reads.
	Trades []Trade
}

// Finite maps NaN and ±Inf to zero. Every KRW/percent field passes through
// this before being persisted so a bad division upstream can never poison a
// stored row.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
