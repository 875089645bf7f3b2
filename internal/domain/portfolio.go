package domain

import "time"

// PortfolioSnapshot is one append-only ledger entry recorded after a cycle
// completes (or on demand). The engine only ever appends; reporting reads.
type PortfolioSnapshot struct {
	ID              int64
	RecordedAt      time.Time
	TotalBalanceKRW float64
	CyclePnLKRW     float64
	CyclePnLPercent float64
	CycleID         *string
	Balances        map[string]float64
}
